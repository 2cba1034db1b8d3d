package ftl

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/ftlgo/ftl/internal/suggest"
	"github.com/ftlgo/ftl/value"
)

// Settings are the formatting and error policies of a render. They resolve
// Environment -> Template -> Configuration: a zero field inherits from the
// next level.
type Settings struct {
	// Locale is a BCP 47 tag or a Java-style name such as "de_DE".
	Locale string
	// NumberFormat is "number" (locale aware), "computer", "c" or
	// "percent".
	NumberFormat string
	// BooleanFormat is "true,false" style: the texts printed for true and
	// false, or "c".
	BooleanFormat string
	// DateTimeFormat is a Go time layout or one of the named layouts
	// ("iso", "rfc3339", "kitchen", ...).
	DateTimeFormat string
	// ArithmeticEngine performs the arithmetic of the template.
	ArithmeticEngine value.ArithmeticEngine
	// OutputFormat controls escaping.
	OutputFormat OutputFormat
	// ExceptionHandler decides what happens to errors of statements.
	ExceptionHandler ExceptionHandler
}

// DefaultSettings are the settings used when nothing else is configured.
func DefaultSettings() Settings {
	return Settings{
		Locale:           "en_US",
		NumberFormat:     "number",
		BooleanFormat:    "true,false",
		DateTimeFormat:   "iso",
		ArithmeticEngine: value.BigDecimal,
		OutputFormat:     UndefinedOutputFormat,
		ExceptionHandler: RethrowHandler,
	}
}

// inherit fills the zero fields of s from parent.
func (s Settings) inherit(parent Settings) Settings {
	if s.Locale == "" {
		s.Locale = parent.Locale
	}
	if s.NumberFormat == "" {
		s.NumberFormat = parent.NumberFormat
	}
	if s.BooleanFormat == "" {
		s.BooleanFormat = parent.BooleanFormat
	}
	if s.DateTimeFormat == "" {
		s.DateTimeFormat = parent.DateTimeFormat
	}
	if s.ArithmeticEngine == nil {
		s.ArithmeticEngine = parent.ArithmeticEngine
	}
	if s.OutputFormat == nil {
		s.OutputFormat = parent.OutputFormat
	}
	if s.ExceptionHandler == nil {
		s.ExceptionHandler = parent.ExceptionHandler
	}
	return s
}

// settingNames lists what <#setting> accepts.
var settingNames = []string{
	"locale",
	"number_format",
	"boolean_format",
	"datetime_format",
	"arithmetic_engine",
}

// set applies a <#setting> value. Only Environment level settings are
// written this way.
func (s *Settings) set(name, val string) error {
	switch name {
	case "locale":
		if _, err := parseLocale(val); err != nil {
			return fmt.Errorf("invalid locale %q: %w", val, err)
		}
		s.Locale = val
	case "number_format":
		switch val {
		case "number", "computer", "c", "percent":
		default:
			return fmt.Errorf(`unsupported number_format %q, use "number", "computer", "c" or "percent"`, val)
		}
		s.NumberFormat = val
	case "boolean_format":
		if _, _, err := splitBooleanFormat(val); err != nil {
			return err
		}
		s.BooleanFormat = val
	case "datetime_format":
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("datetime_format must not be empty")
		}
		s.DateTimeFormat = val
	case "arithmetic_engine":
		engine, ok := value.EngineByName(val)
		if !ok {
			return fmt.Errorf(`unknown arithmetic_engine %q, use "bigdecimal" or "conservative"`, val)
		}
		s.ArithmeticEngine = engine
	default:
		return errUnknownSetting(name)
	}
	return nil
}

func errUnknownSetting(name string) error {
	err := NewError(ErrInvalidOperation, fmt.Sprintf("unknown setting %q", name))
	if s, ok := suggest.Closest(name, settingNames); ok {
		err.WithTip(fmt.Sprintf("did you mean %q?", s))
	}
	return err
}

// parseLocale accepts both "de-DE" and "de_DE".
func parseLocale(s string) (language.Tag, error) {
	return language.Parse(strings.ReplaceAll(s, "_", "-"))
}

func splitBooleanFormat(format string) (string, string, error) {
	if format == "c" {
		return "true", "false", nil
	}
	t, f, ok := strings.Cut(format, ",")
	if !ok || strings.Contains(f, ",") {
		return "", "", fmt.Errorf(`boolean_format must be "c" or like "yes,no", got %q`, format)
	}
	return t, f, nil
}

var timeLayouts = map[string]string{
	"iso":         time.RFC3339,
	"rfc3339":     time.RFC3339,
	"rfc3339nano": time.RFC3339Nano,
	"ansic":       time.ANSIC,
	"unixdate":    time.UnixDate,
	"rfc822":      time.RFC822,
	"rfc1123":     time.RFC1123,
	"kitchen":     time.Kitchen,
	"date":        time.DateOnly,
	"time":        time.TimeOnly,
	"datetime":    time.DateTime,
}

func timeLayout(format string) string {
	if layout, ok := timeLayouts[strings.ToLower(format)]; ok {
		return layout
	}
	return format
}
