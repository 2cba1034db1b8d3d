package ftl

import (
	goerrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"github.com/ftlgo/ftl/lexer"
	"github.com/ftlgo/ftl/log"
	"github.com/ftlgo/ftl/parser"
	"github.com/ftlgo/ftl/value"
)

// DefaultRecursionLimit bounds nested macro calls and includes.
const DefaultRecursionLimit = 500

// Configuration holds engine-wide settings, shared variables and the
// template cache. It is safe for concurrent use once configured; renders
// never modify it.
type Configuration struct {
	mu sync.RWMutex

	cache    *templateCache
	loader   Loader
	shared   *value.Hash
	settings Settings
	logger   log.Logger
	lexer    lexer.Config

	lazyImports     bool
	legacyCallables bool
	recursionLimit  int
	fuel            uint64
	debug           bool

	autoImports  []autoImport
	autoIncludes []string
}

type autoImport struct {
	alias, name string
}

// NewConfiguration creates a configuration with default settings and no
// loader.
func NewConfiguration() *Configuration {
	return &Configuration{
		cache:          newTemplateCache(),
		shared:         value.NewHash(),
		settings:       DefaultSettings(),
		logger:         log.Discard(),
		lexer:          lexer.DefaultConfig(),
		recursionLimit: DefaultRecursionLimit,
	}
}

// SetLoader sets where templates are loaded from.
func (c *Configuration) SetLoader(l Loader) {
	c.mu.Lock()
	c.loader = l
	c.mu.Unlock()
}

// SetLogger sets the logger used for template loading and render
// diagnostics. The default discards everything.
func (c *Configuration) SetLogger(l log.Logger) {
	c.mu.Lock()
	c.logger = l
	c.mu.Unlock()
}

// Logger returns the configured logger.
func (c *Configuration) Logger() log.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// SetSharedVariable makes a variable visible to every template, below the
// data model in lookup order.
func (c *Configuration) SetSharedVariable(name string, v any) {
	c.mu.Lock()
	c.shared.Set(name, value.FromAny(v))
	c.mu.Unlock()
}

func (c *Configuration) sharedVariables() *value.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shared.Clone()
}

// Settings returns the configuration level settings.
func (c *Configuration) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetSettings replaces the configuration level settings. Zero fields fall
// back to DefaultSettings.
func (c *Configuration) SetSettings(s Settings) {
	c.mu.Lock()
	c.settings = s.inherit(DefaultSettings())
	c.mu.Unlock()
}

// SetSetting sets one setting by its template name, as <#setting> would.
func (c *Configuration) SetSetting(name, val string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.set(name, val)
}

// SetOutputFormat sets the output format of templates whose name does not
// imply one.
func (c *Configuration) SetOutputFormat(f OutputFormat) {
	c.mu.Lock()
	c.settings.OutputFormat = f
	c.mu.Unlock()
}

// SetArithmeticEngine sets the engine used for arithmetic and comparisons.
func (c *Configuration) SetArithmeticEngine(e value.ArithmeticEngine) {
	c.mu.Lock()
	c.settings.ArithmeticEngine = e
	c.mu.Unlock()
}

// SetExceptionHandler sets the policy for errors raised by statements.
func (c *Configuration) SetExceptionHandler(h ExceptionHandler) {
	c.mu.Lock()
	c.settings.ExceptionHandler = h
	c.mu.Unlock()
}

// SetStripWhitespace controls removal of lines that contain only
// directives. It is on by default and only affects templates parsed
// afterwards.
func (c *Configuration) SetStripWhitespace(strip bool) {
	c.mu.Lock()
	c.lexer.StripWhitespace = strip
	c.mu.Unlock()
}

// SetLazyImports makes <#import> defer loading the library until one of
// its variables is first read.
func (c *Configuration) SetLazyImports(lazy bool) {
	c.mu.Lock()
	c.lazyImports = lazy
	c.mu.Unlock()
}

// SetLegacyCallables allows calling macros in expressions, which yields
// their output as a string, and functions as directives.
func (c *Configuration) SetLegacyCallables(legacy bool) {
	c.mu.Lock()
	c.legacyCallables = legacy
	c.mu.Unlock()
}

// SetRecursionLimit bounds nested macro calls and includes.
func (c *Configuration) SetRecursionLimit(limit int) {
	c.mu.Lock()
	c.recursionLimit = limit
	c.mu.Unlock()
}

// SetFuel limits the number of statements a single render may execute.
// Zero disables the limit.
func (c *Configuration) SetFuel(fuel uint64) {
	c.mu.Lock()
	c.fuel = fuel
	c.mu.Unlock()
}

// SetDebug attaches template source, referenced variables and the macro
// call stack to render errors.
func (c *Configuration) SetDebug(debug bool) {
	c.mu.Lock()
	c.debug = debug
	c.mu.Unlock()
}

// AddAutoImport imports the template name as alias into the main namespace
// of every render, before the main template runs. Auto-imports run in the
// order they were added.
func (c *Configuration) AddAutoImport(alias, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ai := range c.autoImports {
		if ai.alias == alias {
			c.autoImports[i].name = name
			return
		}
	}
	c.autoImports = append(c.autoImports, autoImport{alias: alias, name: name})
}

// AddAutoInclude includes the template name at the start of every render,
// after the auto-imports.
func (c *Configuration) AddAutoInclude(name string) {
	c.mu.Lock()
	c.autoIncludes = append(c.autoIncludes, name)
	c.mu.Unlock()
}

// SetTemplateUpdateDelay sets how long a loaded template is used before
// its source is checked again.
func (c *Configuration) SetTemplateUpdateDelay(d time.Duration) {
	c.cache.setUpdateDelay(d)
}

type renderOptions struct {
	lazyImports     bool
	legacyCallables bool
	recursionLimit  int
	fuel            uint64
	debug           bool
	autoImports     []autoImport
	autoIncludes    []string
}

func (c *Configuration) renderOptions() renderOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return renderOptions{
		lazyImports:     c.lazyImports,
		legacyCallables: c.legacyCallables,
		recursionLimit:  c.recursionLimit,
		fuel:            c.fuel,
		debug:           c.debug,
		autoImports:     append([]autoImport(nil), c.autoImports...),
		autoIncludes:    append([]string(nil), c.autoIncludes...),
	}
}

// AddTemplate parses source and registers it under name. Registered
// templates take precedence over the loader and never expire.
func (c *Configuration) AddTemplate(name, source string) error {
	full, err := ResolveName("", name)
	if err != nil {
		return err
	}
	tmpl, err := c.compile(full, source)
	if err != nil {
		return err
	}
	c.cache.store(tmpl, true)
	return nil
}

// GetTemplate returns the template with the given full name, loading and
// parsing it if needed.
func (c *Configuration) GetTemplate(name string) (*Template, error) {
	full, err := ResolveName("", name)
	if err != nil {
		return nil, err
	}
	return c.getTemplate(full)
}

// TemplateFromString parses source into a template that is not cached.
// name is used for error messages and relative template names.
func (c *Configuration) TemplateFromString(name, source string) (*Template, error) {
	return c.compile(name, source)
}

// RemoveTemplate drops a template from the cache.
func (c *Configuration) RemoveTemplate(name string) {
	if full, err := ResolveName("", name); err == nil {
		c.cache.remove(full)
	}
}

// ClearTemplates drops every cached template, including added ones.
func (c *Configuration) ClearTemplates() {
	c.cache.clear()
}

func (c *Configuration) getTemplate(full string) (*Template, error) {
	logger := c.Logger()
	if tmpl, ok := c.cache.lookup(full); ok {
		logger.Trace("template cache hit", slog.String("template", full))
		return tmpl, nil
	}

	c.mu.RLock()
	loader := c.loader
	c.mu.RUnlock()
	if loader == nil {
		return nil, NewError(ErrTemplateNotFound,
			fmt.Sprintf("template %q not found", full)).
			WithTip("no template loader is configured")
	}

	source, err := loader.Load(full)
	if err != nil {
		if goerrors.Is(err, fs.ErrNotExist) {
			c.cache.remove(full)
			return nil, NewError(ErrTemplateNotFound,
				fmt.Sprintf("template %q not found", full)).Wrap(err)
		}
		return nil, NewError(ErrTemplateNotFound,
			fmt.Sprintf("failed to load template %q", full)).Wrap(err)
	}

	if tmpl, ok := c.cache.revalidate(full, source); ok {
		logger.Trace("template unchanged", slog.String("template", full))
		return tmpl, nil
	}

	tmpl, err := c.compile(full, source)
	if err != nil {
		return nil, err
	}
	c.cache.store(tmpl, false)
	logger.Debug("template loaded",
		slog.String("template", full),
		slog.Int("bytes", len(source)))
	return tmpl, nil
}

func (c *Configuration) compile(name, source string) (*Template, error) {
	c.mu.RLock()
	cfg := c.lexer
	c.mu.RUnlock()

	ast, err := parser.Parse(source, name, cfg)
	if err != nil {
		return nil, syntaxError(err, source)
	}
	return &Template{
		cfg:         c,
		name:        name,
		source:      source,
		ast:         ast,
		fingerprint: fingerprint(source),
		settings:    Settings{OutputFormat: outputFormatForName(name)},
	}, nil
}

// syntaxError converts a parse failure into an *Error of kind ErrSyntax.
func syntaxError(err error, source string) error {
	var perr *parser.Error
	if goerrors.As(err, &perr) {
		return NewError(ErrSyntax, perr.Message).
			WithName(perr.Name).
			WithSpan(perr.Span).
			WithSource(source).
			WithTip(perr.Tip)
	}
	return NewError(ErrSyntax, err.Error()).WithSource(source)
}
