package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftlgo/ftl"
	"github.com/ftlgo/ftl/log"
)

// templateFlags are shared by the commands that load templates.
type templateFlags struct {
	Dir string `help:"Template root directory. Defaults to the directory of the template." short:"d" type:"existingdir"`
}

// configuration returns a configuration loading from the template root and
// the full name of path below it.
func (f templateFlags) configuration(path string) (*ftl.Configuration, string, error) {
	dir := f.Dir
	if dir == "" {
		dir = filepath.Dir(path)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return nil, "", err
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "../") {
		return nil, "", fmt.Errorf("template %s is outside of %s", path, dir)
	}

	cfg := ftl.NewConfiguration()
	cfg.SetLoader(ftl.FileSystemLoader(dir))
	cfg.SetLogger(log.Default())
	return cfg, rel, nil
}

// Render processes a template with a data model and prints the output.
type Render struct {
	Root templateFlags `embed:""`

	Data         []string          `help:"YAML or JSON data model files, merged in order."                        short:"D" type:"existingfile"`
	Set          map[string]string `help:"Set a data model variable. Values are parsed as YAML scalars."          short:"s"`
	Locale       string            `help:"Locale used for formatting, such as en_US or de-DE."`
	NumberFormat string            `help:"Number format: number, computer, c or percent."`
	BooleanFmt   string            `help:"Boolean format, such as yes,no."                                         name:"boolean-format"`
	OutputFormat string            `help:"Output format: undefined, plainText, HTML or XML. Defaults by extension."`
	LazyImports  bool              `help:"Load imported templates on first use."`
	Fuel         uint64            `help:"Abort after this many executed statements. Zero means unlimited."`
	Debug        bool              `help:"Write an error report into the output on failure."`
	Output       string            `help:"Write the output to a file instead of stdout."                          short:"o" type:"path"`

	Template string `arg:"" help:"Template file to render." type:"existingfile"`
}

// Run executes the render command.
func (r *Render) Run(ctx context.Context, s *streams) (err error) {
	cfg, name, err := r.Root.configuration(r.Template)
	if err != nil {
		return err
	}
	if err := r.configure(cfg); err != nil {
		return err
	}

	data, err := loadDataModel(r.Data, r.Set)
	if err != nil {
		return err
	}

	tmpl, err := cfg.GetTemplate(name)
	if err != nil {
		return reportError(s.err, err)
	}

	var w io.Writer = s.out
	if r.Output != "" {
		f, err := os.Create(r.Output)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	log.Default().DebugContext(ctx, "render",
		slog.String("template", name),
		slog.Int("data", len(r.Data)),
	)

	if err := tmpl.ProcessContext(ctx, data, w); err != nil {
		return reportError(s.err, err)
	}
	return nil
}

func (r *Render) configure(cfg *ftl.Configuration) error {
	settings := []struct{ name, value string }{
		{"locale", r.Locale},
		{"number_format", r.NumberFormat},
		{"boolean_format", r.BooleanFmt},
	}
	for _, s := range settings {
		if s.value == "" {
			continue
		}
		if err := cfg.SetSetting(s.name, s.value); err != nil {
			return err
		}
	}
	if r.OutputFormat != "" {
		f, ok := ftl.OutputFormatByName(r.OutputFormat)
		if !ok {
			return fmt.Errorf("unknown output format %q", r.OutputFormat)
		}
		cfg.SetOutputFormat(f)
	}
	cfg.SetLazyImports(r.LazyImports)
	cfg.SetFuel(r.Fuel)
	if r.Debug {
		cfg.SetDebug(true)
		cfg.SetExceptionHandler(ftl.DebugHandler)
	}
	return nil
}
