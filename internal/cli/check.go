package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ftlgo/ftl/log"
)

// Check parses templates and reports their syntax errors.
type Check struct {
	Root templateFlags `embed:""`

	Templates []string `arg:"" help:"Template files to check." type:"existingfile"`
}

// Run executes the check command.
func (c *Check) Run(ctx context.Context, s *streams) error {
	failed := 0
	for _, path := range c.Templates {
		cfg, name, err := c.Root.configuration(path)
		if err != nil {
			return err
		}
		if _, err := cfg.GetTemplate(name); err != nil {
			_ = reportError(s.err, err)
			failed++
			continue
		}
		log.Default().DebugContext(ctx, "template ok", slog.String("template", name))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d templates failed to parse", failed, len(c.Templates))
	}
	return nil
}

// Dump prints the syntax tree of a template.
type Dump struct {
	Root templateFlags `embed:""`

	Canonical bool `help:"Print the template in canonical syntax instead." short:"c"`

	Template string `arg:"" help:"Template file to dump." type:"existingfile"`
}

// Run executes the dump command.
func (d *Dump) Run(s *streams) error {
	cfg, name, err := d.Root.configuration(d.Template)
	if err != nil {
		return err
	}
	tmpl, err := cfg.GetTemplate(name)
	if err != nil {
		return reportError(s.err, err)
	}
	if d.Canonical {
		_, err = fmt.Fprint(s.out, tmpl.CanonicalForm())
	} else {
		_, err = fmt.Fprintln(s.out, tmpl.Dump())
	}
	return err
}
