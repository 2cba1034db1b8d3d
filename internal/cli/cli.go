// Package cli implements the ftl command line tool.
package cli

import (
	"context"
	"io"

	"github.com/alecthomas/kong"
)

const (
	name        = "ftl"
	description = "Render and inspect FTL templates."
)

// CLI is the top-level command-line interface.
type CLI struct {
	Log     logConfig     `embed:"" group:"log"     prefix:"log-"`
	Profile profileConfig `embed:"" group:"profile" prefix:"profile-"`

	Render Render `cmd:"" default:"withargs" help:"Render a template."`
	Check  Check  `cmd:""                    help:"Parse templates and report syntax errors."`
	Dump   Dump   `cmd:""                    help:"Print the syntax tree or canonical form of a template."`
}

// streams are the writers commands print to.
type streams struct {
	out, err io.Writer
}

// Run parses args and executes the selected command. exit is called by kong
// for --help and usage errors.
func Run(
	ctx context.Context,
	exit func(code int),
	stdout, stderr io.Writer,
	args ...string,
) error {
	var cli CLI

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Flags like --log-level must take effect before kong reports
	// anything, wherever they appear on the command line.
	cli.Log.scan(args)

	parser, err := kong.New(&cli,
		kong.Name(name),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.Writers(stdout, stderr),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Profile.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.Bind(&streams{out: stdout, err: stderr}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				NoExpandSubcommands: true,
			}),
		cli.Log.vars().CloneWith(cli.Profile.vars()),
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cli.Log.start(ctx, stderr)

	defer cli.Profile.start(ctx)()

	return ktx.Run(ctx, &cli)
}
