package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/ftlgo/ftl/internal/cli"
	"github.com/ftlgo/ftl/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.Run(ctx, os.Exit, os.Stdout, os.Stderr, os.Args[1:]...)
	if err != nil {
		if !cli.Reported(err) {
			log.Error("run failed", slog.Any("error", err))
		}
		stop()
		os.Exit(cli.ExitCode(err))
	}
}
