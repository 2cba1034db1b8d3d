// Package log provides the structured logger used by the template engine
// and the ftl command, based on [log/slog].
//
// A zero [Logger] discards everything, so library code can log
// unconditionally. Configure a logger with functional options:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatText))
//	logger.Debug("template loaded", slog.String("template", name))
//
// # Levels
//
// Besides the slog levels there is [LevelTrace], used for per-lookup noise
// such as template cache hits.
//
// # Output Formats
//
// [FormatJSON] and [FormatText] are supported. With [WithPretty] enabled
// (the default) both are colorized with lipgloss, which drops the colors
// when the output is not a terminal.
package log
