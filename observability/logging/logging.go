// Package logging configures the process-wide structured logger for the
// escrow node.
package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup installs a JSON slog handler as the process default and returns the
// service-scoped logger. The dev environment logs at debug so local runs show
// engine wiring detail; every other environment logs at info. The engine
// itself never logs, it emits events; this logger serves the gateway and the
// binary.
func Setup(service, env string) *slog.Logger {
	env = strings.TrimSpace(env)
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: renameCoreKeys,
	})

	attrs := []slog.Attr{slog.String("service", strings.TrimSpace(service))}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	scoped := handler.WithAttrs(attrs)

	logger := slog.New(scoped)
	slog.SetDefault(logger)

	// Route the standard library logger through the same handler so
	// http.Server internals land in the structured stream too.
	bridge := slog.NewLogLogger(scoped, slog.LevelInfo)
	bridge.SetFlags(0)
	log.SetOutput(bridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return logger
}

// renameCoreKeys maps slog's built-in keys onto the names the log pipeline
// indexes on: timestamp, severity and message.
func renameCoreKeys(_ []string, attr slog.Attr) slog.Attr {
	switch attr.Key {
	case slog.TimeKey:
		attr.Key = "timestamp"
	case slog.LevelKey:
		return slog.String("severity", strings.ToUpper(attr.Value.String()))
	case slog.MessageKey:
		attr.Key = "message"
	}
	return attr
}
