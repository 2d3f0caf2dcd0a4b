// Package logging configures log/slog for the server and the CLI.
//
// Request-scoped loggers pick up chi's request id, and job-scoped loggers
// carry job_id and template_id so a whole import or export can be traced.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Setup installs the default logger writing to stdout.
//
// Level values: "debug", "info", "warn", "error" (default: "info")
// Format values: "text", "json" (default: "text")
func Setup(level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format)
	slog.SetDefault(logger)
	return logger
}

// New builds a logger on w without installing it. The CLI logs to stderr so
// stdout stays clean for results.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a string log level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type jobKey struct{}

type jobFields struct {
	jobID      string
	templateID string
}

// ContextWithJob tags ctx so FromContext adds job_id and template_id.
func ContextWithJob(ctx context.Context, jobID, templateID string) context.Context {
	return context.WithValue(ctx, jobKey{}, jobFields{jobID: jobID, templateID: templateID})
}

// FromContext returns the default logger enriched with the request id set by
// chi's RequestID middleware and any job tagged with ContextWithJob.
//
//	logger := logging.FromContext(r.Context())
//	logger.Info("transform request", "rule", rule)
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if job, ok := ctx.Value(jobKey{}).(jobFields); ok {
		logger = logger.With("job_id", job.jobID)
		if job.templateID != "" {
			logger = logger.With("template_id", job.templateID)
		}
	}

	return logger
}

// WithFields returns a context logger with additional structured fields.
func WithFields(ctx context.Context, args ...any) *slog.Logger {
	return FromContext(ctx).With(args...)
}
