// Package logging provides a configured zerolog logger with:
// - TTY detection for human-readable vs JSON output
// - LOG_FORMAT env var override (console/json)
// - LOG_LEVEL env var (debug/info/warn/error)
// - context-based request_id/site_id enrichment
package logging

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// ContextKey is a type for context keys used in logging.
type ContextKey string

const (
	// RequestIDKey is the context key for the inbound request ID.
	RequestIDKey ContextKey = "log_request_id"
	// SiteIDKey is the context key for the resolved site ID.
	SiteIDKey ContextKey = "log_site_id"
)

// WithRequestID adds a request ID to the context for logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithSiteID adds a site ID to the context for logging.
func WithSiteID(ctx context.Context, siteID string) context.Context {
	return context.WithValue(ctx, SiteIDKey, siteID)
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(RequestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetSiteID extracts the site ID from context.
func GetSiteID(ctx context.Context) string {
	if v := ctx.Value(SiteIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FromContext returns a logger enriched with request_id/site_id pulled from
// ctx, if present. Use this at the top of a handler or background job.
func FromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}

	enriched := logger.With()
	if requestID := GetRequestID(ctx); requestID != "" {
		enriched = enriched.Str("request_id", requestID)
	}
	if siteID := GetSiteID(ctx); siteID != "" {
		enriched = enriched.Str("site_id", siteID)
	}
	return enriched.Logger()
}

// New creates a new configured logger.
// Format is determined by:
//  1. LOG_FORMAT env var (console/json)
//  2. TTY detection (console for TTY, JSON otherwise)
// Level is determined by LOG_LEVEL env var (debug/info/warn/error, default: info).
func New() zerolog.Logger {
	zerolog.SetGlobalLevel(parseLogLevel(os.Getenv("LOG_LEVEL")))

	logFormat := os.Getenv("LOG_FORMAT")
	useConsole := logFormat == "console" || (logFormat == "" && isatty(os.Stdout))

	if useConsole {
		out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		return zerolog.New(out).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func isatty(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
