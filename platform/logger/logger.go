// Package logger wraps slog with the handlers and helper methods the rest
// of the application logs through.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	LeadIDKey    contextKey = "lead_id"
)

type Logger struct {
	*slog.Logger
}

// New builds a logger for the given environment: human-readable text with
// debug level in development, JSON at info level everywhere else.
func New(env string) *Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithContext picks up the request and lead IDs the middleware stored in the
// context, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	out := l
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		out = &Logger{Logger: out.With(slog.String("request_id", requestID))}
	}
	if leadID, ok := ctx.Value(LeadIDKey).(string); ok && leadID != "" {
		out = out.WithLeadID(leadID)
	}
	return out
}

// WithLeadID scopes the logger to one lead conversation.
func (l *Logger) WithLeadID(leadID string) *Logger {
	return &Logger{Logger: l.With(slog.String("lead_id", leadID))}
}

func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// EscalationEvent logs a scheduler or executor decision for a lead.
func (l *Logger) EscalationEvent(event, leadID string, generation int64, stepIndex int) {
	l.Info("escalation_event",
		slog.String("event", event),
		slog.String("lead_id", leadID),
		slog.Int64("generation", generation),
		slog.Int("step_index", stepIndex),
	)
}

// DeliveryFailure logs a failed outbound message attempt.
func (l *Logger) DeliveryFailure(leadID string, attempt int, err error) {
	l.Warn("delivery_failure",
		slog.String("lead_id", leadID),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
