package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"foodhub/internal/telemetry"
)

// Logger writes structured JSON log lines tagged with service, hostname,
// action and request id.
type Logger struct {
	service  string
	hostname string
	handler  *slog.Logger
	ctx      context.Context
}

// New creates a logger writing to stdout
func New(service string) *Logger {
	return NewWithWriter(service, os.Stdout)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(service string, w io.Writer) *Logger {
	hostname, _ := os.Hostname()

	handler := slog.New(telemetry.NewContextHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	return &Logger{
		service:  service,
		hostname: hostname,
		handler:  handler,
		ctx:      context.Background(),
	}
}

// WithContext returns a logger that attaches trace ids found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	clone := *l
	clone.ctx = ctx
	return &clone
}

// GenerateRequestID returns a new random request id
func GenerateRequestID() string {
	return uuid.NewString()
}

func (l *Logger) Info(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelInfo, action, message, requestID, nil, details)
}

func (l *Logger) Debug(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelDebug, action, message, requestID, nil, details)
}

func (l *Logger) Warn(action, message, requestID string, details map[string]interface{}) {
	l.log(slog.LevelWarn, action, message, requestID, nil, details)
}

func (l *Logger) Error(action, message, requestID string, err error, details map[string]interface{}) {
	l.log(slog.LevelError, action, message, requestID, err, details)
}

func (l *Logger) log(level slog.Level, action, message, requestID string, err error, details map[string]interface{}) {
	attrs := []slog.Attr{
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
		slog.String("service", l.service),
		slog.String("hostname", l.hostname),
		slog.String("action", action),
		slog.String("request_id", requestID),
	}
	if len(details) > 0 {
		attrs = append(attrs, slog.Any("details", details))
	}
	if err != nil {
		attrs = append(attrs, slog.Group("error",
			slog.String("msg", err.Error()),
			slog.String("stack", string(debug.Stack())),
		))
	}

	l.handler.LogAttrs(l.ctx, level, message, attrs...)
}
