// Package logger wraps slog with file rotation and per-cycle context fields.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var globalLogger *slog.Logger

type Config struct {
	// debug, info, warn, error
	Level string
	// json or text
	Format string
	// stdout, file, both
	Output     string
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
	WithCaller bool
}

func Init(cfg Config) error {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.FilePath == "" {
		cfg.FilePath = "logs/werete.log"
	}
	fileWriter := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var output io.Writer
	switch cfg.Output {
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		output = fileWriter
	case "both":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return err
		}
		output = io.MultiWriter(os.Stdout, fileWriter)
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.WithCaller,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
	return nil
}

func Get() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

type ctxKey struct{}

type fields struct {
	cycleID string
	domain  string
}

// WithCycle tags ctx so every record logged under it carries the cycle id
// and domain.
func WithCycle(ctx context.Context, cycleID, domain string) context.Context {
	return context.WithValue(ctx, ctxKey{}, fields{cycleID: cycleID, domain: domain})
}

// CycleID returns the cycle id stored by WithCycle, or "".
func CycleID(ctx context.Context) string {
	if f, ok := ctx.Value(ctxKey{}).(fields); ok {
		return f.cycleID
	}
	return ""
}

func WithContext(ctx context.Context) *slog.Logger {
	l := Get()
	if ctx == nil {
		return l
	}
	f, ok := ctx.Value(ctxKey{}).(fields)
	if !ok {
		return l
	}
	attrs := make([]any, 0, 2)
	if f.cycleID != "" {
		attrs = append(attrs, slog.String("cycle_id", f.cycleID))
	}
	if f.domain != "" {
		attrs = append(attrs, slog.String("domain", f.domain))
	}
	return l.With(attrs...)
}

func Debug(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

func Info(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

func Warn(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

func Error(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}

// LogDuration logs msg with the elapsed time since start.
func LogDuration(ctx context.Context, msg string, start time.Time, args ...any) {
	args = append(args, slog.Duration("duration", time.Since(start)))
	WithContext(ctx).Info(msg, args...)
}
