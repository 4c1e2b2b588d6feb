// Package logger configures process-wide structured logging on log/slog
// and carries request correlation through context. Every update gets a
// RID (update:chat:user) stamped by the transport middleware; services
// log through the leveled helpers below so the RID and component name
// travel with each line.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options selects the handler built by Init.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Format is "json" or "text". Empty means text.
	Format string
}

var root = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Init installs the process logger. Safe to call once at startup before
// any goroutines log.
func Init(opts Options) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(opts.Level)) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	} else {
		h = slog.NewTextHandler(os.Stderr, hopts)
	}
	root = slog.New(h)
	slog.SetDefault(root)
}

// L returns the root logger.
func L() *slog.Logger {
	return root
}

// Component returns a child logger tagged with the component name.
func Component(name string) *slog.Logger {
	return root.With(slog.String("component", name))
}

func logAt(ctx context.Context, level slog.Level, component, event string, attrs ...slog.Attr) {
	if ctx == nil {
		ctx = context.Background()
	}
	logg := FromContext(ctx)
	if logg == nil {
		logg = Component(component)
	} else {
		logg = logg.With(slog.String("component", component))
	}
	all := make([]slog.Attr, 0, len(attrs)+1)
	if rid := RIDFrom(ctx); rid != "" {
		all = append(all, slog.String("rid", rid))
	}
	all = append(all, attrs...)
	logg.LogAttrs(ctx, level, event, all...)
}

// Debug logs a debug event for the component with the context RID attached.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelDebug, component, event, attrs...)
}

// Info logs an info event for the component with the context RID attached.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelInfo, component, event, attrs...)
}

// Warn logs a warning event for the component with the context RID attached.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelWarn, component, event, attrs...)
}

// Error logs an error event for the component with the context RID attached.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	logAt(ctx, slog.LevelError, component, event, attrs...)
}

// RoundMS rounds a duration to whole milliseconds for log output.
func RoundMS(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

// SanitizeLimit strips control characters and truncates to max runes,
// keeping user-supplied payloads safe to log on one line.
func SanitizeLimit(s string, max int) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	if max > 0 {
		runes := []rune(s)
		if len(runes) > max {
			return string(runes[:max]) + "…"
		}
	}
	return s
}
