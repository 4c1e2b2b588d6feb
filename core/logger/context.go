package logger

import (
	"context"
	"fmt"
	"log/slog"
)

type ctxKey int

const (
	ridKey ctxKey = iota
	loggerKey
	updateIDKey
	userIDKey
	chatIDKey
	handlerKey
)

// BuildRID composes the request identifier stamped on every log line
// produced while handling one Telegram update.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// WithRID stores the request identifier in the context.
func WithRID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ridKey, rid)
}

// RIDFrom returns the request identifier, or "" when absent.
func RIDFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	rid, _ := ctx.Value(ridKey).(string)
	return rid
}

// WithUpdateMeta stores update, user, and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = context.WithValue(ctx, updateIDKey, updateID)
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, chatIDKey, chatID)
}

// UpdateIDFrom returns the Telegram update ID, or 0 when absent.
func UpdateIDFrom(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(updateIDKey).(int)
	return id
}

// UserIDFrom returns the sender user ID, or 0 when absent.
func UserIDFrom(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(userIDKey).(int64)
	return id
}

// ChatIDFrom returns the chat ID, or 0 when absent.
func ChatIDFrom(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	id, _ := ctx.Value(chatIDKey).(int64)
	return id
}

// WithLogger pins a specific logger to the context; the leveled helpers
// use it instead of the root when present.
func WithLogger(ctx context.Context, logg *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logg)
}

// FromContext returns the pinned logger, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logg, _ := ctx.Value(loggerKey).(*slog.Logger)
	return logg
}

// WithHandler records the handler name for downstream log lines.
func WithHandler(ctx context.Context, handler string) context.Context {
	return context.WithValue(ctx, handlerKey, handler)
}

// HandlerFrom returns the handler name, or "" when absent.
func HandlerFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	h, _ := ctx.Value(handlerKey).(string)
	return h
}
