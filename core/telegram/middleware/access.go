package middleware

import (
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/DemidSergeev/notes-bot/core/logger"
	tghelpers "github.com/DemidSergeev/notes-bot/core/telegram/helpers"
)

// AdminOptions defines how admin-only checks behave.
type AdminOptions struct {
	AdminID  int64
	OnReject tele.HandlerFunc
}

// AdminOnly wraps a handler enforcing admin-only execution. A zero
// AdminID disables every gated handler rather than opening it up.
func AdminOnly(opts AdminOptions, h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil || opts.AdminID == 0 || user.ID != opts.AdminID {
			var userID int64
			if user != nil {
				userID = user.ID
			}
			logger.Warn(tghelpers.BuildContext(c), "tg", "admin.denied",
				slog.Int64("user_id", userID),
			)
			if opts.OnReject != nil {
				return opts.OnReject(c)
			}
			return nil
		}
		return h(c)
	}
}

// AdminOnlyMiddleware gates a whole handler chain behind the admin check.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return AdminOnly(opts, next)
	}
}
