package bot

import (
	"context"
	"log/slog"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/DemidSergeev/notes-bot/core/logger"
	"github.com/DemidSergeev/notes-bot/core/telegram/sender"
)

// adminSender is the outbound surface the notifier needs from the bot.
type adminSender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// AdminNotifier pushes workflow notifications to the configured admin
// chat through the outbound dispatcher, so admin sends share the retry
// and backpressure policy of every other send. It is created before the
// bot exists and bound once the transport is up; notifications sent
// before Bind or with no admin configured are dropped.
type AdminNotifier struct {
	adminID int64

	mu   sync.RWMutex
	bot  adminSender
	disp *sender.Dispatcher
}

// NewAdminNotifier creates an unbound notifier for the given admin chat.
func NewAdminNotifier(adminID int64) *AdminNotifier {
	return &AdminNotifier{adminID: adminID}
}

// Bind attaches the live transport and the outbound dispatcher.
func (n *AdminNotifier) Bind(b adminSender, d *sender.Dispatcher) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bot = b
	n.disp = d
}

// NotifyAdmin implements flow.Notifier. Delivery is best effort; a failed
// notification is logged and never fails the triggering workflow.
func (n *AdminNotifier) NotifyAdmin(ctx context.Context, text string) {
	n.mu.RLock()
	b, d := n.bot, n.disp
	n.mu.RUnlock()
	if b == nil || n.adminID == 0 {
		return
	}

	run := func() error {
		_, err := b.Send(&tele.User{ID: n.adminID}, text)
		return err
	}
	if d != nil {
		if err := d.Enqueue(ctx, "notify.admin", "sendMessage", run); err == nil {
			return
		}
		logger.Warn(ctx, "bot", "notify_admin.enqueue.fallback")
	}
	go func() {
		if err := run(); err != nil {
			logger.Warn(ctx, "bot", "notify_admin.fail",
				slog.String("err", err.Error()),
			)
		}
	}()
}
