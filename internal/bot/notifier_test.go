package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/DemidSergeev/notes-bot/core/telegram/sender"
)

type recordingSender struct {
	mu    sync.Mutex
	to    []string
	texts []string
}

func (r *recordingSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, to.Recipient())
	if text, ok := what.(string); ok {
		r.texts = append(r.texts, text)
	}
	return &tele.Message{}, nil
}

func (r *recordingSender) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.to...), append([]string(nil), r.texts...)
}

func TestNotifyAdminGoesThroughDispatcher(t *testing.T) {
	rec := &recordingSender{}
	d := sender.NewDispatcher(sender.Options{Workers: 1, QueueSize: 4})
	t.Cleanup(d.Close)

	n := NewAdminNotifier(7)
	n.Bind(rec, d)
	n.NotifyAdmin(context.Background(), "pending file")

	require.Eventually(t, func() bool {
		to, _ := rec.snapshot()
		return len(to) == 1
	}, time.Second, 5*time.Millisecond)

	to, texts := rec.snapshot()
	assert.Equal(t, []string{"7"}, to)
	assert.Equal(t, []string{"pending file"}, texts)
}

func TestNotifyAdminFallsBackWhenDispatcherClosed(t *testing.T) {
	rec := &recordingSender{}
	d := sender.NewDispatcher(sender.Options{Workers: 1, QueueSize: 4})
	d.Close()

	n := NewAdminNotifier(7)
	n.Bind(rec, d)
	n.NotifyAdmin(context.Background(), "late notice")

	require.Eventually(t, func() bool {
		to, _ := rec.snapshot()
		return len(to) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestNotifyAdminDropsWhenUnboundOrNoAdmin(t *testing.T) {
	// Unbound: must not panic, nothing to deliver to.
	NewAdminNotifier(7).NotifyAdmin(context.Background(), "ignored")

	// Admin id zero: bound transport stays untouched.
	rec := &recordingSender{}
	n := NewAdminNotifier(0)
	n.Bind(rec, nil)
	n.NotifyAdmin(context.Background(), "ignored")

	time.Sleep(20 * time.Millisecond)
	to, _ := rec.snapshot()
	assert.Empty(t, to)
}
