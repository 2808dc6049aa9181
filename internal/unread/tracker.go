package unread

import (
	"context"
	"sync"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"go.uber.org/zap"
)

// Notifier delivers the best-effort "mark as read" call to the backend.
type Notifier interface {
	MarkRead(ctx context.Context, chatID string) error
}

const markReadTimeout = 10 * time.Second

// Changed is the bus payload for unread count updates.
type Changed struct {
	ChatID string
	Count  int
	Total  int
}

// Tracker derives per-chat and global unread counts from message flow and
// the active-chat focus state. It never stores message content; the message
// store owns that.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int
	total  int
	active string
	self   string

	notifier Notifier
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates a tracker with all counts at zero and no active chat.
func New(notifier Notifier, b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		counts:   make(map[string]int),
		notifier: notifier,
		bus:      b,
		logger:   logger,
	}
}

// SetSelf records the local user id so the tracker can ignore the user's
// own messages echoing back from the hub.
func (t *Tracker) SetSelf(userID string) {
	t.mu.Lock()
	t.self = userID
	t.mu.Unlock()
}

// Seed bootstraps counts from server-fetched chat previews, replacing any
// existing counts.
func (t *Tracker) Seed(counts map[string]int) {
	t.mu.Lock()
	t.counts = make(map[string]int, len(counts))
	t.total = 0
	for chatID, n := range counts {
		if n <= 0 {
			continue
		}
		t.counts[chatID] = n
		t.total += n
	}
	total := t.total
	t.mu.Unlock()

	t.publish(Changed{Total: total})
}

// OnInbound applies an inbound confirmed message: the owning chat's count
// and the global total each grow by one, unless the message is the user's
// own or the chat is currently focused.
func (t *Tracker) OnInbound(msg store.Message) {
	t.mu.Lock()
	if msg.SenderID == t.self || msg.ChatID == t.active {
		t.mu.Unlock()
		return
	}
	t.counts[msg.ChatID]++
	t.total++
	change := Changed{ChatID: msg.ChatID, Count: t.counts[msg.ChatID], Total: t.total}
	t.mu.Unlock()

	t.publish(change)
}

// SetActive focuses a chat: its unread count drops to zero synchronously and
// the global total shrinks by the amount cleared (clamped at zero). The
// backend is notified in the background; a failed notification is logged but
// never rolls the clearing back, since the user has genuinely seen the
// messages.
func (t *Tracker) SetActive(chatID string) {
	t.mu.Lock()
	t.active = chatID
	cleared := t.counts[chatID]
	if cleared > 0 {
		delete(t.counts, chatID)
		t.total -= cleared
		if t.total < 0 {
			t.total = 0
		}
	}
	change := Changed{ChatID: chatID, Count: 0, Total: t.total}
	t.mu.Unlock()

	t.publish(change)

	if t.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		if err := t.notifier.MarkRead(ctx, chatID); err != nil {
			t.logger.Warn("mark-read notification failed",
				zap.String("chat_id", chatID), zap.Error(err))
		}
	}()
}

// ClearActive drops focus without touching any counts.
func (t *Tracker) ClearActive() {
	t.mu.Lock()
	t.active = ""
	t.mu.Unlock()
}

// Active returns the currently focused chat id, or empty.
func (t *Tracker) Active() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Count returns the unread count for one chat.
func (t *Tracker) Count(chatID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[chatID]
}

// Total returns the global unread total.
func (t *Tracker) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Tracker) publish(c Changed) {
	if t.bus != nil {
		t.bus.Publish(bus.KindUnreadChanged, c)
	}
}
