package unread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/store"
	"go.uber.org/zap"
)

// mockNotifier records mark-read calls and returns a configurable error.
type mockNotifier struct {
	mu    sync.Mutex
	calls []string
	err   error
	done  chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{done: make(chan struct{}, 16)}
}

func (m *mockNotifier) MarkRead(_ context.Context, chatID string) error {
	m.mu.Lock()
	m.calls = append(m.calls, chatID)
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.err
}

func (m *mockNotifier) waitForCall(t *testing.T) {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(time.Second):
		t.Fatal("mark-read was never called")
	}
}

func testTracker(n Notifier) *Tracker {
	tr := New(n, nil, zap.NewNop())
	tr.SetSelf("me")
	return tr
}

func inbound(chatID, senderID string) store.Message {
	return store.Message{ChatID: chatID, SenderID: senderID, DurableID: "m", Status: store.StatusSent}
}

func TestInboundIncrements(t *testing.T) {
	tr := testTracker(nil)

	tr.OnInbound(inbound("c1", "them"))
	tr.OnInbound(inbound("c1", "them"))
	tr.OnInbound(inbound("c2", "them"))

	if got := tr.Count("c1"); got != 2 {
		t.Errorf("c1 count = %d, want 2", got)
	}
	if got := tr.Count("c2"); got != 1 {
		t.Errorf("c2 count = %d, want 1", got)
	}
	if got := tr.Total(); got != 3 {
		t.Errorf("total = %d, want 3", got)
	}
}

func TestOwnMessageDoesNotIncrement(t *testing.T) {
	tr := testTracker(nil)
	tr.OnInbound(inbound("c1", "me"))
	if tr.Total() != 0 {
		t.Errorf("total = %d, want 0 (own echo must not count)", tr.Total())
	}
}

func TestActiveChatDoesNotIncrement(t *testing.T) {
	tr := testTracker(nil)
	tr.SetActive("c1")

	tr.OnInbound(inbound("c1", "them"))
	tr.OnInbound(inbound("c2", "them"))

	if tr.Count("c1") != 0 {
		t.Errorf("active chat count = %d, want 0", tr.Count("c1"))
	}
	if tr.Total() != 1 {
		t.Errorf("total = %d, want 1", tr.Total())
	}
}

// TestSetActiveClearsExactly covers unread monotonicity under focus: with
// N > 0 unread, activating the chat zeroes it and shrinks the total by
// exactly N.
func TestSetActiveClearsExactly(t *testing.T) {
	n := newMockNotifier()
	tr := testTracker(n)

	for i := 0; i < 3; i++ {
		tr.OnInbound(inbound("c1", "them"))
	}
	tr.OnInbound(inbound("c2", "them"))

	tr.SetActive("c1")
	n.waitForCall(t)

	if tr.Count("c1") != 0 {
		t.Errorf("c1 count = %d, want 0", tr.Count("c1"))
	}
	if tr.Total() != 1 {
		t.Errorf("total = %d, want 1 (4 - 3 cleared)", tr.Total())
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) != 1 || n.calls[0] != "c1" {
		t.Errorf("mark-read calls = %v, want [c1]", n.calls)
	}
}

func TestNotifyFailureDoesNotRollBack(t *testing.T) {
	n := newMockNotifier()
	n.err = errors.New("backend down")
	tr := testTracker(n)

	tr.OnInbound(inbound("c1", "them"))
	tr.SetActive("c1")
	n.waitForCall(t)

	if tr.Count("c1") != 0 || tr.Total() != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0); clearing is not rolled back",
			tr.Count("c1"), tr.Total())
	}
}

func TestClearActiveChangesNoCounts(t *testing.T) {
	tr := testTracker(nil)
	tr.OnInbound(inbound("c1", "them"))
	tr.SetActive("c2")
	tr.ClearActive()

	if tr.Count("c1") != 1 || tr.Total() != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1); losing focus changes nothing",
			tr.Count("c1"), tr.Total())
	}
	if tr.Active() != "" {
		t.Errorf("active = %q, want empty", tr.Active())
	}

	// With no chat focused, inbound messages count again for c2.
	tr.OnInbound(inbound("c2", "them"))
	if tr.Count("c2") != 1 {
		t.Errorf("c2 count = %d, want 1", tr.Count("c2"))
	}
}

func TestSeedReplacesCounts(t *testing.T) {
	tr := testTracker(nil)
	tr.OnInbound(inbound("stale", "them"))

	tr.Seed(map[string]int{"c1": 2, "c2": 5, "c3": 0})

	if tr.Count("stale") != 0 {
		t.Errorf("stale count = %d, want 0 after seed", tr.Count("stale"))
	}
	if tr.Count("c1") != 2 || tr.Count("c2") != 5 {
		t.Errorf("seeded counts = (%d, %d), want (2, 5)", tr.Count("c1"), tr.Count("c2"))
	}
	if tr.Total() != 7 {
		t.Errorf("total = %d, want 7", tr.Total())
	}
}
