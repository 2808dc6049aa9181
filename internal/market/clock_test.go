package market

import (
	"testing"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"go.uber.org/zap"
)

func newTestClock(t *testing.T, b *bus.Bus) *Clock {
	t.Helper()
	c, err := NewClock("0 6 * * 6", "0 18 * * 0", b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewClockRejectsBadSpec(t *testing.T) {
	if _, err := NewClock("not a cron spec", "0 18 * * 0", bus.New(), zap.NewNop()); err == nil {
		t.Error("invalid open spec should be rejected")
	}
	if _, err := NewClock("0 6 * * 6", "garbage", bus.New(), zap.NewNop()); err == nil {
		t.Error("invalid close spec should be rejected")
	}
}

func TestTransitionsPublishOnce(t *testing.T) {
	b := bus.New()
	events, cancel := b.Subscribe("market.", 8)
	defer cancel()

	c := newTestClock(t, b)

	c.markOpen()
	if !c.IsOpen() {
		t.Fatal("clock should be open after markOpen")
	}
	// Repeat fires are swallowed.
	c.markOpen()
	c.markClosed()
	c.markClosed()

	var kinds []string
	timeout := time.After(time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-events:
			kinds = append(kinds, ev.Kind)
		case <-timeout:
			t.Fatalf("got %v, want [opened closed]", kinds)
		}
	}
	if kinds[0] != bus.KindMarketOpened || kinds[1] != bus.KindMarketClosed {
		t.Errorf("kinds = %v", kinds)
	}

	select {
	case ev := <-events:
		t.Errorf("unexpected extra event %s", ev.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSetOpenDoesNotPublish(t *testing.T) {
	b := bus.New()
	events, cancel := b.Subscribe("market.", 8)
	defer cancel()

	c := newTestClock(t, b)
	c.SetOpen(true)
	if !c.IsOpen() {
		t.Fatal("SetOpen(true) should flip state")
	}

	select {
	case ev := <-events:
		t.Errorf("SetOpen published %s, want silence", ev.Kind)
	case <-time.After(20 * time.Millisecond):
	}
}
