package cache

import (
	"context"
	"testing"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"go.uber.org/zap"
)

func waitForRows(t *testing.T, db *DB, chatID string, want int) []store.Message {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msgs, err := db.ListMessages(chatID, 0, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == want {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("cache never reached %d rows for chat %s", want, chatID)
	return nil
}

func TestPersisterWritesUpsertedMessages(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	p := NewPersister(db, b, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	b.Publish(bus.KindMessageUpserted, store.Message{
		ChatID: "c1", DurableID: "m1", SenderID: "them", Text: "oi", CreatedAt: 1000, Status: store.StatusSent,
	})

	msgs := waitForRows(t, db, "c1", 1)
	if msgs[0].DurableID != "m1" {
		t.Errorf("row = %+v", msgs[0])
	}

	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.LastMessageText != "oi" || c.LastMessageAt != 1000 {
		t.Errorf("chat preview = %+v, want bumped to (oi, 1000)", c)
	}
}

func TestPersisterWritesHydratedBatch(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	p := NewPersister(db, b, zap.NewNop())
	p.Start(context.Background())
	defer p.Stop()

	b.Publish(bus.KindMessageHydrated, store.HydratedBatch{
		ChatID: "c1",
		Messages: []store.Message{
			{ChatID: "c1", DurableID: "m1", Text: "first", CreatedAt: 1000, Status: store.StatusSent},
			{ChatID: "c1", DurableID: "m2", Text: "second", CreatedAt: 2000, Status: store.StatusSent},
		},
	})

	waitForRows(t, db, "c1", 2)
	c, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.LastMessageText != "second" {
		t.Errorf("chat preview = %+v, want second", c)
	}
}

func TestPersisterStops(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	p := NewPersister(db, b, zap.NewNop())
	p.Start(context.Background())
	p.Stop()
	time.Sleep(20 * time.Millisecond)

	b.Publish(bus.KindMessageUpserted, store.Message{
		ChatID: "c1", DurableID: "m1", CreatedAt: 1000, Status: store.StatusSent,
	})
	time.Sleep(50 * time.Millisecond)

	msgs, err := db.ListMessages("c1", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d rows after stop, want 0", len(msgs))
	}
}
