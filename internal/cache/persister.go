package cache

import (
	"context"
	"fmt"

	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"go.uber.org/zap"
)

// Persister subscribes to message events on the bus and writes them behind
// into the cache. It is fully decoupled from the in-memory store: losing a
// cache write never affects live chat state.
type Persister struct {
	db     *DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewPersister creates a persister.
func NewPersister(db *DB, b *bus.Bus, logger *zap.Logger) *Persister {
	return &Persister{db: db, bus: b, logger: logger}
}

// Start subscribes to message events and begins persisting.
func (p *Persister) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	ch, unsub := p.bus.Subscribe("message.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				p.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the persister.
func (p *Persister) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Persister) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageUpserted:
		msg, ok := evt.Payload.(store.Message)
		if !ok {
			return
		}
		if err := p.persistMessage(&msg); err != nil {
			p.logger.Error("failed to persist message", zap.Error(err),
				zap.String("chat_id", msg.ChatID))
		}
	case bus.KindMessageHydrated:
		batch, ok := evt.Payload.(store.HydratedBatch)
		if !ok {
			return
		}
		if err := p.persistBatch(&batch); err != nil {
			p.logger.Error("failed to persist history batch", zap.Error(err),
				zap.String("chat_id", batch.ChatID), zap.Int("count", len(batch.Messages)))
		} else {
			p.logger.Info("history batch persisted",
				zap.String("chat_id", batch.ChatID), zap.Int("messages", len(batch.Messages)))
		}
	}
}

func (p *Persister) persistMessage(msg *store.Message) error {
	if err := p.db.UpsertMessage(msg); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if err := p.db.TouchChat(msg.ChatID, previewText(msg), msg.CreatedAt); err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// persistBatch writes a hydrated history page in a single transaction.
func (p *Persister) persistBatch(batch *store.HydratedBatch) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var newest *store.Message
	for i := range batch.Messages {
		m := &batch.Messages[i]
		if _, err := tx.Exec(`
			INSERT INTO messages (chat_id, msg_key, durable_id, correlation_id, sender_id, body, image_ref, offered_listing_id, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_id, msg_key) DO UPDATE SET
				body = excluded.body,
				status = excluded.status,
				created_at = excluded.created_at`,
			m.ChatID, messageKey(m), m.DurableID, m.CorrelationID, m.SenderID,
			m.Text, m.ImageRef, m.OfferedListingID, string(m.Status), m.CreatedAt); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
		if newest == nil || m.CreatedAt > newest.CreatedAt {
			newest = m
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	if newest != nil {
		if err := p.db.TouchChat(newest.ChatID, previewText(newest), newest.CreatedAt); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
	}
	return nil
}

func previewText(m *store.Message) string {
	switch {
	case m.Text != "":
		return truncate(m.Text, 100)
	case m.OfferedListingID != "":
		return "(listing offer)"
	case m.ImageRef != "":
		return "(image)"
	default:
		return ""
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
