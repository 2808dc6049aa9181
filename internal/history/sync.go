package history

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sensen312/GobTrades-sub000/internal/cache"
	"github.com/sensen312/GobTrades-sub000/internal/rest"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"github.com/sensen312/GobTrades-sub000/internal/unread"
	"go.uber.org/zap"
)

// DefaultPageSize is the history page size requested from the backend.
const DefaultPageSize = 50

// previewsCheckpoint is the profile_state key recording the last successful
// preview sync.
const previewsCheckpoint = "previews_synced_at"

// Backend is the slice of the REST client the syncer needs.
type Backend interface {
	FetchPreviews(ctx context.Context) ([]rest.ChatPreview, error)
	FetchHistory(ctx context.Context, chatID string, beforeTs int64, limit int) ([]store.Message, error)
}

// Syncer bootstraps and refreshes chat state from the backend: the bulk
// preview list seeds the unread tracker and cache, and per-conversation
// history pages hydrate the message store before or alongside the live
// connection.
type Syncer struct {
	backend Backend
	store   *store.Store
	tracker *unread.Tracker
	cache   *cache.DB
	logger  *zap.Logger
}

// NewSyncer creates a history syncer. cache may be nil (headless tests).
func NewSyncer(backend Backend, s *store.Store, t *unread.Tracker, db *cache.DB, logger *zap.Logger) *Syncer {
	return &Syncer{
		backend: backend,
		store:   s,
		tracker: t,
		cache:   db,
		logger:  logger,
	}
}

// Bootstrap fetches the chat-preview list, seeds unread counts, and writes
// previews through to the cache. A failure leaves previously-cached state
// untouched and is localized to the chat list.
func (s *Syncer) Bootstrap(ctx context.Context) ([]rest.ChatPreview, error) {
	previews, err := s.backend.FetchPreviews(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap chat list: %w", err)
	}

	counts := make(map[string]int, len(previews))
	for _, p := range previews {
		counts[p.ChatID] = p.UnreadCount
	}
	s.tracker.Seed(counts)

	if s.cache != nil {
		for _, p := range previews {
			row := &cache.ChatRow{
				ChatID:           p.ChatID,
				PartnerID:        p.PartnerID,
				PartnerName:      p.PartnerName,
				PartnerAvatarRef: p.PartnerAvatarRef,
				LastMessageText:  p.LastMessageText,
				LastMessageAt:    p.LastMessageAt,
				UnreadCount:      p.UnreadCount,
			}
			if err := s.cache.UpsertChat(row); err != nil {
				s.logger.Warn("failed to cache chat preview",
					zap.String("chat_id", p.ChatID), zap.Error(err))
			}
		}
		if err := s.cache.SetCheckpoint(previewsCheckpoint,
			strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
			s.logger.Warn("failed to record preview checkpoint", zap.Error(err))
		}
	}

	s.logger.Info("chat list bootstrapped", zap.Int("chats", len(previews)))
	return previews, nil
}

// Load fetches the newest history page for a conversation and hydrates the
// message store with it. Concurrent loads for the same conversation are
// rejected by the store's fetch guard; loads for other conversations are
// unaffected.
func (s *Syncer) Load(ctx context.Context, chatID string) error {
	if err := s.store.BeginFetch(chatID); err != nil {
		return err
	}

	msgs, err := s.backend.FetchHistory(ctx, chatID, 0, DefaultPageSize)
	if err != nil {
		s.store.EndFetch(chatID, false)
		return fmt.Errorf("load history for chat %s: %w", chatID, err)
	}

	s.store.Hydrate(chatID, msgs)
	s.logger.Info("history hydrated",
		zap.String("chat_id", chatID), zap.Int("messages", len(msgs)))
	return nil
}

// LoadOlder fetches the page preceding beforeTs and merges it into the
// existing log without replacing newer messages.
func (s *Syncer) LoadOlder(ctx context.Context, chatID string, beforeTs int64) error {
	if err := s.store.BeginFetch(chatID); err != nil {
		return err
	}

	msgs, err := s.backend.FetchHistory(ctx, chatID, beforeTs, DefaultPageSize)
	if err != nil {
		s.store.EndFetch(chatID, false)
		return fmt.Errorf("load older history for chat %s: %w", chatID, err)
	}

	for _, m := range msgs {
		s.store.AppendConfirmed(m)
	}
	s.store.EndFetch(chatID, true)
	return nil
}

// Refresh explicitly re-loads a conversation that already fetched
// successfully. This is the only path from success back to loading.
func (s *Syncer) Refresh(ctx context.Context, chatID string) error {
	if st := s.store.FetchState(chatID); st != store.FetchSuccess && st != store.FetchError {
		return fmt.Errorf("refresh requires a settled fetch, chat %s is %s", chatID, st)
	}
	return s.Load(ctx, chatID)
}
