package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"go.uber.org/zap"
)

// Store is the authoritative in-memory, per-conversation message log. It
// merges optimistic local sends with hub confirmations and REST history
// batches. The per-conversation logs are mutated only through Store methods,
// and every mutation re-establishes ascending timestamp order.
type Store struct {
	mu    sync.Mutex
	logs  map[string][]Message
	fetch map[string]FetchStatus

	bus    *bus.Bus
	logger *zap.Logger
}

// New creates an empty message store.
func New(b *bus.Bus, logger *zap.Logger) *Store {
	return &Store{
		logs:   make(map[string][]Message),
		fetch:  make(map[string]FetchStatus),
		bus:    b,
		logger: logger,
	}
}

// BeginFetch marks a conversation's history fetch as in flight. Returns an
// error if a fetch for that conversation is already loading, so concurrent
// hydrates for the same conversation cannot interleave.
func (s *Store) BeginFetch(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetch[chatID] == FetchLoading {
		return fmt.Errorf("history fetch already in flight for chat %s", chatID)
	}
	s.fetch[chatID] = FetchLoading
	return nil
}

// EndFetch records the outcome of an in-flight history fetch.
func (s *Store) EndFetch(chatID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.fetch[chatID] = FetchSuccess
	} else {
		s.fetch[chatID] = FetchError
	}
}

// FetchState returns the fetch status for a conversation (FetchIdle if the
// conversation has never been fetched).
func (s *Store) FetchState(chatID string) FetchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.fetch[chatID]; ok {
		return st
	}
	return FetchIdle
}

// Hydrate replaces (or seeds) a conversation's log with a server-fetched
// batch and marks the fetch successful.
func (s *Store) Hydrate(chatID string, msgs []Message) {
	s.mu.Lock()
	log := make([]Message, len(msgs))
	copy(log, msgs)
	s.logs[chatID] = log
	s.sortLocked(chatID)
	s.fetch[chatID] = FetchSuccess
	batch := make([]Message, len(log))
	copy(batch, log)
	s.mu.Unlock()

	s.publish(bus.KindMessageHydrated, HydratedBatch{ChatID: chatID, Messages: batch})
}

// AppendOptimistic inserts a locally-sent message in status sending. The
// message must carry a correlation id; a duplicate correlation id is a
// warned no-op.
func (s *Store) AppendOptimistic(msg Message) error {
	if msg.CorrelationID == "" {
		return fmt.Errorf("optimistic message missing correlation id")
	}

	s.mu.Lock()
	if _, ok := s.findByCorrelation(msg.ChatID, msg.CorrelationID); ok {
		s.mu.Unlock()
		s.logger.Warn("duplicate optimistic append ignored",
			zap.String("chat_id", msg.ChatID),
			zap.String("correlation_id", msg.CorrelationID))
		return nil
	}
	s.logs[msg.ChatID] = append(s.logs[msg.ChatID], msg)
	s.sortLocked(msg.ChatID)
	s.mu.Unlock()

	s.publishUpserted(&msg)
	return nil
}

// AppendConfirmed applies a hub-confirmed message. If an optimistic entry
// with the same correlation id exists it is updated in place (durable id
// assigned, status sent); if the durable id is already present the call is
// an idempotent no-op; otherwise the message is inserted as sent, which is
// the path every other-participant message takes.
func (s *Store) AppendConfirmed(msg Message) {
	s.mu.Lock()
	if i, ok := s.findByCorrelation(msg.ChatID, msg.CorrelationID); ok {
		entry := &s.logs[msg.ChatID][i]
		entry.DurableID = msg.DurableID
		entry.Status = StatusSent
		if msg.CreatedAt != 0 {
			entry.CreatedAt = msg.CreatedAt
		}
		confirmed := *entry
		s.sortLocked(msg.ChatID)
		s.mu.Unlock()
		s.publishUpserted(&confirmed)
		return
	}
	if _, ok := s.findByDurable(msg.ChatID, msg.DurableID); ok {
		// Already applied; reapplying a confirmation is a safe no-op.
		s.mu.Unlock()
		return
	}
	msg.Status = StatusSent
	s.logs[msg.ChatID] = append(s.logs[msg.ChatID], msg)
	s.sortLocked(msg.ChatID)
	s.mu.Unlock()

	s.publishUpserted(&msg)
}

// MarkStatus updates an existing optimistic message's delivery status,
// assigning the durable id when transitioning to sent. An unknown
// correlation id is a warned no-op.
func (s *Store) MarkStatus(correlationID, chatID string, st Status, durableID string) {
	s.mu.Lock()
	i, ok := s.findByCorrelation(chatID, correlationID)
	if !ok {
		s.mu.Unlock()
		s.logger.Warn("mark status for unknown correlation id",
			zap.String("chat_id", chatID),
			zap.String("correlation_id", correlationID),
			zap.String("status", string(st)))
		return
	}
	entry := &s.logs[chatID][i]
	entry.Status = st
	if st == StatusSent && durableID != "" {
		entry.DurableID = durableID
	}
	updated := *entry
	s.mu.Unlock()

	s.publishUpserted(&updated)
}

// Messages returns a snapshot copy of a conversation's log.
func (s *Store) Messages(chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.logs[chatID]))
	copy(out, s.logs[chatID])
	return out
}

// Len returns the number of messages in a conversation's log.
func (s *Store) Len(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs[chatID])
}

func (s *Store) findByCorrelation(chatID, correlationID string) (int, bool) {
	if correlationID == "" {
		return 0, false
	}
	for i := range s.logs[chatID] {
		if s.logs[chatID][i].CorrelationID == correlationID {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) findByDurable(chatID, durableID string) (int, bool) {
	if durableID == "" {
		return 0, false
	}
	for i := range s.logs[chatID] {
		if s.logs[chatID][i].DurableID == durableID {
			return i, true
		}
	}
	return 0, false
}

// sortLocked re-establishes ascending timestamp order. Stable so that
// equal-timestamp messages keep their arrival order.
func (s *Store) sortLocked(chatID string) {
	log := s.logs[chatID]
	sort.SliceStable(log, func(i, j int) bool {
		return log[i].CreatedAt < log[j].CreatedAt
	})
}

func (s *Store) publishUpserted(m *Message) {
	s.publish(bus.KindMessageUpserted, *m)
}

func (s *Store) publish(kind string, payload any) {
	if s.bus != nil {
		s.bus.Publish(kind, payload)
	}
}
