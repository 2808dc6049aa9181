package conn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"github.com/sensen312/GobTrades-sub000/internal/hub"
	"github.com/sensen312/GobTrades-sub000/internal/status"
	"github.com/sensen312/GobTrades-sub000/internal/store"
	"github.com/sensen312/GobTrades-sub000/internal/unread"
	"go.uber.org/zap"
)

// Sentinel errors for locally-rejected sends. These are returned before any
// network activity and leave the message store untouched.
var (
	ErrNotConnected = errors.New("not connected to the hub")
	ErrEmptyPayload = errors.New("message has no text, image, or listing offer")
)

// Options tunes the manager's timing behavior.
type Options struct {
	// DialTimeout bounds a single handshake attempt.
	DialTimeout time.Duration
	// SendTimeout bounds how long a message may sit in status sending
	// before it is marked failed locally.
	SendTimeout time.Duration
	// Backoff is the reconnect delay schedule; attempts beyond its length
	// reuse the final entry.
	Backoff []time.Duration
}

// DefaultOptions returns the production timing defaults.
func DefaultOptions() Options {
	return Options{
		DialTimeout: 15 * time.Second,
		SendTimeout: 30 * time.Second,
		Backoff: []time.Duration{
			0, 2 * time.Second, 5 * time.Second,
			10 * time.Second, 30 * time.Second, 60 * time.Second,
		},
	}
}

// Manager owns the single live hub connection for the session. It drives
// the connection state machine, translates user sends into hub frames with
// optimistic local state, dispatches server pushes into the message store
// and unread tracker, and reconnects with backoff after unexpected drops.
type Manager struct {
	dialer  hub.Dialer
	machine *status.Machine
	store   *store.Store
	tracker *unread.Tracker
	bus     *bus.Bus
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	conn     hub.Conn
	identity string
	// gen invalidates read and reconnect loops from superseded
	// connections; every Start and Stop bumps it.
	gen    int
	timers map[string]*time.Timer
}

// NewManager creates a manager in the disconnected state.
func NewManager(d hub.Dialer, m *status.Machine, s *store.Store, t *unread.Tracker, b *bus.Bus, opts Options, logger *zap.Logger) *Manager {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultOptions().DialTimeout
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultOptions().SendTimeout
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultOptions().Backoff
	}
	return &Manager{
		dialer:  d,
		machine: m,
		store:   s,
		tracker: t,
		bus:     b,
		opts:    opts,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Identity returns the identity the manager is currently bound to, or empty.
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Start binds the manager to an identity and opens a hub connection in the
// background. A second Start for the same identity while connecting or
// connected is a no-op; any other prior connection is fully stopped before
// the new one begins, so two live handles can never coexist.
func (m *Manager) Start(identity string) {
	m.mu.Lock()
	cur := m.machine.Current()
	if m.identity == identity && (cur == status.Connecting || cur == status.Connected) {
		m.mu.Unlock()
		m.logger.Debug("start ignored, already active", zap.String("identity", identity))
		return
	}
	m.stopLocked()
	m.identity = identity
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	m.tracker.SetSelf(identity)
	_ = m.machine.Transition(status.Connecting)
	m.logger.Info("connecting to hub", zap.String("identity", identity))

	go m.connect(gen, identity)
}

// Stop tears down the connection, ending in the disconnected state. Safe to
// call repeatedly and from any state.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	m.gen++
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
	m.identity = ""
	_ = m.machine.Transition(status.Disconnected)
}

// connect performs the initial dial for a Start call. Failure here lands in
// the error state with the handle cleared, so a later Start can retry
// cleanly; automatic backoff only governs drops of an established
// connection.
func (m *Manager) connect(gen int, identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	defer cancel()

	c, err := m.dialer.Dial(ctx, identity)
	if err != nil {
		if m.stale(gen) {
			return
		}
		m.logger.Error("hub connection failed", zap.Error(err))
		_ = m.machine.Transition(status.Error)
		m.notify("could not reach the market hub")
		return
	}
	if !m.adopt(gen, c) {
		return
	}
	_ = m.machine.Transition(status.Connected)
	go m.readLoop(gen, c)
}

// adopt installs a freshly-dialed connection unless the generation has been
// superseded, in which case the connection is discarded.
func (m *Manager) adopt(gen int, c hub.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		_ = c.Close()
		return false
	}
	m.conn = c
	return true
}

func (m *Manager) stale(gen int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen != m.gen
}

// Send validates and transmits a message. The optimistic entry reaches the
// store before the network round-trip so the UI reflects it immediately; a
// confirm or fail push (or the send timeout) settles its final status.
func (m *Manager) Send(chatID, text, imageRef, offeredListingID string) error {
	msg := store.Message{
		CorrelationID:    uuid.NewString(),
		ChatID:           chatID,
		Text:             text,
		ImageRef:         imageRef,
		OfferedListingID: offeredListingID,
		CreatedAt:        time.Now().UnixMilli(),
		Status:           store.StatusSending,
	}
	if !msg.HasPayload() {
		m.notify("cannot send an empty message")
		return ErrEmptyPayload
	}

	m.mu.Lock()
	c := m.conn
	msg.SenderID = m.identity
	m.mu.Unlock()
	if c == nil || !m.machine.Is(status.Connected) {
		m.notify("cannot send while offline")
		return ErrNotConnected
	}

	if err := m.store.AppendOptimistic(msg); err != nil {
		return err
	}

	frame := hub.SendFrame{
		CorrelationID:    msg.CorrelationID,
		ChatID:           chatID,
		Text:             text,
		ImageRef:         imageRef,
		OfferedListingID: offeredListingID,
	}
	if err := c.Send(frame); err != nil {
		m.logger.Error("hub send failed", zap.Error(err),
			zap.String("correlation_id", msg.CorrelationID))
		m.store.MarkStatus(msg.CorrelationID, chatID, store.StatusFailed, "")
		m.publishSendFail(msg.CorrelationID, chatID, err.Error())
		m.notify("message could not be sent")
		return fmt.Errorf("send message: %w", err)
	}

	m.armSendTimer(m.currentGen(), msg.CorrelationID, chatID)
	return nil
}

// armSendTimer marks the message failed if no confirm or fail event arrives
// within the send timeout.
func (m *Manager) armSendTimer(gen int, correlationID, chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return
	}
	m.timers[correlationID] = time.AfterFunc(m.opts.SendTimeout, func() {
		m.mu.Lock()
		_, live := m.timers[correlationID]
		delete(m.timers, correlationID)
		m.mu.Unlock()
		if !live {
			return
		}
		m.logger.Warn("send confirmation timed out",
			zap.String("correlation_id", correlationID))
		m.store.MarkStatus(correlationID, chatID, store.StatusFailed, "")
		m.publishSendFail(correlationID, chatID, "timed out")
		m.notify("message could not be sent")
	})
}

func (m *Manager) cancelSendTimer(correlationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[correlationID]; ok {
		t.Stop()
		delete(m.timers, correlationID)
	}
}

func (m *Manager) readLoop(gen int, c hub.Conn) {
	for {
		evt, err := c.ReadEvent()
		if err != nil {
			m.handleReadError(gen, err)
			return
		}
		m.dispatch(evt)
	}
}

func (m *Manager) dispatch(evt *hub.ServerEvent) {
	switch evt.Type {
	case hub.EventMessage:
		m.store.AppendConfirmed(*evt.Message)
		m.tracker.OnInbound(*evt.Message)
	case hub.EventSendConfirmed:
		m.cancelSendTimer(evt.CorrelationID)
		m.store.AppendConfirmed(*evt.Message)
		m.bus.Publish(bus.KindMessageSendAck, map[string]string{
			"correlation_id": evt.CorrelationID,
			"durable_id":     evt.Message.DurableID,
		})
	case hub.EventSendFailed:
		m.cancelSendTimer(evt.CorrelationID)
		m.logger.Warn("hub rejected send",
			zap.String("correlation_id", evt.CorrelationID),
			zap.String("reason", evt.Reason))
		m.store.MarkStatus(evt.CorrelationID, evt.ChatID, store.StatusFailed, "")
		m.publishSendFail(evt.CorrelationID, evt.ChatID, evt.Reason)
		m.notify("message could not be delivered")
	}
}

// handleReadError runs when the read loop dies. A deliberate Stop has
// already bumped the generation and settled the state; anything else is
// either an unrecoverable rejection (error state) or a transient drop
// (reconnect with backoff).
func (m *Manager) handleReadError(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	identity := m.identity
	m.mu.Unlock()

	if hub.IsUnrecoverableClose(err) {
		m.logger.Error("hub closed connection", zap.Error(err))
		_ = m.machine.Transition(status.Error)
		m.notify("disconnected from the market hub")
		return
	}

	m.logger.Warn("hub connection lost, reconnecting", zap.Error(err))
	_ = m.machine.Transition(status.Connecting)
	m.notify("connection lost, reconnecting")
	go m.reconnectLoop(gen, identity)
}

// reconnectLoop retries until connected, superseded, or the hub rejects us
// for good. The caller does not need to invoke Start again.
func (m *Manager) reconnectLoop(gen int, identity string) {
	for attempt := 0; ; attempt++ {
		time.Sleep(m.backoffDelay(attempt))
		if m.stale(gen) {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
		c, err := m.dialer.Dial(ctx, identity)
		cancel()
		if err != nil {
			if m.stale(gen) {
				return
			}
			m.logger.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		if !m.adopt(gen, c) {
			return
		}
		_ = m.machine.Transition(status.Connected)
		m.logger.Info("reconnected to hub", zap.Int("attempts", attempt+1))
		go m.readLoop(gen, c)
		return
	}
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	if attempt >= len(m.opts.Backoff) {
		return m.opts.Backoff[len(m.opts.Backoff)-1]
	}
	return m.opts.Backoff[attempt]
}

func (m *Manager) publishSendFail(correlationID, chatID, reason string) {
	m.bus.Publish(bus.KindMessageSendFail, map[string]string{
		"correlation_id": correlationID,
		"chat_id":        chatID,
		"reason":         reason,
	})
}

func (m *Manager) notify(text string) {
	m.bus.Publish(bus.KindNotifyUser, text)
}

func (m *Manager) currentGen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}
