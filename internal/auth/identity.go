package auth

import (
	"sync"

	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"go.uber.org/zap"
)

// Identity holds the current user id and announces changes on the bus.
// The engine watches those announcements to (re)connect the hub session
// under the new identity or tear it down on sign-out.
type Identity struct {
	bus    *bus.Bus
	logger *zap.Logger

	mu      sync.Mutex
	current string
}

func New(b *bus.Bus, logger *zap.Logger) *Identity {
	return &Identity{bus: b, logger: logger}
}

// Current returns the active user id, empty when signed out.
func (i *Identity) Current() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current
}

// Set records a new user id. Setting the same id again is a no-op.
func (i *Identity) Set(userID string) {
	i.mu.Lock()
	if i.current == userID {
		i.mu.Unlock()
		return
	}
	i.current = userID
	i.mu.Unlock()

	i.logger.Info("identity changed", zap.String("user_id", userID))
	i.bus.Publish(bus.KindAuthIdentityChanged, userID)
}

// Clear signs out. A no-op when already signed out.
func (i *Identity) Clear() {
	i.Set("")
}
