package market

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sensen312/GobTrades-sub000/internal/bus"
	"go.uber.org/zap"
)

// Clock tracks whether the weekend goblin market is open and flips the
// state on a cron schedule. Transitions are published on the bus so the
// connection layer and UI surfaces can react without polling.
type Clock struct {
	cron   *cron.Cron
	bus    *bus.Bus
	logger *zap.Logger

	mu   sync.Mutex
	open bool
}

// NewClock creates a market clock with the given open and close cron
// specs (standard five-field format). Invalid specs are rejected up
// front so a bad config fails at startup, not at the market bell.
func NewClock(openSpec, closeSpec string, b *bus.Bus, logger *zap.Logger) (*Clock, error) {
	c := &Clock{
		cron:   cron.New(),
		bus:    b,
		logger: logger,
	}
	if _, err := c.cron.AddFunc(openSpec, c.markOpen); err != nil {
		return nil, fmt.Errorf("market open spec %q: %w", openSpec, err)
	}
	if _, err := c.cron.AddFunc(closeSpec, c.markClosed); err != nil {
		return nil, fmt.Errorf("market close spec %q: %w", closeSpec, err)
	}
	return c, nil
}

// Start begins the schedule.
func (c *Clock) Start() {
	c.cron.Start()
	c.logger.Info("market clock started")
}

// Stop halts the schedule. Already-running callbacks finish.
func (c *Clock) Stop() {
	c.cron.Stop()
}

// IsOpen reports the current market state.
func (c *Clock) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// SetOpen forces the state without publishing, for bootstrap when the
// backend reports the authoritative market state.
func (c *Clock) SetOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *Clock) markOpen() {
	c.mu.Lock()
	changed := !c.open
	c.open = true
	c.mu.Unlock()
	if !changed {
		return
	}
	c.logger.Info("market opened")
	c.bus.Publish(bus.KindMarketOpened, nil)
}

func (c *Clock) markClosed() {
	c.mu.Lock()
	changed := c.open
	c.open = false
	c.mu.Unlock()
	if !changed {
		return
	}
	c.logger.Info("market closed")
	c.bus.Publish(bus.KindMarketClosed, nil)
}
