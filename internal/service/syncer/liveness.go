package syncer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultLivenessInterval = 30 * time.Second

// AliveFunc reports whether the feed transport is alive.
type AliveFunc func() bool

// LivenessChecker periodically checks the transport and reports to the Tracker.
type LivenessChecker struct {
	tracker  *Tracker
	alive    AliveFunc
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLivenessChecker(tracker *Tracker, alive AliveFunc, interval time.Duration, logger *zap.Logger) *LivenessChecker {
	if interval <= 0 {
		interval = DefaultLivenessInterval
	}
	return &LivenessChecker{
		tracker:  tracker,
		alive:    alive,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the ticker loop. Starting a running checker is a no-op.
func (c *LivenessChecker) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.done)
}

func (c *LivenessChecker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info("Liveness checker started", zap.Duration("interval", c.interval))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Liveness checker stopped")
			return
		case <-ticker.C:
			c.tracker.SetAlive(c.alive())
		}
	}
}

// Stop cancels the ticker and waits for the loop to exit. Idempotent.
func (c *LivenessChecker) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
