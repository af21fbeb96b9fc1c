package syncer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"concretesync/internal/feed"
	"concretesync/internal/model"
	"concretesync/internal/realtime"
	"concretesync/pkg/metrics"
)

// Tracker holds connection liveness, last-sync time and the sync counter.
// Every change is pushed to connected dashboards.
type Tracker struct {
	hub    *realtime.Hub
	logger *zap.Logger

	mu        sync.RWMutex
	state     feed.State
	connected bool
	lastSync  *time.Time
	syncCount int64
}

func NewTracker(hub *realtime.Hub, logger *zap.Logger) *Tracker {
	return &Tracker{
		hub:    hub,
		logger: logger,
		state:  feed.StatePending,
	}
}

// SetState records a subscription lifecycle transition; connected is true iff subscribed.
func (t *Tracker) SetState(state feed.State, err error) {
	t.mu.Lock()
	prev := t.state
	t.state = state
	t.connected = state == feed.StateSubscribed
	connected := t.connected
	t.mu.Unlock()

	metrics.SetFeedConnected(connected)
	fields := []zap.Field{
		zap.String("from", string(prev)),
		zap.String("to", string(state)),
	}
	if err != nil {
		t.logger.Warn("Change feed subscription state changed", append(fields, zap.Error(err))...)
	} else {
		t.logger.Info("Change feed subscription state changed", fields...)
	}
	t.push()
}

// RecordSync counts one reconciled event.
func (t *Tracker) RecordSync(now time.Time) {
	t.mu.Lock()
	t.syncCount++
	t.lastSync = &now
	t.mu.Unlock()
	t.push()
}

// SetAlive is driven by the liveness checker. A failed check clears connected;
// a passing check restores it only while the subscription is still subscribed.
func (t *Tracker) SetAlive(alive bool) {
	t.mu.Lock()
	want := alive && t.state == feed.StateSubscribed
	changed := want != t.connected
	t.connected = want
	t.mu.Unlock()

	if !changed {
		return
	}
	metrics.SetFeedConnected(want)
	t.logger.Info("Change feed liveness changed", zap.Bool("connected", want))
	t.push()
}

func (t *Tracker) Snapshot() model.SyncStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := model.SyncStatus{
		Connected: t.connected,
		State:     string(t.state),
		SyncCount: t.syncCount,
	}
	if t.lastSync != nil {
		last := *t.lastSync
		s.LastSync = &last
	}
	return s
}

func (t *Tracker) push() {
	t.hub.Publish(realtime.Event{Event: realtime.EventSyncStatus, Data: t.Snapshot()})
}
