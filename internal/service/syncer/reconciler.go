package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	mqcontracts "concretesync/contracts/mq"
	"concretesync/internal/broadcast"
	"concretesync/internal/feed"
	"concretesync/internal/mqhandler"
	"concretesync/internal/realtime"
	"concretesync/internal/service/notification"
	"concretesync/pkg/logger"
	"concretesync/pkg/metrics"
)

// EventSync is the bus event mirrored to sibling instances after each reconciled change.
const EventSync = "sync"

// WatchedTables are the tables covered by the single feed subscription. The query key of
// each table is the table name.
var WatchedTables = []string{"orders", "deliveries", "sites", "structures", "notifications"}

type Invalidator interface {
	Invalidate(ctx context.Context, queryKey string) error
}

type Deduper interface {
	AcquireOnce(ctx context.Context, scope, id string) bool
}

// SyncHint is the payload of EventSync.
type SyncHint struct {
	Table     string `json:"table"`
	EventType string `json:"event_type"`
}

// Reconciler applies change-feed events: invalidate the table's query, count the sync,
// dispatch derived notifications and mirror a hint to sibling instances.
type Reconciler struct {
	feed       feed.Feed
	tracker    *Tracker
	cache      Invalidator
	dedup      Deduper
	dispatcher *notification.Dispatcher
	bus        *broadcast.Bus
	hub        *realtime.Hub
	handler    *mqhandler.ChangeEventHandler
	now        func() time.Time
	logger     *zap.Logger

	mu  sync.Mutex
	sub feed.Subscription
}

func NewReconciler(
	f feed.Feed,
	tracker *Tracker,
	cache Invalidator,
	dedup Deduper,
	dispatcher *notification.Dispatcher,
	bus *broadcast.Bus,
	hub *realtime.Hub,
	logger *zap.Logger,
) *Reconciler {
	r := &Reconciler{
		feed:       f,
		tracker:    tracker,
		cache:      cache,
		dedup:      dedup,
		dispatcher: dispatcher,
		bus:        bus,
		hub:        hub,
		now:        time.Now,
		logger:     logger,
	}
	r.handler = mqhandler.NewChangeEventHandler(WatchedTables, r.Apply, logger)
	return r
}

// Start subscribes to the feed. Failures only surface through the tracker; starting an
// already subscribed reconciler is a no-op.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}

	sub, err := r.feed.Subscribe(ctx, WatchedTables, r.handler.Handle, r.tracker.SetState)
	if err != nil {
		r.logger.Error("Failed to subscribe to change feed", zap.Error(err))
		return
	}
	r.sub = sub
}

// Stop unsubscribes. Safe to call repeatedly and before Start.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

// Alive is the liveness check for the current subscription.
func (r *Reconciler) Alive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub != nil && r.sub.Alive()
}

// Apply runs the reconciliation steps for one decoded event of a watched table.
func (r *Reconciler) Apply(ctx context.Context, ev mqcontracts.ChangeEvent) {
	log := logger.WithTrace(ctx, r.logger)

	// 每个实例都有独立队列，去重范围限定在本实例
	if ev.EventID != "" && r.dedup != nil && !r.dedup.AcquireOnce(ctx, "feed:"+r.bus.Origin(), ev.EventID) {
		metrics.RecordFeedDropped("duplicate")
		return
	}

	if err := r.cache.Invalidate(ctx, ev.Table); err != nil {
		log.Warn("Query invalidation failed",
			zap.String("query_key", ev.Table),
			zap.Error(err),
		)
	}
	r.tracker.RecordSync(r.now())

	r.notify(ctx, ev)

	r.bus.Broadcast(ctx, EventSync, SyncHint{Table: ev.Table, EventType: string(ev.EventType)})
}

// ListenSiblings forwards sibling sync hints to local dashboards while this instance's own
// feed is disconnected. Returns the unsubscribe func.
func (r *Reconciler) ListenSiblings() func() {
	return r.bus.Subscribe(EventSync, func(ctx context.Context, payload json.RawMessage) {
		if r.tracker.Snapshot().Connected {
			return
		}
		var hint SyncHint
		if err := json.Unmarshal(payload, &hint); err != nil {
			r.logger.Warn("Ignoring malformed sync hint", zap.Error(err))
			return
		}
		r.hub.Publish(realtime.Event{
			Event: realtime.EventInvalidate,
			Data:  map[string]any{"query_key": hint.Table, "hint": true},
		})
	})
}
