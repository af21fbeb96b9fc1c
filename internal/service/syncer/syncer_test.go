package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "concretesync/contracts/mq"
	"concretesync/internal/broadcast"
	"concretesync/internal/display"
	"concretesync/internal/feed"
	"concretesync/internal/kv"
	"concretesync/internal/model"
	"concretesync/internal/querycache"
	"concretesync/internal/realtime"
	"concretesync/internal/service/notification"
	"concretesync/pkg/util"
)

type harness struct {
	feed       *feed.MemoryFeed
	tracker    *Tracker
	reconciler *Reconciler
	records    *notification.Service
	configs    *notification.ConfigStore
	bus        *broadcast.Bus
	hub        *realtime.Hub
	rdb        *redis.Client
}

func newHarness(t *testing.T, f *feed.MemoryFeed, slot *broadcast.MemorySlot, mr *miniredis.Miniredis, origin string) *harness {
	t.Helper()
	log := zap.NewNop()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := realtime.NewHub()
	bus := broadcast.NewBus(slot, origin, log)
	configs := notification.NewConfigStore(kv.NewMemoryStore(), "", bus, log)
	records := notification.NewService(notification.NewStore(notification.DefaultCapacity), nil, bus, hub, log)
	t.Cleanup(records.Close)
	dispatcher := notification.NewDispatcher(configs, records, display.NewSSEDisplay(hub), notification.DispatcherOptions{Location: time.UTC}, log)
	t.Cleanup(dispatcher.Close)

	tracker := NewTracker(hub, log)
	r := NewReconciler(f, tracker, querycache.NewInvalidator(rdb, hub, log), util.NewDeduper(rdb, time.Minute, log), dispatcher, bus, hub, log)
	t.Cleanup(r.Stop)

	return &harness{feed: f, tracker: tracker, reconciler: r, records: records, configs: configs, bus: bus, hub: hub, rdb: rdb}
}

func single(t *testing.T) *harness {
	t.Helper()
	return newHarness(t, feed.NewMemoryFeed(zap.NewNop()), broadcast.NewMemorySlot(), miniredis.RunT(t), "a")
}

func publish(f *feed.MemoryFeed, format string, args ...any) {
	f.Publish(context.Background(), []byte(fmt.Sprintf(format, args...)))
}

func TestReconciler_OrderInsertEndToEnd(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())
	require.True(t, h.tracker.Snapshot().Connected)

	var hints []SyncHint
	h.bus.Subscribe(EventSync, func(_ context.Context, raw json.RawMessage) {
		var hint SyncHint
		require.NoError(t, json.Unmarshal(raw, &hint))
		hints = append(hints, hint)
	})

	publish(h.feed, `{"table":"orders","event_type":"INSERT","before":null,"after":{"id":"X","volume":35,"status":"Pending"}}`)

	list := h.records.List()
	require.Len(t, list, 1)
	assert.Equal(t, model.CategoryOrderUpdate, list[0].Category)
	assert.Equal(t, "order-X", list[0].Tag)

	status := h.tracker.Snapshot()
	assert.Equal(t, int64(1), status.SyncCount)
	assert.NotNil(t, status.LastSync)
	assert.True(t, status.Connected)

	gen, err := h.rdb.Get(context.Background(), "querycache:gen:orders").Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
	assert.Equal(t, []SyncHint{{Table: "orders", EventType: "INSERT"}}, hints)
}

func TestReconciler_TranslationRules(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())

	publish(h.feed, `{"table":"orders","event_type":"UPDATE","before":{"id":"1","status":"Pending"},"after":{"id":"1","status":"Pending"}}`)
	publish(h.feed, `{"table":"orders","event_type":"UPDATE","before":{"id":"1","status":"Pending"},"after":{"id":"1","status":"Dispatched"}}`)
	publish(h.feed, `{"table":"orders","event_type":"DELETE","before":{"id":"1"}}`)
	publish(h.feed, `{"table":"deliveries","event_type":"UPDATE","before":{"id":"7","eta_minutes":20},"after":{"id":"7","eta_minutes":12,"status":"en_route"}}`)
	publish(h.feed, `{"table":"deliveries","event_type":"UPDATE","before":{"id":"7","eta_minutes":12},"after":{"id":"7","eta_minutes":5,"status":"en_route"}}`)
	publish(h.feed, `{"table":"deliveries","event_type":"INSERT","after":{"id":"8","eta_minutes":10,"status":"Delivered"}}`)
	publish(h.feed, `{"table":"deliveries","event_type":"INSERT","after":{"id":"9","eta_minutes":45}}`)
	publish(h.feed, `{"table":"notifications","event_type":"INSERT","after":{"id":"n1","title":"Frost","message":"Cover slabs","category":"weather_alert"}}`)
	publish(h.feed, `{"table":"notifications","event_type":"INSERT","after":{"id":"n2","title":"Hi","category":"marketing"}}`)
	publish(h.feed, `{"table":"sites","event_type":"UPDATE","after":{"id":"s1"}}`)
	publish(h.feed, `{"table":"structures","event_type":"INSERT","after":{"id":"st1"}}`)

	var got []string
	for _, r := range h.records.List() {
		got = append(got, string(r.Category)+":"+r.Tag)
	}
	assert.Equal(t, []string{
		"system:notification-n2",
		"weather_alert:notification-n1",
		"urgent_delivery:delivery-7",
		"order_update:order-1",
	}, got)
	assert.Equal(t, int64(11), h.tracker.Snapshot().SyncCount)
}

func TestReconciler_CategoryDisabledStillSyncs(t *testing.T) {
	h := single(t)
	cfg := model.DefaultNotificationConfig()
	cfg.Categories[model.CategoryOrderUpdate] = false
	_, err := h.configs.Save(context.Background(), cfg)
	require.NoError(t, err)
	h.reconciler.Start(context.Background())

	publish(h.feed, `{"table":"orders","event_type":"INSERT","after":{"id":"X"}}`)

	assert.Empty(t, h.records.List())
	assert.Equal(t, int64(1), h.tracker.Snapshot().SyncCount)
}

func TestReconciler_InstancesSharingRedisEachApplyEvents(t *testing.T) {
	f := feed.NewMemoryFeed(zap.NewNop())
	slot := broadcast.NewMemorySlot()
	mr := miniredis.RunT(t)
	a := newHarness(t, f, slot, mr, "a")
	b := newHarness(t, f, slot, mr, "b")
	a.reconciler.Start(context.Background())
	b.reconciler.Start(context.Background())

	publish(f, `{"table":"orders","event_type":"INSERT","after":{"id":"X"},"event_id":"evt-1"}`)
	publish(f, `{"table":"orders","event_type":"INSERT","after":{"id":"Y"},"commit_timestamp":"2026-03-01T10:00:00Z"}`)

	for _, h := range []*harness{a, b} {
		assert.Equal(t, int64(2), h.tracker.Snapshot().SyncCount)
		require.Len(t, h.records.List(), 2)
	}
	assert.Equal(t, a.records.List()[0].ID, b.records.List()[0].ID)
	assert.Equal(t, a.records.List()[1].ID, b.records.List()[1].ID)

	// redelivery to both instances is still dropped once per instance
	publish(f, `{"table":"orders","event_type":"INSERT","after":{"id":"X"},"event_id":"evt-1"}`)
	assert.Equal(t, int64(2), a.tracker.Snapshot().SyncCount)
	assert.Equal(t, int64(2), b.tracker.Snapshot().SyncCount)
}

func TestReconciler_RepeatedUpdatesWithoutIdentityEachRecorded(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())

	publish(h.feed, `{"table":"orders","event_type":"UPDATE","before":{"id":"1","status":"Pending"},"after":{"id":"1","status":"Confirmed"}}`)
	publish(h.feed, `{"table":"orders","event_type":"UPDATE","before":{"id":"1","status":"Confirmed"},"after":{"id":"1","status":"Dispatched"}}`)

	list := h.records.List()
	require.Len(t, list, 2)
	assert.NotEqual(t, list[0].ID, list[1].ID)
	assert.Equal(t, "Order 1 is now Dispatched", list[0].Body)
	assert.Equal(t, "Order 1 is now Confirmed", list[1].Body)
}

func TestRecordID(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := func(before, after string) mqcontracts.ChangeEvent {
		return mqcontracts.ChangeEvent{
			Table:           "orders",
			EventType:       mqcontracts.EventUpdate,
			Before:          mqcontracts.Row{"id": "1", "status": before},
			After:           mqcontracts.Row{"id": "1", "status": after},
			CommitTimestamp: at,
		}
	}

	assert.Equal(t, recordID(ev("Pending", "Confirmed"), "1"), recordID(ev("Pending", "Confirmed"), "1"))
	assert.NotEqual(t, recordID(ev("Pending", "Confirmed"), "1"), recordID(ev("Confirmed", "Dispatched"), "1"))

	withID := ev("Pending", "Confirmed")
	withID.EventID = "evt-9"
	other := ev("Confirmed", "Dispatched")
	other.EventID = "evt-9"
	assert.Equal(t, recordID(withID, "1"), recordID(other, "1"))

	noTime := ev("Pending", "Confirmed")
	noTime.CommitTimestamp = time.Time{}
	assert.NotEqual(t, recordID(noTime, "1"), recordID(noTime, "1"))
}

func TestReconciler_DuplicateEventIDAppliedOnce(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())

	for i := 0; i < 2; i++ {
		publish(h.feed, `{"table":"orders","event_type":"INSERT","after":{"id":"X"},"event_id":"evt-1"}`)
	}
	assert.Equal(t, int64(1), h.tracker.Snapshot().SyncCount)
	assert.Len(t, h.records.List(), 1)
}

func TestReconciler_MalformedAndUnwatchedDropped(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())

	publish(h.feed, `{"table":`)
	publish(h.feed, `{"table":"orders","event_type":"UPSERT"}`)
	publish(h.feed, `{"table":"invoices","event_type":"INSERT"}`)

	assert.Equal(t, int64(0), h.tracker.Snapshot().SyncCount)
	assert.True(t, h.tracker.Snapshot().Connected)

	// the subscription survives
	publish(h.feed, `{"table":"sites","event_type":"INSERT","after":{"id":"s"}}`)
	assert.Equal(t, int64(1), h.tracker.Snapshot().SyncCount)
}

func TestReconciler_Lifecycle(t *testing.T) {
	h := single(t)
	h.reconciler.Stop()
	assert.Equal(t, string(feed.StatePending), h.tracker.Snapshot().State)

	h.reconciler.Start(context.Background())
	h.reconciler.Start(context.Background())
	assert.Equal(t, 1, h.feed.Subscribers())
	assert.True(t, h.reconciler.Alive())

	h.reconciler.Stop()
	h.reconciler.Stop()
	assert.Equal(t, 0, h.feed.Subscribers())
	assert.False(t, h.tracker.Snapshot().Connected)
	assert.Equal(t, string(feed.StateClosed), h.tracker.Snapshot().State)
	assert.False(t, h.reconciler.Alive())

	// remount
	h.reconciler.Start(context.Background())
	assert.True(t, h.tracker.Snapshot().Connected)

	publish(h.feed, `{"table":"sites","event_type":"INSERT","after":{"id":"s"}}`)
	assert.Equal(t, int64(1), h.tracker.Snapshot().SyncCount)
}

func TestReconciler_TransportErrorDisconnects(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())

	h.feed.Fail(errors.New("socket closed"))

	status := h.tracker.Snapshot()
	assert.False(t, status.Connected)
	assert.Equal(t, string(feed.StateError), status.State)
}

func TestReconciler_SiblingHintsWhileDisconnected(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slot := broadcast.NewMemorySlot()
	mr := miniredis.RunT(t)
	a := newHarness(t, feed.NewMemoryFeed(zap.NewNop()), slot, mr, "a")
	b := newHarness(t, feed.NewMemoryFeed(zap.NewNop()), slot, mr, "b")
	go func() { _ = b.bus.Start(ctx) }()
	require.Eventually(t, func() bool { return slot.Watchers() == 1 }, time.Second, time.Millisecond)
	defer b.reconciler.ListenSiblings()()

	a.reconciler.Start(ctx)
	events, cleanup := b.hub.Subscribe()
	defer cleanup()

	// b never subscribed, so it is disconnected and relays a's hint
	publish(a.feed, `{"table":"deliveries","event_type":"UPDATE","after":{"id":"1"}}`)

	select {
	case ev := <-events:
		assert.Equal(t, realtime.EventInvalidate, ev.Event)
		assert.Equal(t, map[string]any{"query_key": "deliveries", "hint": true}, ev.Data)
	case <-time.After(time.Second):
		t.Fatal("hint was not relayed")
	}
}

func TestLivenessChecker(t *testing.T) {
	h := single(t)
	h.reconciler.Start(context.Background())

	results := make(chan bool, 1)
	results <- false
	alive := func() bool {
		select {
		case v := <-results:
			return v
		default:
			return true
		}
	}

	c := NewLivenessChecker(h.tracker, alive, 5*time.Millisecond, zap.NewNop())
	c.Stop()
	c.Start(context.Background())
	c.Start(context.Background())
	defer c.Stop()

	require.Eventually(t, func() bool { return !h.tracker.Snapshot().Connected }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.tracker.Snapshot().Connected }, time.Second, time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestTracker_PushesSnapshots(t *testing.T) {
	hub := realtime.NewHub()
	events, cleanup := hub.Subscribe()
	defer cleanup()
	tr := NewTracker(hub, zap.NewNop())

	tr.SetState(feed.StateSubscribed, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.RecordSync(now)
	tr.RecordSync(now.Add(time.Second))

	var last model.SyncStatus
	for i := 0; i < 3; i++ {
		ev := <-events
		assert.Equal(t, realtime.EventSyncStatus, ev.Event)
		last = ev.Data.(model.SyncStatus)
	}
	assert.Equal(t, int64(2), last.SyncCount)
	assert.Equal(t, now.Add(time.Second), *last.LastSync)

	// a passing check never marks a closed subscription connected
	tr.SetState(feed.StateClosed, nil)
	tr.SetAlive(true)
	assert.False(t, tr.Snapshot().Connected)
}
