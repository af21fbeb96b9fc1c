package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"concretesync/pkg/metrics"
)

// Event is the signal record written to the shared slot.
type Event struct {
	EventName string          `json:"event_name"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // ms
	Origin    string          `json:"origin"`
}

// Listener receives the raw JSON payload of a broadcast.
type Listener func(ctx context.Context, payload json.RawMessage)

// Slot 跨实例共享的信号槽，只保留最后一次写入（last-write-wins）
type Slot interface {
	Write(ctx context.Context, value []byte) error
	// Watch blocks, calling fn with every value written by any instance, until ctx is done.
	Watch(ctx context.Context, fn func(value []byte)) error
}

type registration struct {
	id       uint64
	listener Listener
}

// Bus delivers events to local listeners synchronously and to sibling instances through a Slot.
// An instance never re-receives its own writes through the slot.
type Bus struct {
	origin string
	slot   Slot
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	listeners map[string][]registration
	nextID    uint64
}

func NewBus(slot Slot, origin string, logger *zap.Logger) *Bus {
	return &Bus{
		origin:    origin,
		slot:      slot,
		logger:    logger,
		now:       time.Now,
		listeners: make(map[string][]registration),
	}
}

// Origin returns this instance's id as written into every event.
func (b *Bus) Origin() string {
	return b.origin
}

// Subscribe registers l for name. The returned func removes exactly this registration;
// calling it again is a no-op.
func (b *Bus) Subscribe(name string, l Listener) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.listeners[name] = append(b.listeners[name], registration{id: id, listener: l})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			regs := b.listeners[name]
			for i, r := range regs {
				if r.id == id {
					b.listeners[name] = append(regs[:i:i], regs[i+1:]...)
					break
				}
			}
			if len(b.listeners[name]) == 0 {
				delete(b.listeners, name)
			}
		})
	}
}

// Broadcast invokes local listeners synchronously, then writes the event to the shared slot.
// Slot failures are logged, never returned.
func (b *Bus) Broadcast(ctx context.Context, name string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to encode broadcast payload",
			zap.String("event", name),
			zap.Error(err),
		)
		return
	}

	b.dispatch(ctx, name, raw)
	metrics.RecordBroadcast(name, "local")

	value, err := json.Marshal(Event{
		EventName: name,
		Payload:   raw,
		Timestamp: b.now().UnixMilli(),
		Origin:    b.origin,
	})
	if err != nil {
		b.logger.Error("Failed to encode broadcast event", zap.Error(err))
		return
	}
	if err := b.slot.Write(ctx, value); err != nil {
		metrics.RecordBroadcast(name, "publish_failed")
		b.logger.Warn("Failed to write broadcast slot",
			zap.String("event", name),
			zap.Error(err),
		)
	}
}

// Start watches the shared slot until ctx is cancelled. Blocks.
func (b *Bus) Start(ctx context.Context) error {
	b.logger.Info("Broadcast bus watching shared slot", zap.String("origin", b.origin))
	return b.slot.Watch(ctx, func(value []byte) {
		b.receive(ctx, value)
	})
}

func (b *Bus) receive(ctx context.Context, value []byte) {
	var ev Event
	if err := json.Unmarshal(value, &ev); err != nil {
		b.logger.Warn("Dropping malformed broadcast value", zap.Error(err))
		return
	}
	if ev.Origin == b.origin {
		return
	}
	metrics.RecordBroadcast(ev.EventName, "remote")
	b.dispatch(ctx, ev.EventName, ev.Payload)
}

func (b *Bus) dispatch(ctx context.Context, name string, payload json.RawMessage) {
	b.mu.RLock()
	regs := make([]registration, len(b.listeners[name]))
	copy(regs, b.listeners[name])
	b.mu.RUnlock()

	for _, r := range regs {
		b.invoke(ctx, name, r.listener, payload)
	}
}

func (b *Bus) invoke(ctx context.Context, name string, l Listener, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Broadcast listener panic recovered",
				zap.String("event", name),
				zap.Any("panic", r),
			)
		}
	}()
	l(ctx, payload)
}
