package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"concretesync/pkg/trace"
)

// MemoryFeed is an in-process feed for single-node development and tests.
// Publish delivers synchronously to every live subscription watching the table.
type MemoryFeed struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]*memorySubscription
}

func NewMemoryFeed(logger *zap.Logger) *MemoryFeed {
	return &MemoryFeed{logger: logger, subs: make(map[int]*memorySubscription)}
}

func (f *MemoryFeed) Subscribe(_ context.Context, tables []string, onEvent Handler, onState StateFunc) (Subscription, error) {
	onState(StatePending, nil)

	f.mu.Lock()
	f.nextID++
	sub := &memorySubscription{feed: f, id: f.nextID, tables: tables, onEvent: onEvent, onState: onState}
	f.subs[sub.id] = sub
	f.mu.Unlock()

	onState(StateSubscribed, nil)
	return sub, nil
}

// Publish delivers raw to matching subscriptions. Unreadable payloads go to everyone.
func (f *MemoryFeed) Publish(ctx context.Context, raw []byte) {
	table, ok := tableOf(raw)

	f.mu.Lock()
	targets := make([]*memorySubscription, 0, len(f.subs))
	for _, s := range f.subs {
		if !ok || watches(s.tables, table) {
			targets = append(targets, s)
		}
	}
	f.mu.Unlock()

	for _, s := range targets {
		s.deliver(trace.Ensure(ctx), raw)
	}
}

// Fail drops every subscription with err, as a transport failure would.
func (f *MemoryFeed) Fail(err error) {
	f.mu.Lock()
	subs := f.subs
	f.subs = make(map[int]*memorySubscription)
	f.mu.Unlock()

	for _, s := range subs {
		s.onState(StateError, err)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *MemoryFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type memorySubscription struct {
	feed    *MemoryFeed
	id      int
	tables  []string
	onEvent Handler
	onState StateFunc

	deliverMu sync.Mutex
	once      sync.Once
}

func (s *memorySubscription) deliver(ctx context.Context, raw []byte) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if err := s.onEvent(ctx, raw); err != nil {
		s.feed.logger.Warn("Change event handler failed", zap.Error(err))
	}
}

func (s *memorySubscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		_, live := s.feed.subs[s.id]
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
		if live {
			s.onState(StateClosed, nil)
		}
	})
}

func (s *memorySubscription) Alive() bool {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	_, live := s.feed.subs[s.id]
	return live
}
