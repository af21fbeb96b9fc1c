package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisSlot stores the latest value under key and announces it on channel.
type RedisSlot struct {
	rdb     *redis.Client
	key     string
	channel string
	logger  *zap.Logger
}

func NewRedisSlot(rdb *redis.Client, key, channel string, logger *zap.Logger) *RedisSlot {
	return &RedisSlot{rdb: rdb, key: key, channel: channel, logger: logger}
}

func (s *RedisSlot) Write(ctx context.Context, value []byte) error {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, value, 0)
		pipe.Publish(ctx, s.channel, value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write broadcast slot: %w", err)
	}
	return nil
}

func (s *RedisSlot) Watch(ctx context.Context, fn func(value []byte)) error {
	ps := s.rdb.Subscribe(ctx, s.channel)
	defer ps.Close()

	// 等待订阅确认，之后的写入不会丢失
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.logger.Info("Subscribed to broadcast channel",
		zap.String("channel", s.channel),
		zap.String("key", s.key),
	)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn([]byte(msg.Payload))
		}
	}
}

// MemorySlot is an in-process Slot shared by several buses (single node, tests).
type MemorySlot struct {
	mu       sync.Mutex
	value    []byte
	nextID   int
	watchers map[int]func([]byte)
}

func NewMemorySlot() *MemorySlot {
	return &MemorySlot{watchers: make(map[int]func([]byte))}
}

// Write stores value and notifies every watcher synchronously.
func (s *MemorySlot) Write(_ context.Context, value []byte) error {
	s.mu.Lock()
	s.value = append([]byte(nil), value...)
	fns := make([]func([]byte), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(value)
	}
	return nil
}

func (s *MemorySlot) Watch(ctx context.Context, fn func(value []byte)) error {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	delete(s.watchers, id)
	s.mu.Unlock()
	return nil
}

// Value returns the last written value.
func (s *MemorySlot) Value() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Watchers returns the number of active watchers.
func (s *MemorySlot) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}
