package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"concretesync/internal/broadcast"
	"concretesync/internal/model"
	"concretesync/internal/realtime"
	"concretesync/pkg/logger"
)

const (
	EventRead    = "notifications:read"
	EventReadAll = "notifications:read_all"
)

const (
	persistTimeout   = 5 * time.Second
	persistQueueSize = 256
)

// Repository is the external notification store.
type Repository interface {
	ListRecent(ctx context.Context, limit int) ([]model.Record, error)
	Insert(ctx context.Context, rec model.Record) error
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context) error
}

type readPayload struct {
	ID uuid.UUID `json:"id"`
}

// ReadState is pushed to dashboards whenever read state changes.
type ReadState struct {
	ID          *uuid.UUID `json:"id,omitempty"`
	All         bool       `json:"all,omitempty"`
	UnreadCount int        `json:"unread_count"`
}

type persistJob struct {
	op  string
	ctx context.Context
	fn  func(ctx context.Context) error
}

// Service wraps the local Store with write-through persistence and read-state mirroring
// across instances. Persistence is fire-and-forget: failures are logged.
// Writes reach the repository in the order they were made.
type Service struct {
	store  *Store
	repo   Repository
	bus    *broadcast.Bus
	hub    *realtime.Hub
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	jobs   chan persistJob
	done   chan struct{}
}

func NewService(store *Store, repo Repository, bus *broadcast.Bus, hub *realtime.Hub, logger *zap.Logger) *Service {
	s := &Service{
		store:  store,
		repo:   repo,
		bus:    bus,
		hub:    hub,
		logger: logger,
		jobs:   make(chan persistJob, persistQueueSize),
		done:   make(chan struct{}),
	}
	go s.persistLoop()
	return s
}

// Seed loads the newest records from the repository.
func (s *Service) Seed(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	records, err := s.repo.ListRecent(ctx, s.store.Capacity())
	if err != nil {
		return err
	}
	s.store.Seed(records)
	s.logger.Info("Notification store seeded",
		zap.Int("records", len(records)),
		zap.Int("unread", s.store.UnreadCount()),
	)
	return nil
}

func (s *Service) Append(ctx context.Context, rec model.Record) bool {
	if !s.store.Append(rec) {
		return false
	}
	s.persist(ctx, "insert", func(ctx context.Context) error {
		return s.repo.Insert(ctx, rec)
	})
	return true
}

func (s *Service) List() []model.Record {
	return s.store.List()
}

func (s *Service) UnreadCount() int {
	return s.store.UnreadCount()
}

// MarkRead marks one record read here, persists it and mirrors it to sibling instances.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) bool {
	if !s.store.MarkRead(id) {
		return false
	}
	s.persist(ctx, "mark_read", func(ctx context.Context) error {
		return s.repo.MarkAsRead(ctx, id)
	})
	s.pushReadState(ReadState{ID: &id})
	s.bus.Broadcast(ctx, EventRead, readPayload{ID: id})
	return true
}

func (s *Service) MarkAllRead(ctx context.Context) int {
	changed := s.store.MarkAllRead()
	s.persist(ctx, "mark_all_read", func(ctx context.Context) error {
		return s.repo.MarkAllAsRead(ctx)
	})
	s.pushReadState(ReadState{All: true})
	s.bus.Broadcast(ctx, EventReadAll, struct{}{})
	return changed
}

// Listen applies read state changed on sibling instances. Returns the unsubscribe func.
func (s *Service) Listen() func() {
	unsubRead := s.bus.Subscribe(EventRead, func(ctx context.Context, payload json.RawMessage) {
		var p readPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			s.logger.Warn("Ignoring malformed read broadcast", zap.Error(err))
			return
		}
		if s.store.MarkRead(p.ID) {
			s.pushReadState(ReadState{ID: &p.ID})
		}
	})
	unsubAll := s.bus.Subscribe(EventReadAll, func(ctx context.Context, _ json.RawMessage) {
		if s.store.MarkAllRead() > 0 {
			s.pushReadState(ReadState{All: true})
		}
	})
	return func() {
		unsubRead()
		unsubAll()
	}
}

// Close flushes queued persistence work. Idempotent; no writes may follow it.
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()
	<-s.done
}

func (s *Service) pushReadState(state ReadState) {
	state.UnreadCount = s.store.UnreadCount()
	s.hub.Publish(realtime.Event{Event: realtime.EventNotificationsRead, Data: state})
}

func (s *Service) persist(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if s.repo == nil {
		return
	}
	job := persistJob{op: op, ctx: context.WithoutCancel(ctx), fn: fn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.jobs <- job:
	default:
		logger.WithTrace(ctx, s.logger).Warn("Persistence queue full, dropping write", zap.String("op", op))
	}
}

func (s *Service) persistLoop() {
	defer close(s.done)
	for job := range s.jobs {
		ctx, cancel := context.WithTimeout(job.ctx, persistTimeout)
		if err := job.fn(ctx); err != nil {
			logger.WithTrace(job.ctx, s.logger).Warn("Failed to persist notification change",
				zap.String("op", job.op),
				zap.Error(err),
			)
		}
		cancel()
	}
}
