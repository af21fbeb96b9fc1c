package notification

import (
	"sync"

	"github.com/google/uuid"

	"concretesync/internal/model"
)

const DefaultCapacity = 20

// Store 本地通知列表，最新在前，超出容量时淘汰最旧的记录
type Store struct {
	mu       sync.Mutex
	capacity int
	records  []model.Record
	unread   int
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		records:  make([]model.Record, 0, capacity),
	}
}

func (s *Store) Capacity() int {
	return s.capacity
}

// Append inserts rec at the head. A record whose id is already present is ignored.
func (s *Store) Append(rec model.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(rec.ID) >= 0 {
		return false
	}

	s.records = append(s.records, model.Record{})
	copy(s.records[1:], s.records)
	s.records[0] = rec
	if !rec.IsRead {
		s.unread++
	}

	for len(s.records) > s.capacity {
		evicted := s.records[len(s.records)-1]
		s.records = s.records[:len(s.records)-1]
		if !evicted.IsRead && s.unread > 0 {
			s.unread--
		}
	}
	return true
}

// MarkRead flips one unread record to read. Returns false when absent or already read.
func (s *Store) MarkRead(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 || s.records[i].IsRead {
		return false
	}
	s.records[i].IsRead = true
	if s.unread > 0 {
		s.unread--
	}
	return true
}

// MarkAllRead returns how many records changed.
func (s *Store) MarkAllRead() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for i := range s.records {
		if !s.records[i].IsRead {
			s.records[i].IsRead = true
			changed++
		}
	}
	s.unread = 0
	return changed
}

// Seed replaces the contents with records ordered newest-first, capped.
func (s *Store) Seed(records []model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(records) > s.capacity {
		records = records[:s.capacity]
	}
	s.records = append(make([]model.Record, 0, s.capacity), records...)
	s.unread = 0
	for _, r := range s.records {
		if !r.IsRead {
			s.unread++
		}
	}
}

// List returns a copy, most recent first.
func (s *Store) List() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) indexOf(id uuid.UUID) int {
	for i := range s.records {
		if s.records[i].ID == id {
			return i
		}
	}
	return -1
}
