package notification

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concretesync/internal/model"
)

func rec(title string) model.Record {
	return model.Record{ID: uuid.New(), Title: title, Category: model.CategorySystem}
}

func titles(records []model.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Title
	}
	return out
}

func TestStore_CapKeepsMostRecent(t *testing.T) {
	s := NewStore(20)
	for i := 0; i < 27; i++ {
		s.Append(rec(fmt.Sprintf("n%d", i)))
	}

	list := s.List()
	require.Len(t, list, 20)
	for i, r := range list {
		assert.Equal(t, fmt.Sprintf("n%d", 26-i), r.Title)
	}
	assert.Equal(t, 20, s.UnreadCount())
}

func TestStore_BurstPreservesArrivalOrder(t *testing.T) {
	s := NewStore(DefaultCapacity)
	for _, title := range []string{"a", "b", "c", "d", "e"} {
		s.Append(rec(title))
	}
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, titles(s.List()))
}

func TestStore_MarkReadIdempotent(t *testing.T) {
	s := NewStore(DefaultCapacity)
	r := rec("x")
	s.Append(r)
	s.Append(rec("y"))

	assert.True(t, s.MarkRead(r.ID))
	once := s.List()
	onceUnread := s.UnreadCount()

	assert.False(t, s.MarkRead(r.ID))
	assert.Equal(t, once, s.List())
	assert.Equal(t, onceUnread, s.UnreadCount())
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_MarkReadUnknownID(t *testing.T) {
	s := NewStore(DefaultCapacity)
	s.Append(rec("x"))
	assert.False(t, s.MarkRead(uuid.New()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_MarkAllRead(t *testing.T) {
	s := NewStore(DefaultCapacity)
	s.Append(rec("a"))
	s.Append(rec("b"))

	assert.Equal(t, 2, s.MarkAllRead())
	assert.Equal(t, 0, s.UnreadCount())
	for _, r := range s.List() {
		assert.True(t, r.IsRead)
	}
	assert.Equal(t, 0, s.MarkAllRead())
}

func TestStore_EvictingUnreadKeepsCountConsistent(t *testing.T) {
	s := NewStore(2)
	first := rec("a")
	s.Append(first)
	s.Append(rec("b"))
	s.MarkRead(first.ID)
	require.Equal(t, 1, s.UnreadCount())

	s.Append(rec("c")) // evicts read "a"
	assert.Equal(t, 2, s.UnreadCount())
	s.Append(rec("d")) // evicts unread "b"
	assert.Equal(t, 2, s.UnreadCount())
}

func TestStore_DuplicateIDIgnored(t *testing.T) {
	s := NewStore(DefaultCapacity)
	r := rec("a")
	assert.True(t, s.Append(r))
	assert.False(t, s.Append(r))
	assert.Len(t, s.List(), 1)
	assert.Equal(t, 1, s.UnreadCount())
}

func TestStore_Seed(t *testing.T) {
	s := NewStore(3)
	read := rec("old")
	read.IsRead = true
	s.Seed([]model.Record{rec("n1"), rec("n2"), read, rec("n4")})

	assert.Equal(t, []string{"n1", "n2", "old"}, titles(s.List()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestStore_ListIsACopy(t *testing.T) {
	s := NewStore(DefaultCapacity)
	s.Append(rec("a"))
	list := s.List()
	list[0].IsRead = true
	assert.False(t, s.List()[0].IsRead)
}
