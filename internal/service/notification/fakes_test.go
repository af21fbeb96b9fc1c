package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"concretesync/internal/display"
	"concretesync/internal/model"
)

type fakeDisplay struct {
	mu          sync.Mutex
	perm        display.Permission
	permErr     error
	showErr     error
	panicOnShow bool
	shown       []display.Options
	closed      []string

	showCh  chan display.Options
	closeCh chan string
}

func newFakeDisplay(perm display.Permission) *fakeDisplay {
	return &fakeDisplay{
		perm:    perm,
		showCh:  make(chan display.Options, 32),
		closeCh: make(chan string, 32),
	}
}

func (f *fakeDisplay) RequestPermission(context.Context) (display.Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perm, f.permErr
}

func (f *fakeDisplay) Show(_ context.Context, _ string, opts display.Options) (display.Handle, error) {
	f.mu.Lock()
	if f.panicOnShow {
		f.mu.Unlock()
		panic("display exploded")
	}
	if f.showErr != nil {
		f.mu.Unlock()
		return nil, f.showErr
	}
	f.shown = append(f.shown, opts)
	f.mu.Unlock()

	f.showCh <- opts
	return &fakeHandle{display: f, tag: opts.Tag}, nil
}

func (f *fakeDisplay) set(fn func(f *fakeDisplay)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeDisplay) shownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

func (f *fakeDisplay) closedTags() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.closed...)
}

type fakeHandle struct {
	display *fakeDisplay
	tag     string
}

func (h *fakeHandle) Close(context.Context) error {
	h.display.mu.Lock()
	h.display.closed = append(h.display.closed, h.tag)
	h.display.mu.Unlock()
	h.display.closeCh <- h.tag
	return nil
}

type storeAppender struct {
	store *Store
}

func (a storeAppender) Append(_ context.Context, rec model.Record) bool {
	return a.store.Append(rec)
}

type staticConfig struct {
	cfg model.NotificationConfig
}

func (s staticConfig) Get() model.NotificationConfig { return s.cfg.Clone() }

type fakeRepo struct {
	mu      sync.Mutex
	seed    []model.Record
	ops     []string
	failAll bool
}

func (r *fakeRepo) record(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
	if r.failAll {
		return errors.New("db down")
	}
	return nil
}

func (r *fakeRepo) ListRecent(_ context.Context, limit int) ([]model.Record, error) {
	if r.failAll {
		return nil, errors.New("db down")
	}
	if len(r.seed) > limit {
		return r.seed[:limit], nil
	}
	return r.seed, nil
}

func (r *fakeRepo) Insert(_ context.Context, rec model.Record) error {
	return r.record("insert:" + rec.Title)
}

func (r *fakeRepo) MarkAsRead(_ context.Context, id uuid.UUID) error {
	return r.record("read:" + id.String())
}

func (r *fakeRepo) MarkAllAsRead(context.Context) error {
	return r.record("read_all")
}

func (r *fakeRepo) opsSnapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ops...)
}
