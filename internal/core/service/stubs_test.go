package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
)

var errBackendDown = errors.New("backend down")

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// --- Credential store ---

type stubCredentialStore struct {
	mu       sync.Mutex
	nextID   int64
	byID     map[int64]*domain.User
	lookups  int
	failNext error
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{byID: make(map[int64]*domain.User)}
}

func (s *stubCredentialStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Username == user.Username {
			return nil, domain.ErrUserExists
		}
	}
	s.nextID++
	created := cloneUser(user)
	created.ID = s.nextID
	s.byID[created.ID] = cloneUser(created)
	return created, nil
}

func (s *stubCredentialStore) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	for _, u := range s.byID {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrIdentityNotFound
}

func (s *stubCredentialStore) FindByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	if err := s.failNext; err != nil {
		s.failNext = nil
		return nil, err
	}
	u, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	return cloneUser(u), nil
}

func (s *stubCredentialStore) SetDisabled(_ context.Context, id int64, disabled bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrIdentityNotFound
	}
	u.Disabled = disabled
	return cloneUser(u), nil
}

// parkingStore holds the next FindByID after it has read the row, until
// release is closed.
type parkingStore struct {
	*stubCredentialStore
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newParkingStore(inner *stubCredentialStore) *parkingStore {
	return &parkingStore{stubCredentialStore: inner, read: make(chan struct{}), release: make(chan struct{})}
}

func (s *parkingStore) FindByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.stubCredentialStore.FindByID(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return u, err
}

func (s *stubCredentialStore) lookupCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// --- Cache backend ---

type memCacheBackend struct {
	mu         sync.Mutex
	entries    map[string][]byte
	ttls       map[string]time.Duration
	failGet    bool
	failSet    bool
	failDelete bool
}

func newMemCacheBackend() *memCacheBackend {
	return &memCacheBackend{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (b *memCacheBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failGet {
		return nil, false, errBackendDown
	}
	v, ok := b.entries[key]
	return v, ok, nil
}

func (b *memCacheBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSet {
		return errBackendDown
	}
	b.entries[key] = append([]byte(nil), value...)
	b.ttls[key] = ttl
	return nil
}

func (b *memCacheBackend) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSet {
		return false, errBackendDown
	}
	if _, ok := b.entries[key]; ok {
		return false, nil
	}
	b.entries[key] = append([]byte(nil), value...)
	b.ttls[key] = ttl
	return true, nil
}

func (b *memCacheBackend) Delete(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete {
		return errBackendDown
	}
	for _, k := range keys {
		delete(b.entries, k)
		delete(b.ttls, k)
	}
	return nil
}

func (b *memCacheBackend) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.entries))
	for k := range b.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (b *memCacheBackend) snapshot() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.entries))
	for k, v := range b.entries {
		out[k] = string(v)
	}
	return out
}

// --- Task repository ---

type stubTaskRepo struct {
	tasks      map[string]*domain.Task
	insertErr  error
	lastFilter ports.ListTasksFilter
	listItems  []*domain.Task
	listTotal  int64
	lastPatch  *ports.TaskPatch
}

func newStubTaskRepo() *stubTaskRepo {
	return &stubTaskRepo{tasks: make(map[string]*domain.Task)}
}

func (r *stubTaskRepo) InsertFromEvent(_ context.Context, task *domain.Task) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, t := range r.tasks {
		if t.SourceEventID == task.SourceEventID {
			task.ID = t.ID
			return nil
		}
	}
	task.ID = "task-" + task.SourceEventID
	clone := *task
	r.tasks[task.ID] = &clone
	return nil
}

func (r *stubTaskRepo) FindByID(_ context.Context, id string) (*domain.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	clone := *t
	return &clone, nil
}

func (r *stubTaskRepo) List(_ context.Context, f ports.ListTasksFilter) ([]*domain.Task, int64, error) {
	r.lastFilter = f
	return r.listItems, r.listTotal, nil
}

func (r *stubTaskRepo) Update(_ context.Context, id string, p ports.TaskPatch) (*domain.Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	r.lastPatch = &p
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.AssigneeID != nil {
		t.AssigneeID = p.AssigneeID
	}
	t.UpdatedAt = p.UpdatedAt
	clone := *t
	return &clone, nil
}

// --- Event log ---

type stubEventLog struct {
	published  [][]byte
	publishErr error
}

func (l *stubEventLog) Publish(_ context.Context, payload []byte) (string, error) {
	if l.publishErr != nil {
		return "", l.publishErr
	}
	l.published = append(l.published, payload)
	return "1700000000000-" + string(rune('0'+len(l.published))), nil
}

func (l *stubEventLog) Poll(context.Context, time.Duration) (*ports.Message, error) {
	return nil, nil
}

func (l *stubEventLog) Commit(context.Context, string) error { return nil }

func nopLogger() zerolog.Logger { return zerolog.Nop() }
