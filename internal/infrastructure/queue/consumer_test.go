package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
)

// memLog is an in-memory log with consumer-group semantics: an entry stays
// pending until committed and pending entries are returned first.
type memLog struct {
	mu        sync.Mutex
	entries   []ports.Message
	next      int
	pending   []ports.Message
	committed []string
	pollErr   error
	commitErr error
}

func (l *memLog) add(payload string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(l.entries)+1)
	l.entries = append(l.entries, ports.Message{ID: id, Payload: []byte(payload)})
	return id
}

func (l *memLog) Publish(_ context.Context, payload []byte) (string, error) {
	return l.add(string(payload)), nil
}

func (l *memLog) Poll(context.Context, time.Duration) (*ports.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pollErr != nil {
		err := l.pollErr
		l.pollErr = nil
		return nil, err
	}
	if len(l.pending) > 0 {
		m := l.pending[0]
		return &m, nil
	}
	if l.next >= len(l.entries) {
		return nil, nil
	}
	m := l.entries[l.next]
	l.next++
	l.pending = append(l.pending, m)
	return &m, nil
}

func (l *memLog) Commit(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitErr != nil {
		err := l.commitErr
		l.commitErr = nil
		return err
	}
	for i, m := range l.pending {
		if m.ID == id {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			break
		}
	}
	l.committed = append(l.committed, id)
	return nil
}

func (l *memLog) commits() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.committed...)
}

// flakyIngestor decodes JSON task events and fails Persist failures times
// before accepting writes.
type flakyIngestor struct {
	mu        sync.Mutex
	failures  int
	attempts  int
	persisted []string
}

func (f *flakyIngestor) Decode(payload []byte) (*domain.TaskEvent, error) {
	var ev domain.TaskEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDeserialization, err)
	}
	if ev.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrDeserialization)
	}
	return &ev, nil
}

func (f *flakyIngestor) Persist(_ context.Context, eventID string, ev *domain.TaskEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("%w: store unavailable", domain.ErrPersistence)
	}
	f.persisted = append(f.persisted, eventID+":"+ev.Title)
	return nil
}

func (f *flakyIngestor) snapshot() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts, append([]string(nil), f.persisted...)
}

func event(title string) string {
	return fmt.Sprintf(`{"title":%q,"description":"d","priority":"low","creator_id":1,"enqueued_at":"2024-05-01T09:00:00Z"}`, title)
}

func newTestConsumer(l ports.EventLog, in ports.TaskIngestor) *Consumer {
	c := NewConsumer(l, in, 10*time.Millisecond, zerolog.Nop())
	c.newBackoff = func() retry.Backoff { return retry.NewConstant(time.Millisecond) }
	return c
}

func TestConsumer_EmptyPoll(t *testing.T) {
	c := newTestConsumer(&memLog{}, &flakyIngestor{})
	assert.Equal(t, OutcomeEmpty, c.Step(context.Background()))
	assert.Equal(t, StatePolling, c.State())
}

func TestConsumer_PersistFailureDoesNotAdvance(t *testing.T) {
	log := &memLog{}
	id := log.add(event("first"))
	ingestor := &flakyIngestor{failures: 3}
	c := newTestConsumer(log, ingestor)

	for i := 0; i < 3; i++ {
		require.Equal(t, OutcomeRetry, c.Step(context.Background()), "attempt %d", i+1)
		assert.Empty(t, log.commits(), "position advanced after a failed write")
	}

	require.Equal(t, OutcomeCommitted, c.Step(context.Background()))
	attempts, persisted := ingestor.snapshot()
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []string{id + ":first"}, persisted)
	assert.Equal(t, []string{id}, log.commits())

	assert.Equal(t, OutcomeEmpty, c.Step(context.Background()))
}

func TestConsumer_PoisonPillIsSkipped(t *testing.T) {
	log := &memLog{}
	bad := log.add(`{"title": "unterminated`)
	good := log.add(event("valid"))
	ingestor := &flakyIngestor{}
	c := newTestConsumer(log, ingestor)

	assert.Equal(t, OutcomeDropped, c.Step(context.Background()))
	assert.Equal(t, OutcomeCommitted, c.Step(context.Background()))

	_, persisted := ingestor.snapshot()
	assert.Equal(t, []string{good + ":valid"}, persisted)
	assert.Equal(t, []string{bad, good}, log.commits())
}

func TestConsumer_CommitFailureRedelivers(t *testing.T) {
	log := &memLog{commitErr: errors.New("ack failed")}
	id := log.add(event("once"))
	ingestor := &flakyIngestor{}
	c := newTestConsumer(log, ingestor)

	assert.Equal(t, OutcomeRetry, c.Step(context.Background()))
	assert.Equal(t, OutcomeCommitted, c.Step(context.Background()))

	attempts, _ := ingestor.snapshot()
	assert.Equal(t, 2, attempts, "the entry is persisted again after a lost commit")
	assert.Equal(t, []string{id}, log.commits())
}

func TestConsumer_PollFailure(t *testing.T) {
	log := &memLog{pollErr: errors.New("connection reset")}
	c := newTestConsumer(log, &flakyIngestor{})
	assert.Equal(t, OutcomePollFailed, c.Step(context.Background()))
	assert.Equal(t, OutcomeEmpty, c.Step(context.Background()))
}

func TestConsumer_RunDrainsUntilCancelled(t *testing.T) {
	log := &memLog{pollErr: errors.New("transient")}
	for i := 0; i < 5; i++ {
		log.add(event(fmt.Sprintf("task-%d", i)))
	}
	log.add("garbage")
	ingestor := &flakyIngestor{failures: 2}
	c := newTestConsumer(log, ingestor)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return len(log.commits()) == 6 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, persisted := ingestor.snapshot()
	assert.Len(t, persisted, 5)
	assert.Equal(t, StateIdle, c.State())
}

func TestNewConsumer_DefaultsPollTimeout(t *testing.T) {
	c := NewConsumer(&memLog{}, &flakyIngestor{}, 0, zerolog.Nop())
	assert.Equal(t, defaultPollTimeout, c.pollTimeout)
	assert.Equal(t, StateIdle, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "polling", StatePolling.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "committing", StateCommitting.String())
}
