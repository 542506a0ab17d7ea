package queue

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/tasktracker/task-system/internal/core/ports"
	"github.com/tasktracker/task-system/internal/pkg/metrics"
)

const (
	defaultPollTimeout = time.Second
	minBackoff         = 100 * time.Millisecond
	maxBackoff         = 10 * time.Second
)

// State is a step of the consumer loop.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateProcessing
	StateCommitting
)

var states = []State{StateIdle, StatePolling, StateProcessing, StateCommitting}

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateProcessing:
		return "processing"
	case StateCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// Outcome is the result of one consumer cycle.
type Outcome int

const (
	// OutcomeEmpty: the poll timed out with nothing to read.
	OutcomeEmpty Outcome = iota
	// OutcomeCommitted: the event was persisted and the position advanced.
	OutcomeCommitted
	// OutcomeDropped: the event could not be decoded and was skipped.
	OutcomeDropped
	// OutcomeRetry: persisting or committing failed; the position did not
	// advance and the same event will be read again.
	OutcomeRetry
	// OutcomePollFailed: the log could not be read.
	OutcomePollFailed
)

// Consumer drains the ingestion log into the task store, one event at a
// time. The read position only advances after the event has been persisted
// (or judged undecodable), so a failed write is retried rather than lost.
type Consumer struct {
	events      ports.EventLog
	ingestor    ports.TaskIngestor
	pollTimeout time.Duration
	log         zerolog.Logger
	state       atomic.Int32
	newBackoff  func() retry.Backoff
}

// NewConsumer creates a Consumer. A non-positive pollTimeout selects one second.
func NewConsumer(events ports.EventLog, ingestor ports.TaskIngestor, pollTimeout time.Duration, log zerolog.Logger) *Consumer {
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	c := &Consumer{
		events:      events,
		ingestor:    ingestor,
		pollTimeout: pollTimeout,
		log:         log,
		newBackoff: func() retry.Backoff {
			return retry.WithCappedDuration(maxBackoff, retry.WithJitterPercent(10, retry.NewExponential(minBackoff)))
		},
	}
	c.setState(StateIdle)
	return c
}

// State returns the current state of the loop.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	for _, st := range states {
		v := 0.0
		if st == s {
			v = 1
		}
		metrics.ConsumerState.WithLabelValues(st.String()).Set(v)
	}
}

// Run loops until ctx is cancelled. Failures back off exponentially; any
// successful cycle resets the backoff.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Dur("poll_timeout", c.pollTimeout).Msg("ingestion consumer started")
	defer c.setState(StateIdle)

	backoff := c.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			c.log.Info().Msg("ingestion consumer stopped")
			return nil
		}

		switch c.Step(ctx) {
		case OutcomeRetry, OutcomePollFailed:
			wait, _ := backoff.Next()
			if !sleep(ctx, wait) {
				c.log.Info().Msg("ingestion consumer stopped")
				return nil
			}
		default:
			backoff = c.newBackoff()
		}
	}
}

// Step runs one Polling → Processing → Committing cycle.
func (c *Consumer) Step(ctx context.Context) Outcome {
	c.setState(StatePolling)
	msg, err := c.events.Poll(ctx, c.pollTimeout)
	if err != nil {
		if ctx.Err() == nil {
			metrics.EventsErrorsTotal.WithLabelValues("poll").Inc()
			c.log.Error().Err(err).Msg("poll ingestion log")
		}
		return OutcomePollFailed
	}
	if msg == nil {
		return OutcomeEmpty
	}

	start := time.Now()
	outcome := c.process(ctx, msg)
	metrics.EventProcessingDuration.WithLabelValues(outcomeLabel(outcome)).Observe(time.Since(start).Seconds())
	return outcome
}

func (c *Consumer) process(ctx context.Context, msg *ports.Message) Outcome {
	c.setState(StateProcessing)
	ev, err := c.ingestor.Decode(msg.Payload)
	if err != nil {
		// Poison pill: skip it so it cannot stall everything behind it.
		metrics.EventsErrorsTotal.WithLabelValues("deserialization").Inc()
		c.log.Error().Err(err).Str("event_id", msg.ID).Int("size", len(msg.Payload)).Msg("dropping undecodable task event")
		if err := c.commit(ctx, msg.ID); err != nil {
			return OutcomeRetry
		}
		return OutcomeDropped
	}

	c.setState(StateCommitting)
	if err := c.ingestor.Persist(ctx, msg.ID, ev); err != nil {
		metrics.EventsErrorsTotal.WithLabelValues("persistence").Inc()
		c.log.Error().Err(err).Str("event_id", msg.ID).Msg("persist task event, will redeliver")
		return OutcomeRetry
	}
	if err := c.commit(ctx, msg.ID); err != nil {
		return OutcomeRetry
	}

	metrics.EventsPersistedTotal.Inc()
	return OutcomeCommitted
}

func (c *Consumer) commit(ctx context.Context, id string) error {
	if err := c.events.Commit(ctx, id); err != nil {
		metrics.EventsErrorsTotal.WithLabelValues("commit").Inc()
		c.log.Error().Err(err).Str("event_id", id).Msg("commit ingestion position")
		return err
	}
	return nil
}

func outcomeLabel(o Outcome) string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "retry"
	}
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
