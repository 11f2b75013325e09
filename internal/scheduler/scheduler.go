// Package scheduler runs a job once a day at a fixed wall-clock time and
// serializes it against manual triggers.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const scheduledKey = "scheduled"

// ErrAlreadyStarted is returned by Start when the loop is running.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Job is one unit of scheduled work.
type Job[R any] func(ctx context.Context) (R, error)

// Options configure the daily trigger.
type Options struct {
	// DailyAt is the local wall-clock trigger time as HH:MM.
	DailyAt  string
	Location *time.Location
	Clock    Clock
	Logger   *slog.Logger
}

// Status is a snapshot of the scheduler state.
type Status[R any] struct {
	Running    bool      `json:"running"`
	Runs       int       `json:"runs"`
	NextRunAt  time.Time `json:"next_run_at,omitempty"`
	LastRunAt  time.Time `json:"last_run_at,omitempty"`
	LastResult *R        `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// Scheduler triggers a job daily. Runs never overlap: identical triggers
// coalesce into the run in flight and different ones wait their turn.
type Scheduler[R any] struct {
	job    Job[R]
	hour   int
	minute int
	loc    *time.Location
	clock  Clock
	logger *slog.Logger

	group singleflight.Group
	// runMu is held for the duration of every run.
	runMu sync.Mutex

	// jobCtx outlives Stop so in-flight runs finish cleanly.
	jobCtx context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	loop   chan struct{}
	status Status[R]
}

// New returns a scheduler for job. It does not start the loop.
func New[R any](job Job[R], opts Options) (*Scheduler[R], error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	hour, minute, err := parseDailyAt(opts.DailyAt)
	if err != nil {
		return nil, err
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler[R]{
		job:    job,
		hour:   hour,
		minute: minute,
		loc:    opts.Location,
		clock:  opts.Clock,
		logger: opts.Logger.With("component", "scheduler"),
		jobCtx: context.Background(),
	}, nil
}

func parseDailyAt(value string) (int, int, error) {
	if value == "" {
		value = "00:00"
	}
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, errors.New("daily_at must be HH:MM")
	}
	return t.Hour(), t.Minute(), nil
}

// NextAfter returns the first trigger time strictly after now.
func (s *Scheduler[R]) NextAfter(now time.Time) time.Time {
	local := now.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, s.hour, s.minute, 0, 0, s.loc)
	}
	return next
}

// Start launches the trigger loop. It stops when ctx ends or Stop is called.
func (s *Scheduler[R]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.loop = make(chan struct{})
	go s.run(loopCtx, s.loop)
	return nil
}

// Stop ends the trigger loop and waits for any in-flight run.
func (s *Scheduler[R]) Stop() {
	s.mu.Lock()
	cancel, loop := s.cancel, s.loop
	s.cancel, s.loop = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loop
	}
	s.runMu.Lock()
	s.runMu.Unlock()
}

func (s *Scheduler[R]) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := s.clock.Now()
		next := s.NextAfter(now)
		s.mu.Lock()
		s.status.NextRunAt = next
		s.mu.Unlock()
		s.logger.Debug("next run scheduled", "at", next)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}
		if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	}
}

// RunNow triggers the scheduled job, joining a run already in flight.
func (s *Scheduler[R]) RunNow(ctx context.Context) (R, error) {
	return s.Do(ctx, scheduledKey, s.job)
}

// Do runs job under key. Calls sharing a key while one is in flight share
// its result. Runs with different keys are serialized.
// If ctx ends first, Do returns ctx.Err() and the run continues.
func (s *Scheduler[R]) Do(ctx context.Context, key string, job Job[R]) (R, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return s.execute(job)
	})

	select {
	case res := <-ch:
		var zero R
		if res.Val == nil {
			return zero, res.Err
		}
		return res.Val.(R), res.Err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (s *Scheduler[R]) execute(job Job[R]) (R, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	s.status.Running = true
	s.mu.Unlock()

	started := s.clock.Now()
	result, err := job(s.jobCtx)

	s.mu.Lock()
	s.status.Running = false
	s.status.Runs++
	s.status.LastRunAt = started
	s.status.LastResult = &result
	s.status.LastError = ""
	if err != nil {
		s.status.LastError = err.Error()
	}
	s.mu.Unlock()

	return result, err
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler[R]) Status() Status[R] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
