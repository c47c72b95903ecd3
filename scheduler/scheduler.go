// Package scheduler admits execution requests under a global concurrency
// ceiling and releases queued work, strictly first-in-first-admitted, as
// capacity frees up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/testharbor/testharbor/metrics"
	"github.com/testharbor/testharbor/types"
)

// ErrSessionActive is returned when a session id is reused while an
// execution for it is still in flight or queued.
var ErrSessionActive = errors.New("session already has an execution in flight")

// ErrShutdown is returned for submissions after Shutdown.
var ErrShutdown = errors.New("scheduler is shut down")

// Executor runs one admitted execution end to end. The scheduler calls it
// from a dedicated goroutine per execution.
type Executor interface {
	Execute(ctx context.Context, exec *Execution) (*types.ExecutionResult, error)
}

// Outcome is the terminal value of an execution: exactly one of Result or
// Err is meaningful.
type Outcome struct {
	Result *types.ExecutionResult
	Err    error
}

// Execution is the scheduler-owned record for one admitted or queued run.
// Outcome receives exactly one value when the run reaches a terminal state.
type Execution struct {
	ID          string
	SessionID   string
	Definition  types.TestDefinition
	SubmittedAt time.Time
	StartedAt   time.Time

	Outcome chan Outcome
}

// Admission is the synchronous answer to a Submit call.
type Admission struct {
	Queued    bool
	Position  int // 1-based queue position when Queued
	Execution *Execution
}

// Scheduler owns the active set and the FIFO waiting list. It is the only
// writer of either; collaborators receive the instance by reference rather
// than going through package-level state.
type Scheduler struct {
	log      zerolog.Logger
	capacity int
	executor Executor
	onQueued func(exec *Execution, position int)
	ctx      context.Context

	mu     sync.Mutex
	active map[string]*Execution
	queue  []*Execution

	running atomic.Bool
	wg      sync.WaitGroup
}

// Config holds configuration for creating a new scheduler.
type Config struct {
	Log      zerolog.Logger
	Capacity int
	Executor Executor
	Context  context.Context // base context for launched executions
	// OnQueued, when set, is invoked synchronously for every submission
	// that cannot start immediately. It runs inside the admission critical
	// section, before any promotion of the execution can happen, so
	// observers always see the queued notification before the started one.
	OnQueued func(exec *Execution, position int)
}

// New creates a scheduler ready to accept submissions.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.Context == nil {
		cfg.Context = context.Background()
	}

	s := &Scheduler{
		log:      cfg.Log.With().Str("component", "scheduler").Logger(),
		capacity: cfg.Capacity,
		executor: cfg.Executor,
		onQueued: cfg.OnQueued,
		ctx:      cfg.Context,
		active:   make(map[string]*Execution),
	}
	s.running.Store(true)
	return s, nil
}

// Submit admits the request immediately when a slot is free, otherwise
// appends it to the FIFO tail and reports its 1-based position.
func (s *Scheduler) Submit(req types.ExecutionRequest) (*Admission, error) {
	if !s.running.Load() {
		return nil, ErrShutdown
	}

	exec := &Execution{
		ID:          uuid.New().String(),
		SessionID:   req.SessionID,
		Definition:  req.Definition,
		SubmittedAt: req.SubmittedAt,
		Outcome:     make(chan Outcome, 1),
	}

	s.mu.Lock()
	if s.inFlightLocked(req.SessionID) {
		s.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrSessionActive)
	}

	if len(s.active) < s.capacity {
		s.active[exec.SessionID] = exec
		active := len(s.active)
		s.mu.Unlock()

		metrics.RecordActive(active)
		s.log.Info().
			Str("session", exec.SessionID).
			Str("execution", exec.ID).
			Msg("execution admitted")
		s.launch(exec)
		return &Admission{Execution: exec}, nil
	}

	s.queue = append(s.queue, exec)
	position := len(s.queue)
	// Notify under the lock: finish() needs it to promote, so the queued
	// notification cannot trail a started one for the same execution.
	if s.onQueued != nil {
		s.onQueued(exec, position)
	}
	s.mu.Unlock()

	metrics.RecordQueued(position)
	s.log.Info().
		Str("session", exec.SessionID).
		Int("position", position).
		Msg("execution queued")
	return &Admission{Queued: true, Position: position, Execution: exec}, nil
}

// inFlightLocked reports whether the session id is already active or queued.
func (s *Scheduler) inFlightLocked(sessionID string) bool {
	if _, ok := s.active[sessionID]; ok {
		return true
	}
	for _, queued := range s.queue {
		if queued.SessionID == sessionID {
			return true
		}
	}
	return false
}

// launch runs the execution on its own goroutine. The slot is released and
// the queue promoted on every terminal path, including executor panics, so
// a failed workspace build or spawn never leaks capacity.
func (s *Scheduler) launch(exec *Execution) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(exec)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().
					Str("session", exec.SessionID).
					Interface("panic", r).
					Msg("executor panicked")
				exec.Outcome <- Outcome{Err: fmt.Errorf("runtime error: %v", r)}
			}
		}()

		exec.StartedAt = time.Now()
		result, err := s.executor.Execute(s.ctx, exec)
		exec.Outcome <- Outcome{Result: result, Err: err}
	}()
}

// finish removes the execution from the active set and, if anything is
// waiting, promotes the queue head. One promotion per completion.
func (s *Scheduler) finish(exec *Execution) {
	s.mu.Lock()
	delete(s.active, exec.SessionID)

	var next *Execution
	if s.running.Load() && len(s.queue) > 0 {
		next = s.queue[0]
		s.queue = s.queue[1:]
		s.active[next.SessionID] = next
	}
	active := len(s.active)
	queued := len(s.queue)
	s.mu.Unlock()

	metrics.RecordActive(active)
	metrics.RecordQueued(queued)

	if next != nil {
		s.log.Info().
			Str("session", next.SessionID).
			Str("execution", next.ID).
			Msg("promoted from queue")
		s.launch(next)
	}
}

// ActiveCount returns the number of running executions.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// QueueDepth returns the number of queued executions.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Shutdown stops admissions and promotions, fails queued work and waits
// for in-flight executions to terminate or the context to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, exec := range pending {
		exec.Outcome <- Outcome{Err: ErrShutdown}
	}
	metrics.RecordQueued(0)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Debug().Msg("all executions terminated")
		return nil
	case <-ctx.Done():
		s.log.Warn().Err(ctx.Err()).Msg("timed out waiting for executions to terminate")
		return ctx.Err()
	}
}
