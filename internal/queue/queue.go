// Package queue holds pending pitch evaluations in an in-memory FIFO
// consumed by a single background worker. Enqueue never blocks, status is
// polled by job id, and every accepted submission reaches a terminal state.
// The queue is deliberately volatile: losing jobs on restart is an accepted
// trade for a one-day live event.
package queue

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/pitcharena/internal/eval"
	"github.com/kalambet/pitcharena/internal/rubric"
)

// Status is the lifecycle state of a job. Transitions are monotonic:
// queued → processing → completed|failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// terminal reports whether no further transition is possible.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrDuplicateSubmission is returned when the identity already has a
	// job that the resubmission policy does not allow replacing.
	ErrDuplicateSubmission = errors.New("queue: identity already has a submission")

	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("queue: at capacity")

	// ErrNotFound is returned for unknown or expired job ids.
	ErrNotFound = errors.New("queue: job not found")
)

// Job tracks one submission through its lifecycle. Only the worker mutates
// a job after creation; pollers receive snapshot copies.
type Job struct {
	ID          string
	Submission  eval.Submission
	Status      Status
	Result      *rubric.Evaluation
	Err         string
	EnqueuedAt  time.Time
	CompletedAt time.Time
}

// ResubmitPolicy decides whether a new submission may replace an existing
// job in the given state. It is consulted only when the identity already
// has a job.
type ResubmitPolicy func(prev Status) bool

// SingleRound permits resubmission only after a failed job: one scored
// pitch per identity for the whole event.
func SingleRound(prev Status) bool {
	return prev == StatusFailed
}

// RetryAfterCompletion permits resubmission once the previous job is
// terminal, for events running unlimited rounds.
func RetryAfterCompletion(prev Status) bool {
	return prev.terminal()
}

// Options tune queue behavior. Zero values select defaults.
type Options struct {
	// Capacity bounds the number of simultaneously pending jobs.
	Capacity int
	// Retention is how long terminal jobs stay pollable before being
	// pruned. Pruning also reopens the identity for resubmission.
	Retention time.Duration
	// Resubmit decides duplicate handling; defaults to SingleRound.
	Resubmit ResubmitPolicy
}

const (
	defaultCapacity  = 512
	defaultRetention = time.Hour
)

// Queue is the owned queue+worker structure: construct once at process
// start, start Run in a goroutine, and pass the handle to callers.
type Queue struct {
	evaluator Evaluator
	recorder  Recorder
	retention time.Duration
	resubmit  ResubmitPolicy
	logger    *slog.Logger

	mu         sync.RWMutex
	jobs       map[string]*Job
	byIdentity map[string]string
	pending    chan string
}

// New creates a Queue. recorder may be nil to skip persistence handoff.
func New(evaluator Evaluator, recorder Recorder, opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}
	if opts.Resubmit == nil {
		opts.Resubmit = SingleRound
	}
	return &Queue{
		evaluator:  evaluator,
		recorder:   recorder,
		retention:  opts.Retention,
		resubmit:   opts.Resubmit,
		logger:     slog.Default(),
		jobs:       make(map[string]*Job),
		byIdentity: make(map[string]string),
		pending:    make(chan string, opts.Capacity),
	}
}

// Enqueue appends a submission to the FIFO tail and returns its job id.
// It is non-blocking: a duplicate identity is rejected with
// ErrDuplicateSubmission and a full queue with ErrQueueFull.
func (q *Queue) Enqueue(sub eval.Submission) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked()

	if prevID, ok := q.byIdentity[sub.Identity]; ok {
		if prev, ok := q.jobs[prevID]; ok && !q.resubmit(prev.Status) {
			return "", ErrDuplicateSubmission
		}
	}

	job := &Job{
		ID:         uuid.New().String(),
		Submission: sub,
		Status:     StatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}

	select {
	case q.pending <- job.ID:
	default:
		return "", ErrQueueFull
	}

	q.jobs[job.ID] = job
	q.byIdentity[sub.Identity] = job.ID
	return job.ID, nil
}

// Status returns a snapshot of the job. The result, if present, is copied
// so pollers never observe worker writes in progress.
func (q *Queue) Status(id string) (Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	snapshot := *job
	if job.Result != nil {
		result := *job.Result
		snapshot.Result = &result
	}
	return snapshot, nil
}

// Pending returns the number of jobs waiting for the worker.
func (q *Queue) Pending() int {
	return len(q.pending)
}

// pruneLocked drops terminal jobs older than the retention window.
// Pruning a completed job also reopens its identity.
func (q *Queue) pruneLocked() {
	cutoff := time.Now().UTC().Add(-q.retention)
	for id, job := range q.jobs {
		if !job.Status.terminal() || job.CompletedAt.After(cutoff) {
			continue
		}
		delete(q.jobs, id)
		if q.byIdentity[job.Submission.Identity] == id {
			delete(q.byIdentity, job.Submission.Identity)
		}
	}
}
