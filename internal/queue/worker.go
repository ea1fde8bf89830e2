package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/pitcharena/internal/eval"
	"github.com/kalambet/pitcharena/internal/rubric"
	"github.com/kalambet/pitcharena/internal/storage"
)

// Evaluator scores a submission. Evaluation must always produce a result;
// see eval.Engine's escalation contract.
type Evaluator interface {
	Evaluate(ctx context.Context, sub eval.Submission) *rubric.Evaluation
}

// Recorder receives the two persistence payloads after a job completes:
// the public ranking entry and the private profile record.
type Recorder interface {
	RecordScore(identity string, entry storage.LeaderboardEntry) error
	RecordProfile(identity string, p storage.Profile) error
}

// Run consumes the queue until ctx is cancelled. It is the single logical
// consumer: jobs are processed strictly in FIFO order, one at a time, which
// also caps the process at one in-flight generation call. The worker
// suspends on the channel receive while the queue is empty.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("evaluation worker started")
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("evaluation worker stopped")
			return
		case id := <-q.pending:
			q.process(ctx, id)
		}
	}
}

// RunOnce processes at most one pending job without waiting. It returns
// true if a job was processed. Used by tests to step the worker.
func (q *Queue) RunOnce(ctx context.Context) bool {
	select {
	case id := <-q.pending:
		q.process(ctx, id)
		return true
	default:
		return false
	}
}

func (q *Queue) process(ctx context.Context, id string) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		// Pruned while pending; nothing to do.
		q.mu.Unlock()
		return
	}
	job.Status = StatusProcessing
	sub := job.Submission
	q.mu.Unlock()

	q.logger.Info("processing submission", "job_id", id, "identity", sub.Identity)

	// The engine's synthetic floor means Evaluate cannot fail; the recover
	// keeps a bug in a tier from taking the worker down with it.
	var result *rubric.Evaluation
	func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error("evaluation panicked", "job_id", id, "panic", r)
			}
		}()
		result = q.evaluator.Evaluate(ctx, sub)
	}()

	if result == nil {
		q.finish(id, nil, fmt.Sprintf("evaluation aborted for job %s", id))
		return
	}

	q.record(sub, result)
	q.finish(id, result, "")
}

// record hands the completed evaluation to the persistence collaborator.
// Handoff failures are logged, not fatal: the participant still gets their
// score even if a store write misses.
func (q *Queue) record(sub eval.Submission, result *rubric.Evaluation) {
	if q.recorder == nil {
		return
	}
	if err := q.recorder.RecordScore(sub.Identity, storage.LeaderboardEntry{
		Name:  sub.Name,
		Track: sub.Track,
		Score: result.Total,
	}); err != nil {
		q.logger.Warn("leaderboard handoff failed", "identity", sub.Identity, "error", err)
	}
	if err := q.recorder.RecordProfile(sub.Identity, storage.Profile{
		Name:        sub.Name,
		Track:       sub.Track,
		Entry:       sub.Entry,
		Evaluation:  *result,
		EvaluatedAt: result.EvaluatedAt,
	}); err != nil {
		q.logger.Warn("profile handoff failed", "identity", sub.Identity, "error", err)
	}
}

func (q *Queue) finish(id string, result *rubric.Evaluation, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return
	}
	job.CompletedAt = time.Now().UTC()
	if result != nil {
		job.Result = result
		job.Status = StatusCompleted
	} else {
		job.Err = errMsg
		job.Status = StatusFailed
	}
}
