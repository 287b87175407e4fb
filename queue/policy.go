package queue

import (
	"context"
	"time"

	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/task"
)

// Policy is the injectable decision object controlling requeue, storage
// of terminal tasks, and heartbeat timing (see the Policy entry in the
// specification's glossary).
type Policy interface {
	// RequeueAfterFailure decides whether a task that just failed
	// should go back onto the pending list rather than the failed list.
	RequeueAfterFailure(ctx context.Context, t *task.Task, failure core.Failure) (bool, error)
	// StoreFailedTask decides whether a terminally-failed task is
	// recorded on the queue's failed list.
	StoreFailedTask(ctx context.Context, t *task.Task, failure core.Failure) (bool, error)
	// StoreFinishedTask decides whether a successfully completed task
	// is recorded on the queue's finished list.
	StoreFinishedTask(ctx context.Context, t *task.Task) (bool, error)
	// WorkerTTL is the liveness TTL workers heartbeat against.
	WorkerTTL() time.Duration
	// HeartbeatInterval is how often a worker refreshes its TTL.
	HeartbeatInterval() time.Duration
	// MaxFailures is how many failures a task may accumulate before it
	// is no longer eligible for requeue.
	MaxFailures() int
}

// DefaultPolicy implements the policy named in §4.5 of the
// specification: requeue while fewer than 5 failures have accumulated,
// always store both finished and failed terminal tasks, worker TTL 60s
// refreshed every 40s.
type DefaultPolicy struct{}

// MaxFailures implements Policy.
func (DefaultPolicy) MaxFailures() int { return 5 }

// WorkerTTL implements Policy.
func (DefaultPolicy) WorkerTTL() time.Duration { return 60 * time.Second }

// HeartbeatInterval implements Policy.
func (DefaultPolicy) HeartbeatInterval() time.Duration { return 40 * time.Second }

// RequeueAfterFailure implements Policy. An unknown processor or an
// unexpected exception during init or run is never requeued; only a
// processing exception is eligible, and only while fewer than
// MaxFailures have accumulated.
func (p DefaultPolicy) RequeueAfterFailure(ctx context.Context, t *task.Task, failure core.Failure) (bool, error) {
	switch failure.Type {
	case core.FailureUnknownProcessor, core.FailureInitException, core.FailureException:
		return false, nil
	}

	failures, err := t.Failures(ctx)
	if err != nil {
		return false, err
	}
	return len(failures) < p.MaxFailures(), nil
}

// StoreFailedTask implements Policy.
func (DefaultPolicy) StoreFailedTask(context.Context, *task.Task, core.Failure) (bool, error) {
	return true, nil
}

// StoreFinishedTask implements Policy.
func (DefaultPolicy) StoreFinishedTask(context.Context, *task.Task) (bool, error) {
	return true, nil
}
