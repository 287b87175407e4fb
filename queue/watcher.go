package queue

import (
	"context"
	"time"
)

// defaultWait is the backoff between polling passes over all watched
// queues, matching the 100ms default in §4.6 of the specification.
const defaultWait = 100 * time.Millisecond

// Watcher polls an ordered set of queues for a single worker, giving
// earlier-declared queues priority: on each pass it tries every queue
// in order and returns the first hit. See §4.6.
type Watcher struct {
	worker WorkerRef
	policy Policy
	queues []*Queue
	wait   time.Duration
}

// NewWatcher returns a Watcher over queues (priority = slice order) for
// worker, using policy for every reservation it makes.
func NewWatcher(worker WorkerRef, policy Policy, queues ...*Queue) *Watcher {
	return &Watcher{worker: worker, policy: policy, queues: queues, wait: defaultWait}
}

// AddQueue appends a queue at the end of the priority order.
func (w *Watcher) AddQueue(q *Queue) { w.queues = append(w.queues, q) }

// ReportDepths calls report once per watched queue with its current
// pending-list length, for callers that want to publish it as a gauge.
func (w *Watcher) ReportDepths(ctx context.Context, report func(name string, depth int64)) error {
	for _, q := range w.queues {
		depth, err := q.Depth(ctx)
		if err != nil {
			return err
		}
		report(q.Name, depth)
	}
	return nil
}

// ReserveTask tries every watched queue in priority order; if all miss
// it sleeps wait (0 defaults to 100ms) and tries again, until timeout
// elapses. timeout < 0 means block indefinitely; timeout == 0 means try
// every queue exactly once, non-blocking.
func (w *Watcher) ReserveTask(ctx context.Context, timeout time.Duration) (*Reservation, error) {
	wait := w.wait
	if wait <= 0 {
		wait = defaultWait
	}

	var deadline time.Time
	hasDeadline := timeout > 0
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	for {
		r, err := w.fetchFromQueues(ctx)
		if err == nil {
			return r, nil
		}
		if err != ErrQueueTimeout {
			return nil, err
		}
		if timeout == 0 {
			return nil, ErrQueueTimeout
		}
		if hasDeadline && time.Now().After(deadline) {
			return nil, ErrQueueTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// fetchFromQueues makes one non-blocking pass over every watched queue
// in priority order.
func (w *Watcher) fetchFromQueues(ctx context.Context) (*Reservation, error) {
	for _, q := range w.queues {
		r, err := q.ReserveTask(ctx, w.worker, w.policy, 0)
		if err == nil {
			return r, nil
		}
		if err != ErrQueueTimeout {
			return nil, err
		}
	}
	return nil, ErrQueueTimeout
}
