// Package queue implements the task queue and reservation protocol
// (components C6 and C7 of the specification): atomic reservation of a
// pending task into a worker's working list, and the policy-driven
// check-in of a finished or failed task.
package queue

import (
	"context"
	"strconv"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator"
	"gitlab.com/vycodi/vycodi/task"
)

// WorkerRef is the slice of Worker a Queue needs: identity and a
// liveness check. Defined here, rather than imported from the worker
// package, to avoid a package cycle (worker depends on queue, not the
// other way around).
type WorkerRef interface {
	ID() int64
	Alive(ctx context.Context) (bool, error)
}

// Queue is a single named FIFO of tasks with companion working,
// finished and failed lists, all identified by the queue name (§3).
type Queue struct {
	Name   string
	coord  coordinator.Coordinator
	loader *task.Loader
}

// New returns a Queue bound to name. It does not register the queue
// name in the coordinator's "queues" set; use Get for that.
func New(name string, coord coordinator.Coordinator, loader *task.Loader) *Queue {
	return &Queue{Name: name, coord: coord, loader: loader}
}

// Get returns a Queue for name, first adding it to the "queues" set so
// it is discoverable via GetAll.
func Get(ctx context.Context, name string, coord coordinator.Coordinator, loader *task.Loader) (*Queue, error) {
	if err := coord.SAdd(ctx, core.KeyQueues, name); err != nil {
		return nil, errors.AddContext(err, "queue: register name")
	}
	return New(name, coord, loader), nil
}

// GetAll returns a Queue for every name currently in the "queues" set.
func GetAll(ctx context.Context, coord coordinator.Coordinator, loader *task.Loader) ([]*Queue, error) {
	names, err := coord.SMembers(ctx, core.KeyQueues)
	if err != nil {
		return nil, errors.AddContext(err, "queue: list names")
	}
	queues := make([]*Queue, len(names))
	for i, name := range names {
		queues[i] = New(name, coord, loader)
	}
	return queues, nil
}

// Enqueue registers t (if not already registered) against the given
// queue name and left-pushes its id onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, t *task.Task) error {
	if err := t.SetQueue(ctx, q.Name); err != nil {
		return err
	}
	if err := t.Register(ctx, q.loader); err != nil {
		return errors.AddContext(err, "queue: register task")
	}
	return q.coord.LPush(ctx, core.QueueKey(q.Name), strconv.FormatInt(t.ID(), 10))
}

// Depth returns the current length of the queue's pending list.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	values, err := q.coord.LRange(ctx, core.QueueKey(q.Name), 0, -1)
	if err != nil {
		return 0, errors.AddContext(err, "queue: depth")
	}
	return int64(len(values)), nil
}

// requeue pushes an already-registered task back onto the pending list
// without touching its registration state.
func (q *Queue) requeue(ctx context.Context, t *task.Task) error {
	return q.coord.LPush(ctx, core.QueueKey(q.Name), strconv.FormatInt(t.ID(), 10))
}

// ReserveTask atomically moves the next pending task-id into this
// queue's working list for worker, loads the Task, stamps its worker
// field, and records it on the worker's own working list.
//
// timeout == 0 performs a single non-blocking attempt. timeout < 0
// blocks indefinitely. timeout > 0 blocks up to that duration. On no
// task becoming available, ErrQueueTimeout is returned.
func (q *Queue) ReserveTask(ctx context.Context, worker WorkerRef, policy Policy, timeout time.Duration) (*Reservation, error) {
	var taskIDStr string
	var err error
	switch {
	case timeout == 0:
		taskIDStr, err = q.coord.RPopLPush(ctx, core.QueueKey(q.Name), core.QueueWorkingKey(q.Name))
	case timeout < 0:
		taskIDStr, err = q.coord.BRPopLPush(ctx, core.QueueKey(q.Name), core.QueueWorkingKey(q.Name), 0)
	default:
		taskIDStr, err = q.coord.BRPopLPush(ctx, core.QueueKey(q.Name), core.QueueWorkingKey(q.Name), timeout)
	}
	if errors.Contains(err, coordinator.ErrNotFound) {
		return nil, ErrQueueTimeout
	}
	if err != nil {
		return nil, errors.AddContext(err, "queue: reserve")
	}

	taskID, err := strconv.ParseInt(taskIDStr, 10, 64)
	if err != nil {
		return nil, errors.AddContext(err, "queue: parse reserved task id")
	}
	t, err := q.loader.Get(ctx, taskID)
	if err != nil {
		return nil, errors.AddContext(err, "queue: load reserved task")
	}
	workerID := worker.ID()
	if err := t.SetWorker(ctx, &workerID); err != nil {
		return nil, errors.AddContext(err, "queue: stamp worker")
	}
	if err := q.coord.LPush(ctx, core.WorkerWorkingKey(workerID), taskIDStr); err != nil {
		return nil, errors.AddContext(err, "queue: record on worker working list")
	}
	return &Reservation{queue: q, task: t, worker: worker, policy: policy}, nil
}

// Reservation represents "this worker has removed a task from pending
// and is responsible for checking it back in" (see glossary).
type Reservation struct {
	queue  *Queue
	task   *task.Task
	worker WorkerRef
	policy Policy
}

// Task returns the reserved task.
func (r *Reservation) Task() *task.Task { return r.task }

// removeFromWorkingLists removes this reservation's task-id from both
// the queue's working list and the worker's own working list. At most
// one occurrence is removed from each, matching the teacher-grounded
// original's lrem(key, -1, id) call.
func (r *Reservation) removeFromWorkingLists(ctx context.Context) error {
	idStr := strconv.FormatInt(r.task.ID(), 10)
	if _, err := r.queue.coord.LRem(ctx, core.QueueWorkingKey(r.queue.Name), -1, idStr); err != nil {
		return errors.AddContext(err, "reservation: remove from queue working")
	}
	workerID := r.worker.ID()
	if _, err := r.queue.coord.LRem(ctx, core.WorkerWorkingKey(workerID), -1, idStr); err != nil {
		return errors.AddContext(err, "reservation: remove from worker working")
	}
	return nil
}

// CheckinFinished reports the task as successfully processed. It is a
// no-op if the reserving worker is no longer alive, leaving the task-id
// in place for a reaper to requeue.
func (r *Reservation) CheckinFinished(ctx context.Context) error {
	alive, err := r.worker.Alive(ctx)
	if err != nil {
		return errors.AddContext(err, "reservation: check worker liveness")
	}
	if !alive {
		return nil
	}
	store, err := r.policy.StoreFinishedTask(ctx, r.task)
	if err != nil {
		return errors.AddContext(err, "reservation: policy.storeFinishedTask")
	}
	if store {
		idStr := strconv.FormatInt(r.task.ID(), 10)
		if err := r.queue.coord.LPush(ctx, core.QueueFinishedKey(r.queue.Name), idStr); err != nil {
			return errors.AddContext(err, "reservation: push finished")
		}
	}
	return r.removeFromWorkingLists(ctx)
}

// CheckinFailed reports the task as failed. It is a no-op if the
// reserving worker is no longer alive. When requeue is true and the
// policy agrees, the task goes back onto the pending list with its
// worker cleared; otherwise it is optionally stored on the failed list.
// In every case it is removed from both working lists. The returned
// bool reports whether the task was actually requeued, which may be
// false even with requeue=true if the policy overrides it.
func (r *Reservation) CheckinFailed(ctx context.Context, failure core.Failure, requeue bool) (bool, error) {
	alive, err := r.worker.Alive(ctx)
	if err != nil {
		return false, errors.AddContext(err, "reservation: check worker liveness")
	}
	if !alive {
		return false, nil
	}

	doRequeue := false
	if requeue {
		doRequeue, err = r.policy.RequeueAfterFailure(ctx, r.task, failure)
		if err != nil {
			return false, errors.AddContext(err, "reservation: policy.requeueAfterFailure")
		}
	}
	if doRequeue {
		if err := r.task.SetWorker(ctx, nil); err != nil {
			return false, errors.AddContext(err, "reservation: clear worker")
		}
		if err := r.queue.requeue(ctx, r.task); err != nil {
			return false, errors.AddContext(err, "reservation: requeue")
		}
	} else {
		store, err := r.policy.StoreFailedTask(ctx, r.task, failure)
		if err != nil {
			return false, errors.AddContext(err, "reservation: policy.storeFailedTask")
		}
		if store {
			idStr := strconv.FormatInt(r.task.ID(), 10)
			if err := r.queue.coord.LPush(ctx, core.QueueFailedKey(r.queue.Name), idStr); err != nil {
				return false, errors.AddContext(err, "reservation: push failed")
			}
		}
	}
	return doRequeue, r.removeFromWorkingLists(ctx)
}
