package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/task"
)

type fakeWorker struct {
	id    int64
	alive bool
}

func (w *fakeWorker) ID() int64 { return w.id }
func (w *fakeWorker) Alive(context.Context) (bool, error) { return w.alive, nil }

func newTestQueue(t *testing.T) (*Queue, *task.Loader) {
	t.Helper()
	coord := coordinatortest.New()
	loader := task.NewLoader(coord)
	q, err := Get(context.Background(), "jobs", coord, loader)
	require.NoError(t, err)
	return q, loader
}

func TestQueueEnqueueAndReserve(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	worker := &fakeWorker{id: 1, alive: true}

	tsk := task.New("vycodi.processors.builtin.Noop", task.Payload{})
	require.NoError(t, q.Enqueue(ctx, tsk))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	res, err := q.ReserveTask(ctx, worker, DefaultPolicy{}, 0)
	require.NoError(t, err)
	assert.Equal(t, tsk.ID(), res.Task().ID())

	depth, err = q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestQueueReserveTaskTimeoutWhenEmpty(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	worker := &fakeWorker{id: 1, alive: true}

	_, err := q.ReserveTask(ctx, worker, DefaultPolicy{}, 0)
	assert.Equal(t, ErrQueueTimeout, err)
}

func TestReservationCheckinFinishedPushesToFinishedList(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	worker := &fakeWorker{id: 1, alive: true}

	tsk := task.New("p", task.Payload{})
	require.NoError(t, q.Enqueue(ctx, tsk))
	res, err := q.ReserveTask(ctx, worker, DefaultPolicy{}, 0)
	require.NoError(t, err)

	require.NoError(t, res.CheckinFinished(ctx))

	working, err := q.coord.LRange(ctx, core.QueueWorkingKey(q.Name), 0, -1)
	require.NoError(t, err)
	assert.Empty(t, working)

	finished, err := q.coord.LRange(ctx, core.QueueFinishedKey(q.Name), 0, -1)
	require.NoError(t, err)
	assert.Len(t, finished, 1)
}

func TestReservationCheckinFinishedNoOpWhenWorkerDead(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	worker := &fakeWorker{id: 1, alive: true}

	tsk := task.New("p", task.Payload{})
	require.NoError(t, q.Enqueue(ctx, tsk))
	res, err := q.ReserveTask(ctx, worker, DefaultPolicy{}, 0)
	require.NoError(t, err)

	worker.alive = false
	require.NoError(t, res.CheckinFinished(ctx))

	// Left in place for a reaper, not moved to finished.
	working, err := q.coord.LRange(ctx, core.QueueWorkingKey(q.Name), 0, -1)
	require.NoError(t, err)
	assert.Len(t, working, 1)
	finished, err := q.coord.LRange(ctx, core.QueueFinishedKey(q.Name), 0, -1)
	require.NoError(t, err)
	assert.Empty(t, finished)
}

func TestReservationCheckinFailedRequeuesUnderMaxFailures(t *testing.T) {
	ctx := context.Background()
	q, loader := newTestQueue(t)
	worker := &fakeWorker{id: 1, alive: true}

	tsk := task.New("p", task.Payload{})
	require.NoError(t, q.Enqueue(ctx, tsk))
	res, err := q.ReserveTask(ctx, worker, DefaultPolicy{}, 0)
	require.NoError(t, err)

	failure := core.Failure{Type: core.FailureProcessingExc, Message: "boom"}
	require.NoError(t, tsk.AddFailure(ctx, failure))
	requeued, err := res.CheckinFailed(ctx, failure, true)
	require.NoError(t, err)
	assert.True(t, requeued)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	reloaded, err := loader.Get(ctx, tsk.ID())
	require.NoError(t, err)
	assert.Nil(t, reloaded.Worker(), "a requeued task must have its worker cleared")
}

func TestReservationCheckinFailedStopsRequeueAtMaxFailures(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)
	worker := &fakeWorker{id: 1, alive: true}

	tsk := task.New("p", task.Payload{})
	require.NoError(t, q.Enqueue(ctx, tsk))

	policy := DefaultPolicy{}
	for i := 0; i < policy.MaxFailures(); i++ {
		require.NoError(t, tsk.AddFailure(ctx, core.Failure{Type: core.FailureProcessingExc}))
	}

	res, err := q.ReserveTask(ctx, worker, policy, 0)
	require.NoError(t, err)

	failure := core.Failure{Type: core.FailureProcessingExc, Message: "final"}
	requeued, err := res.CheckinFailed(ctx, failure, true)
	require.NoError(t, err)
	assert.False(t, requeued, "task should not be requeued once MaxFailures is reached")

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth, "task should not be requeued once MaxFailures is reached")

	failed, err := q.coord.LRange(ctx, core.QueueFailedKey(q.Name), 0, -1)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestWatcherPriorityOrder(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	loader := task.NewLoader(coord)
	high, err := Get(ctx, "high", coord, loader)
	require.NoError(t, err)
	low, err := Get(ctx, "low", coord, loader)
	require.NoError(t, err)

	lowTask := task.New("p", task.Payload{})
	require.NoError(t, low.Enqueue(ctx, lowTask))
	highTask := task.New("p", task.Payload{})
	require.NoError(t, high.Enqueue(ctx, highTask))

	worker := &fakeWorker{id: 1, alive: true}
	w := NewWatcher(worker, DefaultPolicy{}, high, low)

	res, err := w.ReserveTask(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, highTask.ID(), res.Task().ID(), "higher-priority queue should be drained first")
}

func TestWatcherReserveTaskTimeoutAcrossAllQueues(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	loader := task.NewLoader(coord)
	q, err := Get(ctx, "jobs", coord, loader)
	require.NoError(t, err)

	worker := &fakeWorker{id: 1, alive: true}
	w := NewWatcher(worker, DefaultPolicy{}, q)

	_, err = w.ReserveTask(ctx, 0)
	assert.Equal(t, ErrQueueTimeout, err)
}

func TestWatcherReserveTaskBlocksUntilEnqueued(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	loader := task.NewLoader(coord)
	q, err := Get(ctx, "jobs", coord, loader)
	require.NoError(t, err)

	worker := &fakeWorker{id: 1, alive: true}
	w := NewWatcher(worker, DefaultPolicy{}, q)
	w.wait = 5 * time.Millisecond

	tsk := task.New("p", task.Payload{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = q.Enqueue(ctx, tsk)
	}()

	res, err := w.ReserveTask(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, tsk.ID(), res.Task().ID())
}

func TestWatcherReportDepths(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	loader := task.NewLoader(coord)
	a, err := Get(ctx, "a", coord, loader)
	require.NoError(t, err)
	b, err := Get(ctx, "b", coord, loader)
	require.NoError(t, err)
	require.NoError(t, a.Enqueue(ctx, task.New("p", task.Payload{})))
	require.NoError(t, a.Enqueue(ctx, task.New("p", task.Payload{})))
	require.NoError(t, b.Enqueue(ctx, task.New("p", task.Payload{})))

	worker := &fakeWorker{id: 1, alive: true}
	w := NewWatcher(worker, DefaultPolicy{}, a, b)

	depths := map[string]int64{}
	require.NoError(t, w.ReportDepths(ctx, func(name string, depth int64) {
		depths[name] = depth
	}))
	assert.Equal(t, int64(2), depths["a"])
	assert.Equal(t, int64(1), depths["b"])
}
