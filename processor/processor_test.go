package processor

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
	"gitlab.com/vycodi/vycodi/queue"
	"gitlab.com/vycodi/vycodi/task"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(io.Discard)
	require.NoError(t, err)
	return logger
}

func TestRegistryLoadUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Load("nope")
	assert.ErrorIs(t, err, ErrUnknownProcessor)
}

type noopHost struct{}

func (noopHost) TaskDir(*task.Task) (string, error) { return "", nil }
func (noopHost) FileLoader() FileLoader             { return nil }

func TestLoaderCachesProcessorInstances(t *testing.T) {
	r := NewRegistry()
	var constructed int
	r.Register("counting", func(host Host) Processor {
		constructed++
		return noopProcessor{}
	})

	l := NewLoader(r, noopHost{})
	_, err := l.Init("counting")
	require.NoError(t, err)
	_, err = l.Init("counting")
	require.NoError(t, err)
	assert.Equal(t, 1, constructed, "a cached Loader must construct a Processor once per name")
}

type noopProcessor struct{}

func (noopProcessor) ProcessTask(context.Context, *task.Task) error { return nil }

func TestProcessingErrorCarriesRequeueDecision(t *testing.T) {
	err := NewProcessingError(assertError("disk full"), false)
	assert.False(t, err.Requeue)
	assert.Equal(t, "disk full", err.Error())
}

type assertError string

func (e assertError) Error() string { return string(e) }

type fakeWorkerRef struct{ id int64 }

func (w fakeWorkerRef) ID() int64                            { return w.id }
func (w fakeWorkerRef) Alive(context.Context) (bool, error) { return true, nil }

// TestManagerUnknownProcessorFailsImmediately covers scenario S4: a task
// naming an unregistered processor must land on the queue's failed list
// on the very first attempt, never requeued, regardless of MaxFailures.
func TestManagerUnknownProcessorFailsImmediately(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	loader := task.NewLoader(coord)
	q, err := queue.Get(ctx, "jobs", coord, loader)
	require.NoError(t, err)

	tsk := task.New("does.not.Exist", task.Payload{})
	require.NoError(t, q.Enqueue(ctx, tsk))

	res, err := q.ReserveTask(ctx, fakeWorkerRef{id: 1}, queue.DefaultPolicy{}, 0)
	require.NoError(t, err)

	m := NewManager(NewLoader(NewRegistry(), noopHost{}), func(*task.Task) {}, testLogger(t))
	m.ProcessReservation(ctx, res)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth, "an unknown-processor task must not be requeued")

	failed, err := coord.LRange(ctx, core.QueueFailedKey(q.Name), 0, -1)
	require.NoError(t, err)
	assert.Len(t, failed, 1, "an unknown-processor task must land on the failed list immediately")

	reloaded, err := loader.Get(ctx, tsk.ID())
	require.NoError(t, err)
	failures, err := reloaded.Failures(ctx)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, core.FailureUnknownProcessor, failures[0].Type)
}
