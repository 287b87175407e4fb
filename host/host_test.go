package host

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/backend/fsbackend"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
	"gitlab.com/vycodi/vycodi/heartbeat"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(io.Discard)
	require.NoError(t, err)
	return logger
}

func newTestHost(t *testing.T, coord *coordinatortest.Fake) *Host {
	t.Helper()
	h, err := New(context.Background(), Config{
		Coord:   coord,
		Address: "127.0.0.1",
		Port:    0,
		Backend: fsbackend.New(t.TempDir()),
		Log:     testLogger(t),
	})
	require.NoError(t, err)
	return h
}

func TestHostStartRegistersInCoordinator(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	h := newTestHost(t, coord)

	require.NoError(t, h.Start(ctx))
	defer h.Shutdown(ctx)

	members, err := coord.SMembers(ctx, core.KeyHosts)
	require.NoError(t, err)
	assert.Contains(t, members, "1")

	fields, err := coord.HGetAll(ctx, core.HostKey(h.ID()))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", fields["address"])
}

func TestHostShutdownDeregisters(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	h := newTestHost(t, coord)
	require.NoError(t, h.Start(ctx))
	require.NoError(t, h.Shutdown(ctx))

	members, err := coord.SMembers(ctx, core.KeyHosts)
	require.NoError(t, err)
	assert.NotContains(t, members, "1")

	exists, err := coord.Exists(ctx, core.HostKey(h.ID()))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestHostAddFilePublishesAWritableFile(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	h := newTestHost(t, coord)
	require.NoError(t, h.Start(ctx))
	defer h.Shutdown(ctx)

	f, err := h.AddFile(ctx, "new.bin")
	require.NoError(t, err)
	assert.Equal(t, "new.bin", f.Name)
	assert.Equal(t, core.FileWritable, f.Type)

	local, ok := h.Bucket().Get(f.ID)
	require.True(t, ok)
	assert.Equal(t, "new.bin", local.Name)
}

func TestHostZombieGivesUpAfterExceedingRestartBudget(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	h := newTestHost(t, coord)
	require.NoError(t, h.Start(ctx))

	for i := 0; i <= maxConsecutiveRestarts; i++ {
		h.Zombie(ctx)
	}

	// Zombie's last call already closed h.stopped synchronously, so Wait
	// returns immediately with the budget-exceeded error.
	err := h.Wait(context.Background())
	require.Error(t, err)
}

// TestHostZombieRestartsThroughRealHeartbeatWithoutDeadlocking drives the
// restart through the actual call path Zombie is invoked from: the
// heartbeat's own tracked goroutine, not the test's. A fast private
// Heartbeat stands in for the package's production-interval one so the
// test doesn't wait on hostTTL/hostInterval; once Zombie fires, the real
// run loop must be the one calling Shutdown -> heart.Stop() and still
// return, which it only can if Zombie is dispatched off that goroutine.
func TestHostZombieRestartsThroughRealHeartbeatWithoutDeadlocking(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	h := newTestHost(t, coord)
	require.NoError(t, h.Start(ctx))
	defer h.Shutdown(ctx)

	require.NoError(t, h.heart.Stop())
	h.heart = heartbeat.New(coord, core.HostKey(h.id), 20*time.Millisecond, 10*time.Millisecond, "", h, testLogger(t))
	require.NoError(t, h.heart.Start(ctx))

	// Let the key lapse so the heartbeat's own next refresh finds it
	// already gone, exactly as a crashed-and-respawned coordinator entry
	// would look from the host's point of view.
	require.NoError(t, coord.Del(ctx, core.HostKey(h.id)))

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.restarts > 0
	}, time.Second, 5*time.Millisecond, "the real heartbeat loop must drive a Zombie restart without hanging")

	// Zombie's Shutdown/Start runs on its own goroutine; give it a beat
	// to finish rebinding before this goroutine's deferred Shutdown
	// reaches in for the same fields.
	time.Sleep(50 * time.Millisecond)

	select {
	case <-h.stopped:
		t.Fatal("host gave up after a single zombie restart")
	default:
	}
}

func TestHostOnHeartbeatSuccessResetsRestartCounter(t *testing.T) {
	h := &Host{}
	h.restarts = 3
	h.OnHeartbeatSuccess()
	h.mu.Lock()
	restarts := h.restarts
	h.mu.Unlock()
	assert.Equal(t, 0, restarts)
}
