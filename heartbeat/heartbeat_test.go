package heartbeat

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
)

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	logger, err := log.NewLogger(io.Discard)
	require.NoError(t, err)
	return logger
}

type recordingPurger struct {
	mu       sync.Mutex
	zombied  bool
	purged   []string
	onTicked int
}

func (p *recordingPurger) Zombie(context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zombied = true
}

func (p *recordingPurger) Purge(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, key)
	return nil
}

func (p *recordingPurger) wasZombied() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.zombied
}

func (p *recordingPurger) purgedKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.purged...)
}

// A key that is never created before Start is asked to refresh it must
// read back as an immediate self-zombie - this is the exact failure
// mode a caller forgetting to pre-create its liveness key would hit.
func TestExpireOnNeverCreatedKeyIsNotRefreshed(t *testing.T) {
	coord := coordinatortest.New()
	refreshed, err := coord.Expire(context.Background(), "worker:1", time.Second)
	require.NoError(t, err)
	assert.False(t, refreshed, "Expire on a key nobody created must report false")
}

func TestHeartbeatDetectsSelfZombieIfKeyNeverCreated(t *testing.T) {
	coord := coordinatortest.New()
	purger := &recordingPurger{}
	hb := New(coord, "worker:1", 50*time.Millisecond, 5*time.Millisecond, "", purger, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hb.Start(ctx))
	defer hb.Stop()

	assert.Eventually(t, purger.wasZombied, time.Second, time.Millisecond,
		"a heartbeat whose key was never created must see itself as a zombie on the first tick")
}

func TestHeartbeatStaysAliveWhenKeyPreCreated(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	require.NoError(t, coord.HSet(ctx, "worker:1", map[string]string{"id": "1"}))

	purger := &recordingPurger{}
	hb := New(coord, "worker:1", 100*time.Millisecond, 5*time.Millisecond, "", purger, testLogger(t))
	require.NoError(t, hb.Start(ctx))
	defer hb.Stop()

	time.Sleep(30 * time.Millisecond)
	assert.False(t, purger.wasZombied(), "a worker that created its liveness key before Start must not self-zombie")
}

func TestHeartbeatSweepPurgesDeadPeer(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()

	// A peer registered itself, then its key lapsed without a trace.
	require.NoError(t, coord.SAdd(ctx, "workers", "worker:2"))

	purger := &recordingPurger{}
	require.NoError(t, coord.HSet(ctx, "worker:1", map[string]string{"id": "1"}))
	hb := New(coord, "worker:1", time.Second, 2*time.Millisecond, "workers", purger, testLogger(t))
	require.NoError(t, hb.Start(ctx))
	defer hb.Stop()

	assert.Eventually(t, func() bool {
		return len(purger.purgedKeys()) > 0
	}, time.Second, time.Millisecond)
	assert.Contains(t, purger.purgedKeys(), "worker:2")

	members, err := coord.SMembers(ctx, "workers")
	require.NoError(t, err)
	assert.NotContains(t, members, "worker:2")
}

func TestHeartbeatSweepLeavesLivePeerAlone(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	require.NoError(t, coord.HSet(ctx, "worker:2", map[string]string{"id": "2"}))
	require.NoError(t, coord.SAdd(ctx, "workers", "worker:2"))

	purger := &recordingPurger{}
	require.NoError(t, coord.HSet(ctx, "worker:1", map[string]string{"id": "1"}))
	hb := New(coord, "worker:1", time.Second, 2*time.Millisecond, "workers", purger, testLogger(t))
	require.NoError(t, hb.Start(ctx))
	defer hb.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, purger.purgedKeys())
}

type onTickPurger struct {
	recordingPurger
	ticks int32
}

func (p *onTickPurger) OnHeartbeatSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTicked++
}

func TestHeartbeatInvokesOptionalOnHeartbeatSuccessHook(t *testing.T) {
	ctx := context.Background()
	coord := coordinatortest.New()
	require.NoError(t, coord.HSet(ctx, "worker:1", map[string]string{"id": "1"}))

	purger := &onTickPurger{}
	hb := New(coord, "worker:1", time.Second, 5*time.Millisecond, "", purger, testLogger(t))
	require.NoError(t, hb.Start(ctx))
	defer hb.Stop()

	assert.Eventually(t, func() bool {
		purger.mu.Lock()
		defer purger.mu.Unlock()
		return purger.onTicked > 0
	}, time.Second, time.Millisecond)
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "7", FormatID(7))
}
