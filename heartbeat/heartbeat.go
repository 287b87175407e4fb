// Package heartbeat implements the liveness protocol shared by workers
// and hosts (component C4 of the specification): periodic TTL refresh
// of a coordinator key, self-zombie detection when that refresh finds
// the key already gone, and a low-frequency sweep of a companion set
// that purges peers whose own key has expired.
package heartbeat

import (
	"context"
	"strconv"
	"time"

	"gitlab.com/NebulousLabs/log"
	"gitlab.com/NebulousLabs/threadgroup"
	"gitlab.com/vycodi/vycodi/coordinator"
	"gitlab.com/vycodi/vycodi/metrics"
)

// Purger reacts to dead peers discovered during a sweep, and to this
// instance's own key having lapsed.
type Purger interface {
	// Purge is called for a set member whose liveness key has expired.
	Purge(ctx context.Context, key string) error
	// Zombie is called when this instance's own liveness key lapsed
	// before it could be refreshed.
	Zombie(ctx context.Context)
}

// Heartbeat owns a single coordinator key, refreshing its TTL on
// interval and, if configured with a set key and Purger, periodically
// sweeping that set for peers whose own key has gone missing.
//
// Sweeps run every 5 refreshes times the set's cardinality at the time
// heartbeating began, mirroring the counting scheme of the original
// implementation: a cheap amortized check rather than a sweep on every
// tick.
type Heartbeat struct {
	coord  coordinator.Coordinator
	key    string
	ttl    time.Duration
	every  time.Duration
	setKey string
	purger Purger
	log    *log.Logger
	metric *metrics.Registry

	tg threadgroup.ThreadGroup
}

// SetMetrics attaches a metrics.Registry whose HeartbeatTicks counter is
// incremented on every refresh attempt, labeled by outcome. Optional;
// a Heartbeat with no Registry attached simply skips the increment.
func (h *Heartbeat) SetMetrics(m *metrics.Registry) { h.metric = m }

// New returns a Heartbeat refreshing key's TTL to ttl every interval.
// setKey may be empty and purger nil, in which case no sweep is
// performed; otherwise key is added to setKey and peers are swept.
func New(coord coordinator.Coordinator, key string, ttl, interval time.Duration, setKey string, purger Purger, logger *log.Logger) *Heartbeat {
	return &Heartbeat{
		coord:  coord,
		key:    key,
		ttl:    ttl,
		every:  interval,
		setKey: setKey,
		purger: purger,
		log:    logger,
	}
}

// Start sets the initial TTL and launches the refresh loop in a
// goroutine tracked by the Heartbeat's ThreadGroup. Call Stop to end it.
func (h *Heartbeat) Start(ctx context.Context) error {
	if err := h.tg.Add(); err != nil {
		return err
	}
	if _, err := h.coord.Expire(ctx, h.key, h.ttl); err != nil {
		h.tg.Done()
		return err
	}
	if h.setKey != "" && h.purger != nil {
		if err := h.coord.SAdd(ctx, h.setKey, h.key); err != nil {
			h.tg.Done()
			return err
		}
	}
	go h.run(ctx)
	return nil
}

// Stop signals the refresh loop to exit and waits for it to do so.
func (h *Heartbeat) Stop() error {
	return h.tg.Stop()
}

func (h *Heartbeat) run(ctx context.Context) {
	defer h.tg.Done()

	var counter, maxCounter int
	sweeping := h.setKey != "" && h.purger != nil
	if sweeping {
		n, err := h.coord.SCard(ctx, h.setKey)
		if err != nil {
			h.log.Debugln("heartbeat: read set cardinality:", err)
		}
		maxCounter = int(n) * 5
		if maxCounter == 0 {
			maxCounter = 5
		}
	}

	ticker := time.NewTicker(h.every)
	defer ticker.Stop()

	for {
		select {
		case <-h.tg.StopChan():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		h.log.Debugln("heartbeat: refreshing", h.key)
		refreshed, err := h.coord.Expire(ctx, h.key, h.ttl)
		if err != nil {
			h.log.Println("heartbeat: refresh failed:", err)
			h.countTick("error")
			continue
		}
		if !refreshed {
			h.log.Println("heartbeat: detected own zombie state for", h.key)
			h.countTick("zombie")
			// Zombie runs off this goroutine: a Purger reacting to its own
			// zombie state by restarting typically calls back into Stop,
			// which waits on h.tg and would otherwise deadlock against the
			// very goroutine Stop is waiting on.
			if h.purger != nil {
				go h.purger.Zombie(ctx)
			}
			continue
		}
		h.countTick("ok")
		if onTick, ok := h.purger.(interface{ OnHeartbeatSuccess() }); ok {
			onTick.OnHeartbeatSuccess()
		}

		if !sweeping {
			continue
		}
		counter++
		if counter < maxCounter {
			continue
		}
		counter = 0
		h.sweep(ctx)
	}
}

// sweep walks the members of setKey, purging any whose own liveness key
// no longer exists in the coordinator.
func (h *Heartbeat) sweep(ctx context.Context) {
	members, err := h.coord.SMembers(ctx, h.setKey)
	if err != nil {
		h.log.Println("heartbeat: sweep failed to list members:", err)
		return
	}
	for _, member := range members {
		exists, err := h.coord.Exists(ctx, member)
		if err != nil {
			h.log.Println("heartbeat: sweep failed to check", member, ":", err)
			continue
		}
		if exists {
			continue
		}
		removed, err := h.coord.SRem(ctx, h.setKey, member)
		if err != nil {
			h.log.Println("heartbeat: sweep failed to remove", member, ":", err)
			continue
		}
		if removed == 0 {
			// another sweeper already claimed this member.
			continue
		}
		h.log.Println("heartbeat: found dead instance", member)
		if err := h.purger.Purge(ctx, member); err != nil {
			h.log.Println("heartbeat: purge of", member, "failed:", err)
		}
	}
}

// FormatID is a small convenience for callers building set-member keys
// out of int64 identifiers (worker and host ids).
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (h *Heartbeat) countTick(outcome string) {
	if h.metric == nil {
		return
	}
	h.metric.HeartbeatTicks.WithLabelValues(outcome).Inc()
}
