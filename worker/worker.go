// Package worker implements the Worker and its executor pool
// (component C10 of the specification): a fleet member that reserves
// tasks off a set of watched queues and runs them through a
// ProcessingManager, heartbeating its own liveness and requeuing any
// task still in flight when it dies.
package worker

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/NebulousLabs/threadgroup"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator"
	"gitlab.com/vycodi/vycodi/fileclient"
	"gitlab.com/vycodi/vycodi/heartbeat"
	"gitlab.com/vycodi/vycodi/metrics"
	"gitlab.com/vycodi/vycodi/processor"
	"gitlab.com/vycodi/vycodi/queue"
	"gitlab.com/vycodi/vycodi/task"
)

// depthReportInterval is how often a worker with metrics attached
// publishes its watched queues' depths.
const depthReportInterval = 10 * time.Second

// Worker reserves tasks off a Watcher and runs them through a
// Manager, owning a fixed-size Pool of executors, a Heartbeat refreshing
// its liveness key, and the run-directory each in-flight task gets
// staged under.
type Worker struct {
	id      int64
	coord   coordinator.Coordinator
	runRoot string
	policy  queue.Policy
	watcher *queue.Watcher
	manager *processor.Manager
	loader  *fileclient.Loader
	log     *log.Logger

	pool      *Pool
	heartbeat *heartbeat.Heartbeat
	metric    *metrics.Registry
	tg        threadgroup.ThreadGroup
}

// Config bundles the dependencies New needs.
type Config struct {
	Coord   coordinator.Coordinator
	RunRoot string
	Policy  queue.Policy
	// Queues is the priority-ordered list of queues this worker
	// watches; New builds the Watcher around it once the worker's own
	// id (needed as the Watcher's WorkerRef) is known.
	Queues       []*queue.Queue
	ProcessorReg *processor.Registry
	FileLoader   *fileclient.Loader
	PoolSize     int
	Log          *log.Logger
}

// New allocates a worker id and returns a Worker ready to Start.
func New(ctx context.Context, cfg Config) (*Worker, error) {
	id, err := cfg.Coord.Incr(ctx, core.KeyWorkersIndex)
	if err != nil {
		return nil, errors.AddContext(err, "worker: allocate id")
	}
	w := &Worker{
		id:      id,
		coord:   cfg.Coord,
		runRoot: cfg.RunRoot,
		policy:  cfg.Policy,
		loader:  cfg.FileLoader,
		log:     cfg.Log,
	}
	w.watcher = queue.NewWatcher(w, cfg.Policy, cfg.Queues...)
	w.manager = processor.NewManager(processor.NewLoader(cfg.ProcessorReg, w), w.cleanupTaskDir, cfg.Log)
	w.pool = NewPool(cfg.PoolSize, w)
	w.heartbeat = heartbeat.New(
		cfg.Coord, core.WorkerKey(id), cfg.Policy.WorkerTTL(), cfg.Policy.HeartbeatInterval(),
		core.KeyWorkers, w, cfg.Log,
	)
	return w, nil
}

// SetMetrics attaches a metrics.Registry to the worker and every
// component that optionally reports to one: its heartbeat, its
// processing manager, its executor pool, and its own queue-depth
// reporting loop.
func (w *Worker) SetMetrics(reg *metrics.Registry) {
	w.metric = reg
	w.heartbeat.SetMetrics(reg)
	w.manager.SetMetrics(reg)
	w.pool.SetMetrics(reg)
}

// ID implements queue.WorkerRef.
func (w *Worker) ID() int64 { return w.id }

// Alive implements queue.WorkerRef: a worker is alive exactly while its
// liveness key exists.
func (w *Worker) Alive(ctx context.Context) (bool, error) {
	return w.coord.Exists(ctx, core.WorkerKey(w.id))
}

// TaskDir implements processor.Host.
func (w *Worker) TaskDir(t *task.Task) (string, error) {
	dir := filepath.Join(w.runRoot, "task."+strconv.FormatInt(t.ID(), 10))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.AddContext(err, "worker: create task run directory")
	}
	return dir, nil
}

// FileLoader implements processor.Host.
func (w *Worker) FileLoader() processor.FileLoader { return w.loader }

// cleanupTaskDir removes a finished task's run directory. Errors are
// logged, not raised, matching the original's best-effort cleanup.
func (w *Worker) cleanupTaskDir(t *task.Task) {
	dir := filepath.Join(w.runRoot, "task."+strconv.FormatInt(t.ID(), 10))
	if err := os.RemoveAll(dir); err != nil {
		w.log.Println("worker: cleanup of", dir, "failed:", err)
	}
}

// Start registers the worker in the coordinator, starts its heartbeat
// and launches its executor pool.
func (w *Worker) Start(ctx context.Context) error {
	// The liveness key must exist before Heartbeat.Start refreshes its
	// TTL: Expire on a never-created key reports "not refreshed" (both
	// in real Redis and this module's fake), which would read as an
	// immediate self-zombie. Heartbeat.Start itself adds this key to the
	// "workers" set for the sweep to find, so there is nothing else to
	// register here.
	if err := w.coord.HSet(ctx, core.WorkerKey(w.id), map[string]string{"id": strconv.FormatInt(w.id, 10)}); err != nil {
		return errors.AddContext(err, "worker: create liveness key")
	}
	if err := w.heartbeat.Start(ctx); err != nil {
		return errors.AddContext(err, "worker: start heartbeat")
	}
	w.pool.Start(ctx)
	if w.metric != nil {
		if err := w.tg.Add(); err != nil {
			return errors.AddContext(err, "worker: start depth reporter")
		}
		go w.reportDepths(ctx)
	}
	return nil
}

// reportDepths periodically publishes every watched queue's depth to
// the attached metrics.Registry, until Shutdown stops it.
func (w *Worker) reportDepths(ctx context.Context) {
	defer w.tg.Done()
	ticker := time.NewTicker(depthReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.tg.StopChan():
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := w.watcher.ReportDepths(ctx, func(name string, depth int64) {
			w.metric.QueueDepth.WithLabelValues(name).Set(float64(depth))
		})
		if err != nil {
			w.log.Println("worker: report queue depths failed:", err)
		}
	}
}

// Shutdown signals the pool and heartbeat to stop, waits for in-flight
// tasks to finish, then deregisters and force-removes any lingering
// per-task run directories.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.pool.Stop()
	if w.metric != nil {
		_ = w.tg.Stop()
	}
	if err := w.heartbeat.Stop(); err != nil {
		w.log.Println("worker: heartbeat stop:", err)
	}
	if _, err := w.coord.SRem(ctx, core.KeyWorkers, core.WorkerKey(w.id)); err != nil {
		w.log.Println("worker: deregister:", err)
	}
	if err := w.coord.Del(ctx, core.WorkerKey(w.id), core.WorkerWorkingKey(w.id)); err != nil {
		w.log.Println("worker: delete liveness key:", err)
	}
	entries, err := os.ReadDir(w.runRoot)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = os.RemoveAll(filepath.Join(w.runRoot, e.Name()))
		}
	}
	return nil
}

// Zombie implements heartbeat.Purger: this worker's own liveness key
// lapsed before a refresh. There is nothing graceful to do locally
// beyond logging - the reaper on a peer will eventually requeue
// whatever this worker had reserved.
func (w *Worker) Zombie(ctx context.Context) {
	w.log.Println("worker: detected self zombie state for worker", w.id)
}

// Purge implements heartbeat.Purger: a peer worker whose liveness key
// disappeared while still listed in the workers set. Its in-flight
// tasks are requeued and its bookkeeping is torn down, closing the
// "permanently stuck task" gap a crashed worker would otherwise leave.
func (w *Worker) Purge(ctx context.Context, deadWorkerKey string) error {
	deadID, err := core.ParseWorkerID(deadWorkerKey)
	if err != nil {
		return errors.AddContext(err, "worker: parse dead worker key")
	}
	w.log.Println("worker: reaping dead worker", deadID)

	workingKey := core.WorkerWorkingKey(deadID)
	taskIDs, err := w.coord.LRange(ctx, workingKey, 0, -1)
	if err != nil {
		return errors.AddContext(err, "worker: list dead worker's working tasks")
	}

	loader := task.NewLoader(w.coord)
	for _, idStr := range taskIDs {
		taskID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			w.log.Println("worker: skip unparsable task id", idStr, "for dead worker", deadID)
			continue
		}
		t, err := loader.Get(ctx, taskID)
		if err != nil {
			w.log.Println("worker: load task", taskID, "for reap failed:", err)
			continue
		}
		if err := t.SetWorker(ctx, nil); err != nil {
			w.log.Println("worker: clear worker on task", taskID, "failed:", err)
			continue
		}
		if _, err := w.coord.LRem(ctx, core.QueueWorkingKey(t.Queue()), -1, idStr); err != nil {
			w.log.Println("worker: remove task", taskID, "from queue working failed:", err)
		}
		if err := w.coord.LPush(ctx, core.QueueKey(t.Queue()), idStr); err != nil {
			w.log.Println("worker: requeue task", taskID, "failed:", err)
			continue
		}
	}

	if err := w.coord.Del(ctx, workingKey, core.WorkerKey(deadID)); err != nil {
		w.log.Println("worker: cleanup dead worker", deadID, "keys failed:", err)
	}
	return nil
}
