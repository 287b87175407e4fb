package worker

import (
	"context"
	"time"

	"gitlab.com/NebulousLabs/threadgroup"
	"gitlab.com/vycodi/vycodi/metrics"
	"gitlab.com/vycodi/vycodi/queue"
)

// reserveTimeout bounds how long a single executor blocks on the
// watcher before checking whether it has been asked to stop, per the
// ≈5s figure in §4.9 of the specification.
const reserveTimeout = 5 * time.Second

// Pool runs a fixed number of executors, each looping: reserve a task
// off the worker's Watcher, hand it to the Manager, repeat. Shutdown is
// cooperative - an in-flight task always runs to completion.
type Pool struct {
	size   int
	worker *Worker
	tg     threadgroup.ThreadGroup
	metric *metrics.Registry
}

// NewPool returns a Pool of size executors for w. size < 1 is treated
// as 1.
func NewPool(size int, w *Worker) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, worker: w}
}

// SetMetrics attaches a metrics.Registry the pool's executors report
// reservation counts and in-flight gauge changes to. Optional.
func (p *Pool) SetMetrics(reg *metrics.Registry) { p.metric = reg }

// Start launches all executors in goroutines tracked by the Pool's
// ThreadGroup.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		if err := p.tg.Add(); err != nil {
			return
		}
		go p.runExecutor(ctx)
	}
}

// Stop signals every executor to exit after its current reservation
// attempt and waits for them all to return.
func (p *Pool) Stop() {
	_ = p.tg.Stop()
}

func (p *Pool) runExecutor(ctx context.Context) {
	defer p.tg.Done()
	for {
		select {
		case <-p.tg.StopChan():
			return
		default:
		}

		r, err := p.worker.watcher.ReserveTask(ctx, reserveTimeout)
		if err != nil {
			if err == queue.ErrQueueTimeout {
				continue
			}
			p.worker.log.Println("worker: reserve failed:", err)
			continue
		}
		if p.metric != nil {
			p.metric.TasksReserved.Inc()
			p.metric.InFlightTasks.Inc()
		}
		p.worker.manager.ProcessReservation(ctx, r)
		if p.metric != nil {
			p.metric.InFlightTasks.Dec()
		}
	}
}
