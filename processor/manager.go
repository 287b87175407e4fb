package processor

import (
	"context"

	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/metrics"
	"gitlab.com/vycodi/vycodi/queue"
	"gitlab.com/vycodi/vycodi/task"
)

// Manager runs a reserved task's processor to completion, classifying
// whatever it returns into a Failure and checking the reservation in
// accordingly (component C9). This is the only place a failed run's
// error is translated into the wire-level Failure taxonomy.
type Manager struct {
	loader  *Loader
	cleanup func(t *task.Task)
	log     *log.Logger
	metric  *metrics.Registry
}

// NewManager returns a Manager resolving processors through loader and
// calling cleanup once a task's reservation has been checked in,
// whatever the outcome.
func NewManager(loader *Loader, cleanup func(t *task.Task), logger *log.Logger) *Manager {
	return &Manager{loader: loader, cleanup: cleanup, log: logger}
}

// SetMetrics attaches a metrics.Registry whose task counters are
// incremented as reservations are checked in. Optional.
func (m *Manager) SetMetrics(reg *metrics.Registry) { m.metric = reg }

// ProcessReservation resolves the reservation's task's processor, runs
// it, and checks the reservation in with a Failure classified from
// whatever error (if any) came back. It never returns an error itself:
// every failure path is terminal from the caller's point of view, and
// is reported through logging plus the checked-in Failure.
func (m *Manager) ProcessReservation(ctx context.Context, r *queue.Reservation) {
	t := r.Task()
	defer m.cleanup(t)

	proc, err := m.loader.Init(t.Processor())
	if err != nil {
		m.failInit(ctx, r, t, err)
		return
	}

	if err := proc.ProcessTask(ctx, t); err != nil {
		m.failRun(ctx, r, t, err)
		return
	}

	m.log.Println("processor: finished task", t.ID(), "queue", t.Queue(), "processor", t.Processor())
	if err := r.CheckinFinished(ctx); err != nil {
		m.log.Println("processor: checkin finished failed for task", t.ID(), ":", err)
	}
	if m.metric != nil {
		m.metric.TasksFinished.Inc()
	}
}

func (m *Manager) failInit(ctx context.Context, r *queue.Reservation, t *task.Task, err error) {
	var failure core.Failure
	requeue := true

	if err == ErrUnknownProcessor {
		m.log.Println("processor: unknown processor", t.Processor(), "for task", t.ID(), ":", err)
		failure = core.Failure{Type: core.FailureUnknownProcessor, Message: err.Error()}
	} else if pe, ok := err.(*ProcessingError); ok {
		m.log.Println("processor: processing error during init of task", t.ID(), ":", pe.Error())
		failure = core.Failure{Type: core.FailureProcessingExc, Message: pe.Error()}
		requeue = pe.Requeue
	} else {
		m.log.Println("processor: exception during init of task", t.ID(), ":", err)
		failure = core.Failure{Type: core.FailureInitException, Message: err.Error()}
	}

	m.checkin(ctx, r, t, failure, requeue)
}

func (m *Manager) failRun(ctx context.Context, r *queue.Reservation, t *task.Task, err error) {
	var failure core.Failure
	requeue := true

	if pe, ok := err.(*ProcessingError); ok {
		m.log.Println("processor: processing error during execution of task", t.ID(), ":", pe.Error())
		failure = core.Failure{Type: core.FailureProcessingExc, Message: pe.Error()}
		requeue = pe.Requeue
	} else {
		m.log.Println("processor: exception during execution of task", t.ID(), ":", err)
		failure = core.Failure{Type: core.FailureException, Message: err.Error()}
	}

	m.checkin(ctx, r, t, failure, requeue)
}

func (m *Manager) checkin(ctx context.Context, r *queue.Reservation, t *task.Task, failure core.Failure, requeue bool) {
	if err := t.AddFailure(ctx, failure); err != nil {
		m.log.Println("processor: record failure for task", t.ID(), "failed:", err)
	}
	requeued, err := r.CheckinFailed(ctx, failure, requeue)
	if err != nil {
		m.log.Println("processor: checkin failed for task", t.ID(), ":", err)
	}
	if m.metric == nil {
		return
	}
	if requeued {
		m.metric.TasksRequeued.Inc()
	} else {
		m.metric.TasksFailed.Inc()
	}
}
