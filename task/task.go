// Package task implements the Task entity and its Loader (component C5
// of the specification): a unit of work that serializes to a coordinator
// hash plus ordered side-lists for its input/output files and failures.
package task

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"gitlab.com/vycodi/vycodi/core"
)

// Payload is the opaque arguments a processor is invoked with, matching
// Python's *args/**kwargs calling convention the original processor
// contract is built around.
type Payload struct {
	Args   []interface{}          `json:"args"`
	Kwargs map[string]interface{} `json:"kwargs"`
}

// Task is a unit of work moving through a Queue. Its id is immutable
// once assigned by Register; inFiles/outFiles/failures are append-only
// lists loaded lazily from the coordinator the first time they're read
// on a registered Task, mirroring the "lazy attribute" design note in
// §9 of the specification as explicit, cached accessors instead of
// Python property descriptors.
type Task struct {
	mu sync.Mutex

	id         int64
	registered bool
	loader     *Loader

	queue     string
	worker    *int64
	processor string
	batch     *string
	payload   Payload

	inFiles      []int64
	inFilesSet   bool
	outFiles     []int64
	outFilesSet  bool
	failures     []core.Failure
	failuresSet  bool
	result       map[string]string
	resultSet    bool
}

// New creates an unregistered Task. Call Register (or Loader.Register)
// before enqueuing it.
func New(processor string, payload Payload) *Task {
	return &Task{processor: processor, payload: payload}
}

// ID returns the task's id, or 0 if it has not been registered yet.
func (t *Task) ID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.id
}

// Queue returns the name of the queue this task was last enqueued on.
func (t *Task) Queue() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queue
}

// Processor returns the dotted processor name this task will run.
func (t *Task) Processor() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processor
}

// Payload returns the args/kwargs payload handed to the processor.
func (t *Task) Payload() Payload {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.payload
}

// Worker returns the id of the worker currently holding this task, or
// nil if it is unassigned.
func (t *Task) Worker() *int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.worker
}

// Batch returns the batch id this task belongs to, if any.
func (t *Task) Batch() *string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batch
}

// SetBatch assigns the batch id. Only meaningful before Register.
func (t *Task) SetBatch(batch *string) { t.mu.Lock(); t.batch = batch; t.mu.Unlock() }

// SetQueue sets the owning queue name, writing through to the
// coordinator if the task is already registered.
func (t *Task) SetQueue(ctx context.Context, queue string) error {
	t.mu.Lock()
	t.queue = queue
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		return nil
	}
	if loader == nil {
		return ErrLoaderNotSet
	}
	return loader.updateTask(ctx, id, map[string]string{"queue": queue})
}

// SetWorker sets (or clears, when worker is nil) the reserving worker,
// writing through to the coordinator if the task is registered.
func (t *Task) SetWorker(ctx context.Context, worker *int64) error {
	t.mu.Lock()
	t.worker = worker
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		return nil
	}
	if loader == nil {
		return ErrLoaderNotSet
	}
	val := ""
	if worker != nil {
		val = strconv.FormatInt(*worker, 10)
	}
	return loader.updateTask(ctx, id, map[string]string{"worker": val})
}

// Register assigns an id (if not already assigned) and persists the
// task to the coordinator through loader. It is a no-op if the task is
// already registered.
func (t *Task) Register(ctx context.Context, loader *Loader) error {
	return loader.Register(ctx, t)
}

// InFiles returns the ordered list of input file ids, loading it from
// the coordinator on first access if the task is registered.
func (t *Task) InFiles(ctx context.Context) ([]int64, error) {
	t.mu.Lock()
	if t.inFilesSet {
		defer t.mu.Unlock()
		return append([]int64(nil), t.inFiles...), nil
	}
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		t.mu.Lock()
		t.inFiles, t.inFilesSet = nil, true
		t.mu.Unlock()
		return nil, nil
	}
	if loader == nil {
		return nil, ErrLoaderNotSet
	}
	files, err := loader.loadInFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.inFiles, t.inFilesSet = files, true
	t.mu.Unlock()
	return append([]int64(nil), files...), nil
}

// SetInFiles sets the input file list wholesale. Only legal before the
// task is registered; inFiles are append-only afterwards (see AddInFile).
func (t *Task) SetInFiles(files []int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registered {
		return ErrAlreadyRegistered
	}
	t.inFiles = append([]int64(nil), files...)
	t.inFilesSet = true
	return nil
}

// AddInFile appends a single input file id, writing through to the
// coordinator if the task is registered.
func (t *Task) AddInFile(ctx context.Context, fileID int64) error {
	t.mu.Lock()
	registered, loader, id := t.registered, t.loader, t.id
	if t.inFilesSet || !registered {
		t.inFiles = append(t.inFiles, fileID)
		t.inFilesSet = true
	}
	t.mu.Unlock()
	if !registered {
		return nil
	}
	if loader == nil {
		return ErrLoaderNotSet
	}
	return loader.addInFile(ctx, id, fileID)
}

// OutFiles returns the ordered list of output file ids, loading it from
// the coordinator on first access if the task is registered.
func (t *Task) OutFiles(ctx context.Context) ([]int64, error) {
	t.mu.Lock()
	if t.outFilesSet {
		defer t.mu.Unlock()
		return append([]int64(nil), t.outFiles...), nil
	}
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		t.mu.Lock()
		t.outFiles, t.outFilesSet = nil, true
		t.mu.Unlock()
		return nil, nil
	}
	if loader == nil {
		return nil, ErrLoaderNotSet
	}
	files, err := loader.loadOutFiles(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.outFiles, t.outFilesSet = files, true
	t.mu.Unlock()
	return append([]int64(nil), files...), nil
}

// SetOutFiles sets the output file list wholesale. Only legal before the
// task is registered.
func (t *Task) SetOutFiles(files []int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.registered {
		return ErrAlreadyRegistered
	}
	t.outFiles = append([]int64(nil), files...)
	t.outFilesSet = true
	return nil
}

// AddOutFile appends a single output file id, writing through to the
// coordinator if the task is registered.
func (t *Task) AddOutFile(ctx context.Context, fileID int64) error {
	t.mu.Lock()
	registered, loader, id := t.registered, t.loader, t.id
	if t.outFilesSet || !registered {
		t.outFiles = append(t.outFiles, fileID)
		t.outFilesSet = true
	}
	t.mu.Unlock()
	if !registered {
		return nil
	}
	if loader == nil {
		return ErrLoaderNotSet
	}
	return loader.addOutFile(ctx, id, fileID)
}

// Failures returns the ordered, append-only list of failures recorded
// against this task, loading it from the coordinator on first access.
func (t *Task) Failures(ctx context.Context) ([]core.Failure, error) {
	t.mu.Lock()
	if t.failuresSet {
		defer t.mu.Unlock()
		return append([]core.Failure(nil), t.failures...), nil
	}
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		t.mu.Lock()
		t.failures, t.failuresSet = nil, true
		t.mu.Unlock()
		return nil, nil
	}
	if loader == nil {
		return nil, ErrLoaderNotSet
	}
	failures, err := loader.loadFailures(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.failures, t.failuresSet = failures, true
	t.mu.Unlock()
	return append([]core.Failure(nil), failures...), nil
}

// AddFailure appends a Failure, writing through to the coordinator if
// the task is registered. Failures are append-only: there is no
// corresponding setter.
func (t *Task) AddFailure(ctx context.Context, f core.Failure) error {
	t.mu.Lock()
	registered, loader, id := t.registered, t.loader, t.id
	// A registered task whose failures were never loaded keeps them
	// unloaded, so the next Failures call reads the full list back.
	if t.failuresSet || !registered {
		t.failures = append(t.failures, f)
		t.failuresSet = true
	}
	t.mu.Unlock()
	if !registered {
		return nil
	}
	if loader == nil {
		return ErrLoaderNotSet
	}
	return loader.addFailure(ctx, id, f)
}

// Result returns the task's result hash, loading it from the
// coordinator on first access.
func (t *Task) Result(ctx context.Context) (map[string]string, error) {
	t.mu.Lock()
	if t.resultSet {
		defer t.mu.Unlock()
		return copyMap(t.result), nil
	}
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		t.mu.Lock()
		t.result, t.resultSet = map[string]string{}, true
		t.mu.Unlock()
		return map[string]string{}, nil
	}
	if loader == nil {
		return nil, ErrLoaderNotSet
	}
	result, err := loader.loadResult(ctx, id)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.result, t.resultSet = result, true
	t.mu.Unlock()
	return copyMap(result), nil
}

// SetResult replaces the result hash, writing through to the
// coordinator if the task is registered.
func (t *Task) SetResult(ctx context.Context, result map[string]string) error {
	t.mu.Lock()
	t.result, t.resultSet = copyMap(result), true
	registered, loader, id := t.registered, t.loader, t.id
	t.mu.Unlock()
	if !registered {
		return nil
	}
	if loader == nil {
		return ErrLoaderNotSet
	}
	return loader.storeResult(ctx, id, result)
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// marshalPayload encodes the payload for storage in the task hash.
func (t *Task) marshalPayload() (string, error) {
	if t.payload.Args == nil && t.payload.Kwargs == nil {
		return "", nil
	}
	b, err := json.Marshal(t.payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
