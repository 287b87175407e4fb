package task

import (
	"context"
	"encoding/json"
	"strconv"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator"
)

// Loader registers Tasks with the coordinator and lazily hydrates their
// side-lists. It corresponds to vycodi's TaskLoader: the non-owning
// reference a Task holds back to the store that knows how to persist it.
type Loader struct {
	coord coordinator.Coordinator
}

// NewLoader returns a Loader bound to coord.
func NewLoader(coord coordinator.Coordinator) *Loader {
	return &Loader{coord: coord}
}

// Register assigns t.id (via the tasks:index counter) if it has none,
// writes the task hash, and pushes its inFiles/outFiles/failures
// side-lists. Calling Register twice on the same Task is a no-op.
func (l *Loader) Register(ctx context.Context, t *Task) error {
	t.mu.Lock()
	if t.registered {
		t.mu.Unlock()
		return nil
	}
	if t.loader == nil {
		t.loader = l
	}
	if t.id == 0 {
		id, err := l.coord.Incr(ctx, core.KeyTasksIndex)
		if err != nil {
			t.mu.Unlock()
			return errors.AddContext(err, "task: allocate id")
		}
		t.id = id
	}
	id := t.id
	payloadStr, err := t.marshalPayload()
	if err != nil {
		t.mu.Unlock()
		return errors.AddContext(err, "task: marshal payload")
	}
	fields := map[string]string{
		"id":        strconv.FormatInt(id, 10),
		"queue":     t.queue,
		"processor": t.processor,
	}
	if t.worker != nil {
		fields["worker"] = strconv.FormatInt(*t.worker, 10)
	}
	if t.batch != nil {
		fields["batch"] = *t.batch
	}
	if payloadStr != "" {
		fields["payload"] = payloadStr
	}
	inFiles := append([]int64(nil), t.inFiles...)
	outFiles := append([]int64(nil), t.outFiles...)
	failures := append([]core.Failure(nil), t.failures...)
	t.mu.Unlock()

	if err := l.coord.HSet(ctx, core.TaskKey(id), fields); err != nil {
		return errors.AddContext(err, "task: write hash")
	}
	if len(inFiles) > 0 {
		if err := l.coord.RPush(ctx, core.TaskInFilesKey(id), int64sToStrings(inFiles)...); err != nil {
			return errors.AddContext(err, "task: push infiles")
		}
	}
	if len(outFiles) > 0 {
		if err := l.coord.RPush(ctx, core.TaskOutFilesKey(id), int64sToStrings(outFiles)...); err != nil {
			return errors.AddContext(err, "task: push outfiles")
		}
	}
	if len(failures) > 0 {
		encoded := make([]string, len(failures))
		for i, f := range failures {
			b, err := json.Marshal(f)
			if err != nil {
				return errors.AddContext(err, "task: marshal failure")
			}
			encoded[i] = string(b)
		}
		if err := l.coord.RPush(ctx, core.TaskFailuresKey(id), encoded...); err != nil {
			return errors.AddContext(err, "task: push failures")
		}
	}

	t.mu.Lock()
	t.registered = true
	t.mu.Unlock()
	return nil
}

// Get loads a Task by id from the coordinator.
func (l *Loader) Get(ctx context.Context, id int64) (*Task, error) {
	fields, err := l.coord.HGetAll(ctx, core.TaskKey(id))
	if err != nil {
		return nil, errors.AddContext(err, "task: load")
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	t := &Task{
		id:         id,
		registered: true,
		loader:     l,
		queue:      fields["queue"],
		processor:  fields["processor"],
	}
	if w, ok := fields["worker"]; ok && w != "" {
		wid, err := strconv.ParseInt(w, 10, 64)
		if err == nil {
			t.worker = &wid
		}
	}
	if b, ok := fields["batch"]; ok && b != "" {
		batch := b
		t.batch = &batch
	}
	if p, ok := fields["payload"]; ok && p != "" {
		var payload Payload
		if err := json.Unmarshal([]byte(p), &payload); err != nil {
			return nil, errors.AddContext(err, "task: decode payload")
		}
		t.payload = payload
	}
	return t, nil
}

func (l *Loader) updateTask(ctx context.Context, id int64, fields map[string]string) error {
	return l.coord.HSet(ctx, core.TaskKey(id), fields)
}

func (l *Loader) loadInFiles(ctx context.Context, id int64) ([]int64, error) {
	return l.loadFileList(ctx, core.TaskInFilesKey(id))
}

func (l *Loader) loadOutFiles(ctx context.Context, id int64) ([]int64, error) {
	return l.loadFileList(ctx, core.TaskOutFilesKey(id))
}

func (l *Loader) loadFileList(ctx context.Context, key string) ([]int64, error) {
	raw, err := l.coord.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, errors.AddContext(err, "task: load file list")
	}
	out := make([]int64, 0, len(raw))
	for _, s := range raw {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.AddContext(err, "task: parse file id")
		}
		out = append(out, id)
	}
	return out, nil
}

func (l *Loader) addInFile(ctx context.Context, id, fileID int64) error {
	return l.coord.RPush(ctx, core.TaskInFilesKey(id), strconv.FormatInt(fileID, 10))
}

func (l *Loader) addOutFile(ctx context.Context, id, fileID int64) error {
	return l.coord.RPush(ctx, core.TaskOutFilesKey(id), strconv.FormatInt(fileID, 10))
}

func (l *Loader) loadFailures(ctx context.Context, id int64) ([]core.Failure, error) {
	raw, err := l.coord.LRange(ctx, core.TaskFailuresKey(id), 0, -1)
	if err != nil {
		return nil, errors.AddContext(err, "task: load failures")
	}
	out := make([]core.Failure, 0, len(raw))
	for _, s := range raw {
		var f core.Failure
		if err := json.Unmarshal([]byte(s), &f); err != nil {
			return nil, errors.AddContext(err, "task: decode failure")
		}
		out = append(out, f)
	}
	return out, nil
}

func (l *Loader) addFailure(ctx context.Context, id int64, f core.Failure) error {
	b, err := json.Marshal(f)
	if err != nil {
		return errors.AddContext(err, "task: marshal failure")
	}
	return l.coord.RPush(ctx, core.TaskFailuresKey(id), string(b))
}

func (l *Loader) loadResult(ctx context.Context, id int64) (map[string]string, error) {
	m, err := l.coord.HGetAll(ctx, core.TaskResultKey(id))
	if err != nil {
		return nil, errors.AddContext(err, "task: load result")
	}
	return m, nil
}

func (l *Loader) storeResult(ctx context.Context, id int64, result map[string]string) error {
	if err := l.coord.Del(ctx, core.TaskResultKey(id)); err != nil {
		return errors.AddContext(err, "task: clear result")
	}
	if len(result) == 0 {
		return nil
	}
	return l.coord.HSet(ctx, core.TaskResultKey(id), result)
}

func int64sToStrings(in []int64) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strconv.FormatInt(v, 10)
	}
	return out
}
