// Package processor implements the processor contract and its registry
// (components C8 and C9 of the specification): the interface a task's
// business logic satisfies, and the namespace table a ProcessingManager
// resolves a task's dotted processor name against.
//
// The original implementation resolves names to classes at runtime via
// Python's import machinery. Go has no equivalent dynamic class
// loading, so names are resolved against an explicit Registry that the
// worker populates with Register calls (see builtin.Register), a
// name-to-factory table in the spirit of the database/sql driver
// registry.
package processor

import (
	"context"

	"gitlab.com/vycodi/vycodi/task"
)

// Processor is the unit of business logic a Task names by its
// processor string. ProcessTask is handed the reserved task and runs
// to completion or returns an error; see ProcessingError for how an
// error's type affects requeue behaviour.
type Processor interface {
	ProcessTask(ctx context.Context, t *task.Task) error
}

// Factory constructs a Processor bound to host, the interface a worker
// exposes to the processors it runs (run directory, file loader).
type Factory func(host Host) Processor

// Host is the slice of worker state a Processor needs to do file I/O
// around its task, named separately from the worker package to avoid
// an import cycle (worker depends on processor, not the reverse).
type Host interface {
	TaskDir(t *task.Task) (string, error)
	FileLoader() FileLoader
}

// FileLoader is the file-fetching surface FileProcessor needs. It is
// satisfied by *fileclient.Loader.
type FileLoader interface {
	Download(ctx context.Context, fileID int64, destPath string) error
	Upload(ctx context.Context, fileID int64, srcPath string) error
	Name(ctx context.Context, fileID int64) (string, error)
}
