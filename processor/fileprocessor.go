package processor

import (
	"context"
	"path/filepath"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/task"
)

// StagedFile is an input or output file staged on local disk for the
// duration of a FileProcessor's run.
type StagedFile struct {
	ID   int64
	Name string
	Path string
}

// FileProcessor is the base behaviour for processors that need task
// input/output files staged on local disk: download every input file
// into the task's run directory before Perform runs, and upload every
// output file back out afterwards.
//
// Build one with NewFileProcessor, passing the business logic as the
// Perform function (see builtin.Echo); ProcessTask calls that field.
type FileProcessor struct {
	host Host
	// Perform is the processor's actual business logic, given the
	// staged input and output files.
	Perform func(ctx context.Context, t *task.Task, in, out []StagedFile) error
}

// NewFileProcessor returns a FileProcessor bound to host whose
// ProcessTask calls perform with staged files.
func NewFileProcessor(host Host, perform func(ctx context.Context, t *task.Task, in, out []StagedFile) error) *FileProcessor {
	return &FileProcessor{host: host, Perform: perform}
}

// ProcessTask implements Processor: stage inputs, run Perform, upload
// outputs.
func (p *FileProcessor) ProcessTask(ctx context.Context, t *task.Task) error {
	runDir, err := p.host.TaskDir(t)
	if err != nil {
		return errors.AddContext(err, "fileprocessor: task run directory")
	}
	loader := p.host.FileLoader()

	inIDs, err := t.InFiles(ctx)
	if err != nil {
		return errors.AddContext(err, "fileprocessor: load input file ids")
	}
	in := make([]StagedFile, 0, len(inIDs))
	for _, id := range inIDs {
		name, err := loader.Name(ctx, id)
		if err != nil {
			return errors.AddContext(err, "fileprocessor: resolve input file name")
		}
		path := filepath.Join(runDir, name)
		if err := loader.Download(ctx, id, path); err != nil {
			return errors.AddContext(err, "fileprocessor: download input file")
		}
		in = append(in, StagedFile{ID: id, Name: name, Path: path})
	}

	outIDs, err := t.OutFiles(ctx)
	if err != nil {
		return errors.AddContext(err, "fileprocessor: load output file ids")
	}
	out := make([]StagedFile, 0, len(outIDs))
	for _, id := range outIDs {
		name, err := loader.Name(ctx, id)
		if err != nil {
			return errors.AddContext(err, "fileprocessor: resolve output file name")
		}
		out = append(out, StagedFile{ID: id, Name: name, Path: filepath.Join(runDir, name)})
	}

	if err := p.Perform(ctx, t, in, out); err != nil {
		return err
	}

	for _, f := range out {
		if err := loader.Upload(ctx, f.ID, f.Path); err != nil {
			return errors.AddContext(err, "fileprocessor: upload output file "+f.Name)
		}
	}
	return nil
}
