package builtin

import (
	"context"
	"io"
	"os"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/processor"
	"gitlab.com/vycodi/vycodi/task"
)

// EchoName is the dotted name Echo registers under.
const EchoName = "vycodi.processors.builtin.Echo"

// NewEcho is a processor.Factory for a FileProcessor that copies its
// first input file to its first output file byte-for-byte.
func NewEcho(host processor.Host) processor.Processor {
	return processor.NewFileProcessor(host, echoPerform)
}

func echoPerform(ctx context.Context, t *task.Task, in, out []processor.StagedFile) error {
	if len(in) == 0 || len(out) == 0 {
		return errors.New("echo: requires at least one input and one output file")
	}
	src, err := os.Open(in[0].Path)
	if err != nil {
		return errors.AddContext(err, "echo: open input")
	}
	defer src.Close()

	dst, err := os.Create(out[0].Path)
	if err != nil {
		return errors.AddContext(err, "echo: create output")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return errors.AddContext(err, "echo: copy")
	}
	return nil
}

// RegisterEcho adds Echo to registry under EchoName.
func RegisterEcho(registry *processor.Registry) {
	registry.Register(EchoName, NewEcho)
}
