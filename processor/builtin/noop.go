// Package builtin ships fixture processors exercised by the test suite
// and referenced in documentation: Noop, a processor with no side
// effects, and Echo, a FileProcessor that copies its input to its
// output. Neither is added to a processor.Registry automatically; a
// worker registers the ones it wants to make available.
package builtin

import (
	"context"

	"gitlab.com/vycodi/vycodi/processor"
	"gitlab.com/vycodi/vycodi/task"
)

// NoopName is the dotted name Noop registers under.
const NoopName = "vycodi.processors.builtin.Noop"

// Noop does nothing and never fails. Useful for exercising the queue
// and reservation machinery without any real work attached.
type Noop struct{}

// NewNoop is a processor.Factory for Noop.
func NewNoop(processor.Host) processor.Processor { return Noop{} }

// ProcessTask implements processor.Processor.
func (Noop) ProcessTask(context.Context, *task.Task) error { return nil }

// Register adds Noop to registry under NoopName.
func Register(registry *processor.Registry) {
	registry.Register(NoopName, NewNoop)
}
