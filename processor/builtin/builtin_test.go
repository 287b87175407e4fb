package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/vycodi/vycodi/coordinator/coordinatortest"
	"gitlab.com/vycodi/vycodi/processor"
	"gitlab.com/vycodi/vycodi/task"
)

// fakeLoader resolves file ids against an in-memory name/content table
// and shuttles bytes through the local filesystem, standing in for
// *fileclient.Loader.
type fakeLoader struct {
	names   map[int64]string
	content map[int64][]byte
	written map[int64][]byte
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		names:   map[int64]string{},
		content: map[int64][]byte{},
		written: map[int64][]byte{},
	}
}

func (l *fakeLoader) Name(_ context.Context, fileID int64) (string, error) {
	return l.names[fileID], nil
}

func (l *fakeLoader) Download(_ context.Context, fileID int64, destPath string) error {
	return os.WriteFile(destPath, l.content[fileID], 0o644)
}

func (l *fakeLoader) Upload(_ context.Context, fileID int64, srcPath string) error {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	l.written[fileID] = data
	return nil
}

type fakeHost struct {
	dir    string
	loader processor.FileLoader
}

func (h fakeHost) TaskDir(*task.Task) (string, error) { return h.dir, nil }
func (h fakeHost) FileLoader() processor.FileLoader    { return h.loader }

func TestNoopProcessTaskIsAlwaysANoOp(t *testing.T) {
	ctx := context.Background()
	loader := task.NewLoader(coordinatortest.New())
	tsk := task.New(NoopName, task.Payload{})
	require.NoError(t, tsk.Register(ctx, loader))

	n := NewNoop(fakeHost{})
	assert.NoError(t, n.ProcessTask(ctx, tsk))
}

func TestRegisterAddsNoopUnderItsName(t *testing.T) {
	registry := processor.NewRegistry()
	Register(registry)

	factory, err := registry.Load(NoopName)
	require.NoError(t, err)
	_, ok := factory(fakeHost{}).(Noop)
	assert.True(t, ok)
}

func TestEchoCopiesFirstInputToFirstOutput(t *testing.T) {
	ctx := context.Background()
	loader := task.NewLoader(coordinatortest.New())

	fl := newFakeLoader()
	fl.names[1] = "in.bin"
	fl.names[2] = "out.bin"
	fl.content[1] = []byte("hello world")

	tsk := task.New(EchoName, task.Payload{})
	require.NoError(t, tsk.SetInFiles([]int64{1}))
	require.NoError(t, tsk.SetOutFiles([]int64{2}))
	require.NoError(t, tsk.Register(ctx, loader))

	host := fakeHost{dir: t.TempDir(), loader: fl}
	echo := NewEcho(host)
	require.NoError(t, echo.ProcessTask(ctx, tsk))

	assert.Equal(t, []byte("hello world"), fl.written[2])
}

func TestEchoFailsWithoutInputOrOutputFiles(t *testing.T) {
	ctx := context.Background()
	loader := task.NewLoader(coordinatortest.New())

	tsk := task.New(EchoName, task.Payload{})
	require.NoError(t, tsk.Register(ctx, loader))

	host := fakeHost{dir: t.TempDir(), loader: newFakeLoader()}
	echo := NewEcho(host)
	assert.Error(t, echo.ProcessTask(ctx, tsk))
}

func TestRegisterEchoAddsEchoUnderItsName(t *testing.T) {
	registry := processor.NewRegistry()
	RegisterEcho(registry)

	factory, err := registry.Load(EchoName)
	require.NoError(t, err)
	assert.NotNil(t, factory(fakeHost{dir: filepath.Join(t.TempDir(), "run"), loader: newFakeLoader()}))
}
