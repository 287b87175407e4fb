package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkerKeyRoundTrip(t *testing.T) {
	key := WorkerKey(42)
	assert.Equal(t, "worker:42", key)

	id, err := ParseWorkerID(key)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestParseWorkerIDRejectsGarbage(t *testing.T) {
	_, err := ParseWorkerID("not-a-worker-key")
	assert.Error(t, err)
}

func TestFileTypeHelpers(t *testing.T) {
	assert.True(t, File{Type: FileReadable}.Readable())
	assert.False(t, File{Type: FileLocked}.Readable())
	assert.False(t, File{Type: FileWritable}.Readable())

	assert.True(t, File{Type: FileWritable}.Writable())
	assert.False(t, File{Type: FileReadable}.Writable())
}

func TestQueueKeySchema(t *testing.T) {
	assert.Equal(t, "queue:jobs", QueueKey("jobs"))
	assert.Equal(t, "queue:jobs:working", QueueWorkingKey("jobs"))
	assert.Equal(t, "queue:jobs:finished", QueueFinishedKey("jobs"))
	assert.Equal(t, "queue:jobs:failed", QueueFailedKey("jobs"))
}
