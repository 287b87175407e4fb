// Package core holds the coordinator key schema and small value types
// shared across the file, task, queue, heartbeat and worker packages.
// Nothing in this package talks to the coordinator directly; it only
// names the keys and encodes/decodes the values that live at them.
package core

import (
	"strconv"
	"strings"
)

// Coordinator key prefixes and counters, matching the schema in §6 of
// the specification this module implements.
const (
	KeyFilesIndex   = "files:index"
	KeyHostsIndex   = "hosts:index"
	KeyWorkersIndex = "workers:index"
	KeyTasksIndex   = "tasks:index"

	KeyHosts   = "hosts"
	KeyWorkers = "workers"
	KeyQueues  = "queues"
)

// FileKey returns the hash key holding a File's descriptor.
func FileKey(id int64) string { return "file:" + strconv.FormatInt(id, 10) }

// FileHostsKey returns the set key of Hosts currently serving a File.
func FileHostsKey(id int64) string { return FileKey(id) + ":hosts" }

// FileLockKey returns the advisory publish/unpublish lock key for a File.
func FileLockKey(id int64) string { return FileKey(id) + ":lock" }

// FileWriteLockKey returns the upload write-lock key for a File.
func FileWriteLockKey(id int64) string { return FileKey(id) + ":writelock" }

// HostKey returns the hash key holding a Host's descriptor.
func HostKey(id int64) string { return "host:" + strconv.FormatInt(id, 10) }

// WorkerKey returns the liveness key for a Worker.
func WorkerKey(id int64) string { return "worker:" + strconv.FormatInt(id, 10) }

// WorkerWorkingKey returns the list key of task-ids reserved by a Worker.
func WorkerWorkingKey(id int64) string { return WorkerKey(id) + ":working" }

// ParseWorkerID extracts the numeric id back out of a key produced by
// WorkerKey, for callers (a heartbeat sweep's purge callback) that only
// have the liveness key string a peer was registered under.
func ParseWorkerID(key string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(key, "worker:"), 10, 64)
}

// QueueKey returns the pending-list key of a named queue.
func QueueKey(name string) string { return "queue:" + name }

// QueueWorkingKey returns the in-flight list key of a named queue.
func QueueWorkingKey(name string) string { return QueueKey(name) + ":working" }

// QueueFinishedKey returns the finished list key of a named queue.
func QueueFinishedKey(name string) string { return QueueKey(name) + ":finished" }

// QueueFailedKey returns the terminally-failed list key of a named queue.
func QueueFailedKey(name string) string { return QueueKey(name) + ":failed" }

// TaskKey returns the hash key holding a Task's scalar fields.
func TaskKey(id int64) string { return "task:" + strconv.FormatInt(id, 10) }

// TaskInFilesKey returns the ordered in-files list key of a Task.
func TaskInFilesKey(id int64) string { return TaskKey(id) + ":infiles" }

// TaskOutFilesKey returns the ordered out-files list key of a Task.
func TaskOutFilesKey(id int64) string { return TaskKey(id) + ":outfiles" }

// TaskFailuresKey returns the ordered failures list key of a Task.
func TaskFailuresKey(id int64) string { return TaskKey(id) + ":failures" }

// TaskResultKey returns the hash key holding a Task's result.
func TaskResultKey(id int64) string { return TaskKey(id) + ":result" }
