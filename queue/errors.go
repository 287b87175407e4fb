package queue

import "gitlab.com/NebulousLabs/errors"

// ErrQueueTimeout is returned by ReserveTask when no task became
// available before the requested timeout. It is benign: callers are
// expected to loop (see Watcher).
var ErrQueueTimeout = errors.New("queue: timeout, no task available")
