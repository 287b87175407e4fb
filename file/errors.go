// Package file implements the file registry and per-host bucket
// (components C2 and C3 of the specification): the coordinator-backed
// descriptor of who is serving which file, and a host's local index of
// the files it actually holds on disk.
package file

import "gitlab.com/NebulousLabs/errors"

// ErrNotFound is returned when a file id has no registered descriptor.
var ErrNotFound = errors.New("file: not found")
