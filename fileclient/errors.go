// Package fileclient implements the HTTP file client and loader
// (component C12 of the specification): resolving a file id to a
// serving host via the coordinator, then downloading or uploading its
// bytes over HTTP against that host's httpfile server.
package fileclient

import "gitlab.com/NebulousLabs/errors"

// ErrFileNotFound is returned when a file id has no registered
// descriptor in the coordinator.
var ErrFileNotFound = errors.New("fileclient: file not found")

// ErrFileNotAvailable is returned when a file is registered but no host
// currently serves it.
var ErrFileNotAvailable = errors.New("fileclient: file not available on any host")

// ErrHostNotAvailable is returned when a file's serving host id no
// longer has a host descriptor (it deregistered between lookups).
var ErrHostNotAvailable = errors.New("fileclient: host not available")
