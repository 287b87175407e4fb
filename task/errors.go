package task

import "gitlab.com/NebulousLabs/errors"

var (
	// ErrLoaderNotSet is returned by any Task accessor that needs to
	// reach the coordinator (lazy-loading inFiles/outFiles/failures/
	// result, or writing through a mutation) on a Task that has no
	// Loader attached. It mirrors §9's LoaderNotSet design note: the
	// Task->Loader reference is non-owning and may be nil.
	ErrLoaderNotSet = errors.New("task: loader not set")

	// ErrAlreadyRegistered is returned by SetInFiles/SetOutFiles on a
	// Task whose id has already been assigned by Register.
	ErrAlreadyRegistered = errors.New("task: already registered, files are append-only")

	// ErrNotFound is returned by Loader.Get for an unknown task id.
	ErrNotFound = errors.New("task: not found")
)
