package fileclient

import (
	"context"
	"strconv"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator"
)

// Loader resolves a file id to a serving host via the coordinator and
// dispatches downloads/uploads to that host's httpfile server. It
// satisfies processor.FileLoader.
type Loader struct {
	coord coordinator.Coordinator
	pool  *Pool
}

// NewLoader returns a Loader backed by coord, using pool for HTTP
// clients (a fresh Pool is created if pool is nil).
func NewLoader(coord coordinator.Coordinator, pool *Pool) *Loader {
	if pool == nil {
		pool = NewPool()
	}
	return &Loader{coord: coord, pool: pool}
}

// Name returns the registered name of fileID, used by FileProcessor to
// choose a local filename to stage it under.
func (l *Loader) Name(ctx context.Context, fileID int64) (string, error) {
	fields, err := l.coord.HGetAll(ctx, core.FileKey(fileID))
	if err != nil {
		return "", errors.AddContext(err, "fileclient: lookup file")
	}
	if len(fields) == 0 {
		return "", ErrFileNotFound
	}
	return fields["name"], nil
}

// serverAddress returns the "host:port" address of a host currently
// serving fileID, chosen at random among those registered.
func (l *Loader) serverAddress(ctx context.Context, fileID int64) (string, error) {
	hostIDStr, err := l.coord.SRandMember(ctx, core.FileHostsKey(fileID))
	if errors.Contains(err, coordinator.ErrNotFound) {
		return "", ErrFileNotAvailable
	}
	if err != nil {
		return "", errors.AddContext(err, "fileclient: pick serving host")
	}

	hostID, err := strconv.ParseInt(hostIDStr, 10, 64)
	if err != nil {
		return "", errors.AddContext(err, "fileclient: parse host id")
	}
	hostFields, err := l.coord.HGetAll(ctx, core.HostKey(hostID))
	if err != nil {
		return "", errors.AddContext(err, "fileclient: lookup host")
	}
	if len(hostFields) == 0 {
		return "", ErrHostNotAvailable
	}
	return hostFields["address"] + ":" + hostFields["port"], nil
}

// Download resolves fileID to a serving host and downloads it to
// destPath.
func (l *Loader) Download(ctx context.Context, fileID int64, destPath string) error {
	addr, err := l.serverAddress(ctx, fileID)
	if err != nil {
		return err
	}
	return l.pool.Get(addr).Download(ctx, fileID, destPath)
}

// Upload resolves fileID to a serving host and uploads srcPath's
// contents to it.
func (l *Loader) Upload(ctx context.Context, fileID int64, srcPath string) error {
	addr, err := l.serverAddress(ctx, fileID)
	if err != nil {
		return err
	}
	return l.pool.Get(addr).Upload(ctx, fileID, srcPath)
}
