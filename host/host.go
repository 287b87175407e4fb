// Package host implements the Host lifecycle wrapper (component C11 of
// the specification): a file-serving peer that owns a Bucket and an
// HTTP file server, registers itself with the coordinator, and
// heartbeats its own liveness with a bounded self-restart on zombie
// detection.
package host

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/backend"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/coordinator"
	"gitlab.com/vycodi/vycodi/file"
	"gitlab.com/vycodi/vycodi/heartbeat"
	"gitlab.com/vycodi/vycodi/httpfile"
)

// maxConsecutiveRestarts bounds how many times in a row Host will react
// to a self-zombie detection by restarting before giving up, per the
// Open Question decision recorded in DESIGN.md.
const maxConsecutiveRestarts = 5

// ttl and heartbeat interval for a Host's own liveness key. Hosts have
// no Policy of their own to source these from, so they are named
// constants rather than threaded through from the queue package.
const (
	hostTTL      = 60 * time.Second
	hostInterval = 40 * time.Second
)

// Host owns a Bucket and an HTTP file server bound to address.
type Host struct {
	id      int64
	address string
	port    int

	coord    coordinator.Coordinator
	registry *file.Registry
	bucket   *file.Bucket
	server   *httpfile.Server
	listener net.Listener
	httpSrv  *http.Server
	heart    *heartbeat.Heartbeat
	log      *log.Logger

	bucketPath string
	filesDir   string

	mu       sync.Mutex
	restarts int
	fatalErr error
	stopped  chan struct{}
}

// Config bundles the dependencies New needs.
type Config struct {
	Coord      coordinator.Coordinator
	Address    string
	Port       int
	Backend    backend.Backend
	BucketPath string
	// FilesDir is the backend key prefix newly added files (via the
	// addFile RPC) are stored under. Defaults to "files" if empty.
	FilesDir string
	Log      *log.Logger
	// ID pins the host id across restarts (e.g. loaded from a local
	// data file); 0 means allocate a fresh one.
	ID int64
}

// New allocates (or reuses) a host id and returns a Host ready to Start.
func New(ctx context.Context, cfg Config) (*Host, error) {
	id := cfg.ID
	if id == 0 {
		var err error
		id, err = cfg.Coord.Incr(ctx, core.KeyHostsIndex)
		if err != nil {
			return nil, errors.AddContext(err, "host: allocate id")
		}
	}

	filesDir := cfg.FilesDir
	if filesDir == "" {
		filesDir = "files"
	}

	registry := file.NewRegistry(cfg.Coord)
	h := &Host{
		id:         id,
		address:    cfg.Address,
		port:       cfg.Port,
		coord:      cfg.Coord,
		registry:   registry,
		bucket:     file.NewBucket(registry, id),
		bucketPath: cfg.BucketPath,
		filesDir:   filesDir,
		log:        cfg.Log,
		stopped:    make(chan struct{}),
	}
	h.server = httpfile.NewServer(h.bucket, cfg.Backend, h, cfg.Log)
	return h, nil
}

// ID returns the host's id.
func (h *Host) ID() int64 { return h.id }

// Bucket returns the host's file bucket, for callers that need to add
// files to it directly.
func (h *Host) Bucket() *file.Bucket { return h.bucket }

// AddFile implements httpfile.RPC: it allocates a new file id, publishes
// it as writable, and returns its descriptor so the caller can follow up
// with a POST to /:id to supply the content.
func (h *Host) AddFile(ctx context.Context, name string) (core.File, error) {
	id, err := h.registry.NextID(ctx)
	if err != nil {
		return core.File{}, errors.AddContext(err, "host: allocate file id")
	}
	f := file.LocalFile{
		File: core.File{ID: id, Name: name, Type: core.FileWritable},
		Path: filepath.Join(h.filesDir, strconv.FormatInt(id, 10)),
	}
	if err := h.bucket.Add(ctx, f); err != nil {
		return core.File{}, errors.AddContext(err, "host: add file")
	}
	return f.File, nil
}

// Start binds the HTTP file server, registers the host and its bucket
// with the coordinator, loads any persisted bucket snapshot, and starts
// heartbeating.
func (h *Host) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(h.address, strconv.Itoa(h.port)))
	if err != nil {
		return errors.AddContext(err, "host: bind listener")
	}
	h.listener = ln
	h.httpSrv = &http.Server{Handler: h.server.Handler()}
	go func() {
		if err := h.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			h.log.Println("host: http server exited:", err)
		}
	}()

	if err := h.register(ctx); err != nil {
		return err
	}

	if h.bucketPath != "" {
		if err := h.bucket.Load(ctx, h.bucketPath, false); err != nil {
			h.log.Debugln("host: no bucket snapshot loaded:", err)
		}
	}
	if err := h.bucket.Register(ctx); err != nil {
		return errors.AddContext(err, "host: register bucket")
	}

	// A Heartbeat's ThreadGroup is single-use: once stopped it can never
	// Add again, so a zombie-triggered restart needs a fresh Heartbeat,
	// not the one Shutdown just stopped.
	h.heart = heartbeat.New(h.coord, core.HostKey(h.id), hostTTL, hostInterval, "", h, h.log)
	if err := h.heart.Start(ctx); err != nil {
		return errors.AddContext(err, "host: start heartbeat")
	}
	return nil
}

func (h *Host) register(ctx context.Context) error {
	fields := map[string]string{
		"address": h.address,
		"port":    strconv.Itoa(h.port),
	}
	if err := h.coord.HSet(ctx, core.HostKey(h.id), fields); err != nil {
		return errors.AddContext(err, "host: register hash")
	}
	if err := h.coord.SAdd(ctx, core.KeyHosts, strconv.FormatInt(h.id, 10)); err != nil {
		return errors.AddContext(err, "host: register set")
	}
	return nil
}

// Shutdown unregisters the host and its bucket, stops the heartbeat and
// HTTP server, and persists the bucket snapshot.
func (h *Host) Shutdown(ctx context.Context) error {
	if err := h.bucket.Unregister(ctx); err != nil {
		h.log.Println("host: unregister bucket failed:", err)
	}
	if _, err := h.coord.SRem(ctx, core.KeyHosts, strconv.FormatInt(h.id, 10)); err != nil {
		h.log.Println("host: deregister set failed:", err)
	}
	if err := h.coord.Del(ctx, core.HostKey(h.id)); err != nil {
		h.log.Println("host: delete hash failed:", err)
	}
	if h.heart != nil {
		if err := h.heart.Stop(); err != nil {
			h.log.Println("host: heartbeat stop failed:", err)
		}
	}
	if h.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.httpSrv.Shutdown(shutdownCtx); err != nil {
			h.log.Println("host: http server shutdown failed:", err)
		}
	}
	if h.bucketPath != "" {
		if err := h.bucket.Store(h.bucketPath); err != nil {
			h.log.Println("host: store bucket snapshot failed:", err)
		}
	}
	return nil
}

// Zombie implements heartbeat.Purger: the host's own liveness key
// lapsed before a refresh. It reacts by shutting down and starting
// back up, preserving its id, up to maxConsecutiveRestarts in a row.
func (h *Host) Zombie(ctx context.Context) {
	h.mu.Lock()
	h.restarts++
	restarts := h.restarts
	h.mu.Unlock()

	if restarts > maxConsecutiveRestarts {
		h.log.Println("host: giving up after", restarts, "consecutive zombie restarts")
		h.mu.Lock()
		h.fatalErr = errors.New("host: exceeded consecutive zombie restart budget")
		h.mu.Unlock()
		close(h.stopped)
		return
	}

	h.log.Println("host: detected self zombie state, restarting, attempt", restarts)
	if err := h.Shutdown(ctx); err != nil {
		h.log.Println("host: zombie shutdown failed:", err)
	}
	if err := h.Start(ctx); err != nil {
		h.log.Println("host: zombie restart failed:", err)
	}
}

// Purge implements heartbeat.Purger for peer sweeps; Hosts are
// registered without a companion set (setKey == ""), so this is never
// actually invoked, but is required to satisfy the interface if a
// caller ever wires a sweep in.
func (h *Host) Purge(ctx context.Context, key string) error { return nil }

// Wait blocks until the host hits its restart budget and gives up,
// returning the fatal error, or until ctx is done.
func (h *Host) Wait(ctx context.Context) error {
	select {
	case <-h.stopped:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.fatalErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnHeartbeatSuccess implements heartbeat's optional tick-success hook,
// resetting the consecutive-restart counter on every successful tick.
func (h *Host) OnHeartbeatSuccess() {
	h.mu.Lock()
	h.restarts = 0
	h.mu.Unlock()
}
