// Package httpfile implements the HTTP file server named by §6 of the
// specification: GET/HEAD to read a file's bytes (or a 302 redirect to a
// presigned backend URL), POST to upload into a writable file slot. The
// matching client lives in package fileclient.
package httpfile

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"gitlab.com/NebulousLabs/log"
	"gitlab.com/vycodi/vycodi/backend"
	"gitlab.com/vycodi/vycodi/core"
	"gitlab.com/vycodi/vycodi/file"
)

// presignExpiry bounds how long a GenReadURL redirect stays valid.
const presignExpiry = 15 * time.Minute

// Bucket is the slice of file.Bucket the server needs: look a file up
// by id, and acquire/release the write lock around an upload.
type Bucket interface {
	Get(id int64) (file.LocalFile, bool)
	AcquireWriteLock(ctx context.Context, id int64) error
	CompleteWriteLock(ctx context.Context, id int64) error
}

// RPC is the operational surface a Host exposes over HTTP alongside the
// plain file GET/HEAD/POST routes: allocating a new, initially-writable
// file slot.
type RPC interface {
	AddFile(ctx context.Context, name string) (core.File, error)
}

// Server serves a Bucket's files over HTTP, backed by a single storage
// Backend. It never owns the net/http.Server lifecycle; construct one
// around Handler() and manage Start/Shutdown the way the caller already
// manages other long-running listeners.
type Server struct {
	bucket  Bucket
	backend backend.Backend
	rpc     RPC
	log     *log.Logger
	router  *httprouter.Router
	mux     *http.ServeMux
}

// NewServer returns a Server for bucket's files, stored on be. rpc may be
// nil, in which case POST /_rpc/addFile responds 404.
//
// The addFile RPC is mounted on a plain http.ServeMux in front of the
// httprouter tree rather than as a third sibling of "/:id", since
// httprouter rejects a static route and a wildcard route coexisting at
// the same path segment.
func NewServer(bucket Bucket, be backend.Backend, rpc RPC, logger *log.Logger) *Server {
	s := &Server{bucket: bucket, backend: be, rpc: rpc, log: logger}
	router := httprouter.New()
	router.GET("/:id", s.handleGet)
	router.HEAD("/:id", s.handleHead)
	router.POST("/:id", s.handlePost)
	s.router = router

	mux := http.NewServeMux()
	mux.HandleFunc("/_rpc/addFile", s.handleAddFile)
	mux.Handle("/", router)
	s.mux = mux
	return s
}

// Handler returns the http.Handler to mount, typically as the whole of
// an http.Server's Handler field.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) lookup(w http.ResponseWriter, ps httprouter.Params) (file.LocalFile, bool) {
	idStr := ps.ByName("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid file id", http.StatusNotFound)
		return file.LocalFile{}, false
	}
	f, ok := s.bucket.Get(id)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return file.LocalFile{}, false
	}
	return f, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	f, ok := s.lookup(w, ps)
	if !ok {
		return
	}
	if !f.Readable() {
		http.Error(w, "file not readable", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	if url, err := s.backend.GenReadURL(ctx, f.Path, presignExpiry); err == nil && url != "" {
		w.Header().Set("Location", url)
		w.WriteHeader(http.StatusFound)
		return
	}

	s.serveBytes(w, ctx, f)
}

func (s *Server) handleHead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	f, ok := s.lookup(w, ps)
	if !ok {
		return
	}
	if !f.Readable() {
		http.Error(w, "file not readable", http.StatusForbidden)
		return
	}
	if err := s.writeHeaders(w, r.Context(), f); err != nil {
		s.log.Println("httpfile: stat", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
	}
}

func (s *Server) serveBytes(w http.ResponseWriter, ctx context.Context, f file.LocalFile) {
	body, err := s.backend.OpenR(ctx, f.Path)
	if err != nil {
		s.log.Println("httpfile: open", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if err := s.writeHeaders(w, ctx, f); err != nil {
		s.log.Println("httpfile: stat", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(w, body); err != nil {
		s.log.Println("httpfile: send", f.Path, "failed:", err)
	}
}

func (s *Server) writeHeaders(w http.ResponseWriter, ctx context.Context, f file.LocalFile) error {
	ctype, err := s.backend.ContentType(ctx, f.Path)
	if err != nil {
		return err
	}
	size, err := s.backend.Size(ctx, f.Path)
	if err != nil {
		return err
	}
	modTime, err := s.backend.LastModified(ctx, f.Path)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
	return nil
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	f, ok := s.lookup(w, ps)
	if !ok {
		return
	}
	if !f.Writable() {
		http.Error(w, "file not writable", http.StatusForbidden)
		return
	}

	ctx := r.Context()
	if err := s.bucket.AcquireWriteLock(ctx, f.ID); err != nil {
		s.log.Println("httpfile: acquire write lock for", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}

	dst, err := s.backend.OpenW(ctx, f.Path, r.ContentLength)
	if err != nil {
		s.log.Println("httpfile: open write for", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}
	s.log.Debugln("httpfile: starting upload of", f.ID, "-", f.Name)
	if _, err := io.Copy(dst, r.Body); err != nil {
		dst.Close()
		s.log.Println("httpfile: upload of", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}
	if err := dst.Close(); err != nil {
		s.log.Println("httpfile: finalize upload of", f.Path, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}

	if err := s.bucket.CompleteWriteLock(ctx, f.ID); err != nil {
		s.log.Println("httpfile: complete write lock for", f.Path, "failed:", err)
	}
	s.log.Debugln("httpfile: finished upload of", f.ID)

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

type addFileRequest struct {
	Name string `json:"name"`
}

// handleAddFile allocates a new writable file slot and returns its
// descriptor, so a caller can follow up with a POST to /:id to upload
// the content.
func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rpc == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	var req addFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	f, err := s.rpc.AddFile(r.Context(), req.Name)
	if err != nil {
		s.log.Println("httpfile: addFile", req.Name, "failed:", err)
		http.Error(w, "backend error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f); err != nil {
		s.log.Println("httpfile: encode addFile response failed:", err)
	}
}
