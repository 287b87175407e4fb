package fileclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"

	"gitlab.com/NebulousLabs/errors"
)

// HTTPError is returned by Client when a server response is anything
// other than 200 OK.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fileclient: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to a single httpfile.Server instance, identified by its
// "host:port" address.
type Client struct {
	addr    string
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for addr ("host:port").
func NewClient(addr string) *Client {
	return &Client{addr: addr, baseURL: "http://" + addr + "/", http: http.DefaultClient}
}

// Download GETs fileID from the server and writes its body to destPath,
// following any redirect the server issues (a presigned backend URL)
// transparently, since the standard client already follows redirects
// on GET.
func (c *Client) Download(ctx context.Context, fileID int64, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+strconv.FormatInt(fileID, 10), nil)
	if err != nil {
		return errors.AddContext(err, "fileclient: build download request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.AddContext(err, "fileclient: download request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return errors.AddContext(err, "fileclient: create destination file")
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.AddContext(err, "fileclient: write downloaded file")
	}
	return nil
}

// Upload POSTs srcPath's contents to fileID on the server.
func (c *Client) Upload(ctx context.Context, fileID int64, srcPath string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return errors.AddContext(err, "fileclient: open source file")
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return errors.AddContext(err, "fileclient: stat source file")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+strconv.FormatInt(fileID, 10), in)
	if err != nil {
		return errors.AddContext(err, "fileclient: build upload request")
	}
	req.ContentLength = info.Size()
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.AddContext(err, "fileclient: upload request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Pool caches a Client per "host:port" address.
type Pool struct {
	mu      sync.Mutex
	clients map[string]*Client
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{clients: make(map[string]*Client)}
}

// Get returns the Client for addr, constructing and caching one the
// first time addr is seen.
func (p *Pool) Get(addr string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[addr]; ok {
		return c
	}
	c := NewClient(addr)
	p.clients[addr] = c
	return c
}
