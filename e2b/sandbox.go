package e2b

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Sandbox is a live handle to a remote sandbox
type Sandbox struct {
	info   ConnectionInfo
	apiKey string
	client *Client

	mu     sync.Mutex
	data   *resty.Client
	closed bool
}

// ID returns the opaque sandbox identifier
func (s *Sandbox) ID() string {
	return s.info.SandboxID
}

// Info returns the connection details of the sandbox
func (s *Sandbox) Info() ConnectionInfo {
	return s.info
}

// GetHost returns the public hostname under which the given sandbox port is exposed
func (s *Sandbox) GetHost(port int) string {
	return fmt.Sprintf("%d-%s.%s", port, s.info.SandboxID, s.info.Domain)
}

// SetTimeout resets the idle timeout of the sandbox, counted from now
func (s *Sandbox) SetTimeout(ctx context.Context, d time.Duration) error {
	return s.client.setTimeout(ctx, s.info.SandboxID, s.apiKey, d)
}

// Files returns the filesystem of the sandbox
func (s *Sandbox) Files() *Filesystem {
	return &Filesystem{sandbox: s}
}

// Close releases the connections held by the handle. The remote sandbox keeps running.
func (s *Sandbox) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.data != nil {
		s.data.GetClient().CloseIdleConnections()
		s.data = nil
	}
	return nil
}

// dataRequest prepares a request against a port of the sandbox
func (s *Sandbox) dataRequest(ctx context.Context, port int) (*resty.Request, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, "", ErrClosed
	}
	if s.data == nil {
		s.data = resty.New()
	}

	r := s.data.R().SetContext(ctx)
	if s.info.EnvdAccessToken != "" {
		r.SetHeader(headerAccessToken, s.info.EnvdAccessToken)
	}

	baseURL := "https://" + s.GetHost(port)
	if s.client.config.SandboxURL != "" {
		baseURL = s.client.config.SandboxURL
		r.SetHeader(headerSandboxID, s.info.SandboxID)
		r.SetHeader(headerSandboxPort, strconv.Itoa(port))
	}
	return r, baseURL, nil
}
