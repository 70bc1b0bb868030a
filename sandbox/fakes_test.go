package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isdmx/sandboxbroker/e2b"
)

type createCall struct {
	template string
	opts     e2b.CreateOptions
	apiKey   string
}

// fakeRemote plays the sandbox hosting service for both providers
type fakeRemote struct {
	mu sync.Mutex

	sandboxes []e2b.SandboxInfo
	handles   []*fakeHandle
	creates   []createCall
	connects  []string
	listCalls int
	listKeys  []string
	attaches  int
	nextID    int

	// gate, when set, blocks List until it is closed or the context ends
	gate chan struct{}
	// listStarted, when set, receives a value each time List is entered
	listStarted chan struct{}

	listErr    error
	createErr  error
	connectErr error
	timeoutErr error
	writeErr   error
	execErr    error
	execution  *e2b.Execution
}

func (f *fakeRemote) List(ctx context.Context, apiKey string) ([]e2b.SandboxInfo, error) {
	if f.listStarted != nil {
		f.listStarted <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.listKeys = append(f.listKeys, apiKey)
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]e2b.SandboxInfo(nil), f.sandboxes...), nil
}

func (f *fakeRemote) create(template string, opts e2b.CreateOptions, apiKey string) (*fakeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, createCall{template: template, opts: opts, apiKey: apiKey})
	if f.createErr != nil {
		return nil, f.createErr
	}

	f.nextID++
	info := e2b.SandboxInfo{
		SandboxID:  fmt.Sprintf("created-%d", f.nextID),
		TemplateID: template,
		Metadata:   opts.Metadata,
	}
	// The sandbox becomes visible to later listings, like on the real service
	f.sandboxes = append(f.sandboxes, info)
	return f.newHandleLocked(e2b.ConnectionInfo{SandboxID: info.SandboxID, TemplateID: template, Metadata: opts.Metadata}), nil
}

func (f *fakeRemote) connect(sandboxID string) (*fakeHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, sandboxID)
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	return f.newHandleLocked(e2b.ConnectionInfo{SandboxID: sandboxID}), nil
}

func (f *fakeRemote) attach(info e2b.ConnectionInfo) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attaches++
	return f.newHandleLocked(info)
}

func (f *fakeRemote) newHandleLocked(info e2b.ConnectionInfo) *fakeHandle {
	h := &fakeHandle{remote: f, info: info, writes: map[string]string{}}
	f.handles = append(f.handles, h)
	return h
}

// fakeHandle implements both AppSandbox and InterpreterSandbox
type fakeHandle struct {
	remote *fakeRemote
	info   e2b.ConnectionInfo

	timeouts []time.Duration
	writes   map[string]string
	execs    []string
	closed   bool
}

func (h *fakeHandle) Info() e2b.ConnectionInfo {
	return h.info
}

func (h *fakeHandle) SetTimeout(_ context.Context, d time.Duration) error {
	h.remote.mu.Lock()
	defer h.remote.mu.Unlock()
	h.timeouts = append(h.timeouts, d)
	return h.remote.timeoutErr
}

func (h *fakeHandle) Close() error {
	h.remote.mu.Lock()
	defer h.remote.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) WriteFile(_ context.Context, path, content string) error {
	h.remote.mu.Lock()
	defer h.remote.mu.Unlock()
	if h.remote.writeErr != nil {
		return h.remote.writeErr
	}
	h.writes[path] = content
	return nil
}

func (h *fakeHandle) GetHost(port int) string {
	return fmt.Sprintf("%d-%s.e2b.test", port, h.info.SandboxID)
}

func (h *fakeHandle) ExecCell(_ context.Context, code string) (*e2b.Execution, error) {
	h.remote.mu.Lock()
	defer h.remote.mu.Unlock()
	h.execs = append(h.execs, code)
	if h.remote.execErr != nil {
		return nil, h.remote.execErr
	}
	if h.remote.execution != nil {
		return h.remote.execution, nil
	}
	return &e2b.Execution{}, nil
}

type fakeAppProvider struct {
	*fakeRemote
}

func (p fakeAppProvider) Create(_ context.Context, template string, opts e2b.CreateOptions, apiKey string) (AppSandbox, error) {
	h, err := p.create(template, opts, apiKey)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p fakeAppProvider) Connect(_ context.Context, sandboxID, _ string) (AppSandbox, error) {
	h, err := p.connect(sandboxID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p fakeAppProvider) Attach(info e2b.ConnectionInfo, _ string) AppSandbox {
	return p.attach(info)
}

type fakeInterpreterProvider struct {
	*fakeRemote
}

func (p fakeInterpreterProvider) Create(_ context.Context, template string, opts e2b.CreateOptions, apiKey string) (InterpreterSandbox, error) {
	h, err := p.create(template, opts, apiKey)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p fakeInterpreterProvider) Connect(_ context.Context, sandboxID, _ string) (InterpreterSandbox, error) {
	h, err := p.connect(sandboxID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p fakeInterpreterProvider) Attach(info e2b.ConnectionInfo, _ string) InterpreterSandbox {
	return p.attach(info)
}
