package sandbox

import (
	"context"
	"time"

	"github.com/isdmx/sandboxbroker/e2b"
)

// Handle is a live connection to a remote sandbox
type Handle interface {
	Info() e2b.ConnectionInfo
	SetTimeout(ctx context.Context, d time.Duration) error
	Close() error
}

// AppSandbox is a persistent app sandbox: files in, served process out
type AppSandbox interface {
	Handle
	WriteFile(ctx context.Context, path, content string) error
	GetHost(port int) string
}

// InterpreterSandbox is a code interpreter sandbox
type InterpreterSandbox interface {
	Handle
	ExecCell(ctx context.Context, code string) (*e2b.Execution, error)
}

// Provider is the remote resource client for one kind of sandbox
type Provider[H Handle] interface {
	List(ctx context.Context, apiKey string) ([]e2b.SandboxInfo, error)
	Create(ctx context.Context, template string, opts e2b.CreateOptions, apiKey string) (H, error)
	Connect(ctx context.Context, sandboxID, apiKey string) (H, error)
	// Attach builds a handle from known connection details without a remote call.
	Attach(info e2b.ConnectionInfo, apiKey string) H
}

// appProvider resolves app sandboxes through the E2B client
type appProvider struct {
	client *e2b.Client
}

// NewAppProvider returns a Provider of persistent app sandboxes backed by client
func NewAppProvider(client *e2b.Client) Provider[AppSandbox] {
	return &appProvider{client: client}
}

func (p *appProvider) List(ctx context.Context, apiKey string) ([]e2b.SandboxInfo, error) {
	return p.client.List(ctx, apiKey)
}

func (p *appProvider) Create(ctx context.Context, template string, opts e2b.CreateOptions, apiKey string) (AppSandbox, error) {
	sbx, err := p.client.Create(ctx, template, opts, apiKey)
	if err != nil {
		return nil, err
	}
	return &appHandle{Sandbox: sbx}, nil
}

func (p *appProvider) Connect(ctx context.Context, sandboxID, apiKey string) (AppSandbox, error) {
	sbx, err := p.client.Connect(ctx, sandboxID, apiKey)
	if err != nil {
		return nil, err
	}
	return &appHandle{Sandbox: sbx}, nil
}

func (p *appProvider) Attach(info e2b.ConnectionInfo, apiKey string) AppSandbox {
	return &appHandle{Sandbox: p.client.Attach(info, apiKey)}
}

type appHandle struct {
	*e2b.Sandbox
}

func (h *appHandle) WriteFile(ctx context.Context, path, content string) error {
	return h.Files().Write(ctx, path, content)
}

// interpreterProvider resolves code interpreter sandboxes through the E2B client
type interpreterProvider struct {
	client *e2b.Client
}

// NewInterpreterProvider returns a Provider of code interpreter sandboxes backed by client
func NewInterpreterProvider(client *e2b.Client) Provider[InterpreterSandbox] {
	return &interpreterProvider{client: client}
}

func (p *interpreterProvider) List(ctx context.Context, apiKey string) ([]e2b.SandboxInfo, error) {
	return p.client.List(ctx, apiKey)
}

func (p *interpreterProvider) Create(ctx context.Context, template string, opts e2b.CreateOptions, apiKey string) (InterpreterSandbox, error) {
	sbx, err := p.client.Create(ctx, template, opts, apiKey)
	if err != nil {
		return nil, err
	}
	return newInterpreterHandle(sbx), nil
}

func (p *interpreterProvider) Connect(ctx context.Context, sandboxID, apiKey string) (InterpreterSandbox, error) {
	sbx, err := p.client.Connect(ctx, sandboxID, apiKey)
	if err != nil {
		return nil, err
	}
	return newInterpreterHandle(sbx), nil
}

func (p *interpreterProvider) Attach(info e2b.ConnectionInfo, apiKey string) InterpreterSandbox {
	return newInterpreterHandle(p.client.Attach(info, apiKey))
}

type interpreterHandle struct {
	*e2b.CodeInterpreter
}

func newInterpreterHandle(sbx *e2b.Sandbox) *interpreterHandle {
	return &interpreterHandle{CodeInterpreter: e2b.NewCodeInterpreter(sbx)}
}

func (h *interpreterHandle) ExecCell(ctx context.Context, code string) (*e2b.Execution, error) {
	return h.Notebook().ExecCell(ctx, code)
}
