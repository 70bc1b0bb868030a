package sandbox

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/isdmx/sandboxbroker/e2b"
)

// IdleTimeout is set on every sandbox the broker hands out, created or reconnected
const IdleTimeout = 10 * time.Minute

// Broker finds or creates one sandbox per (user, template) and runs work in it
type Broker struct {
	logger       *zap.Logger
	interpreters Provider[InterpreterSandbox]
	apps         Provider[AppSandbox]
	metrics      *Metrics
	dedupe       bool
	group        singleflight.Group
}

// BrokerOption defines a functional option for Broker
type BrokerOption func(*Broker)

// WithMetrics sets the Metrics the broker records into
func WithMetrics(metrics *Metrics) BrokerOption {
	return func(b *Broker) {
		b.metrics = metrics
	}
}

// WithDedupe collapses concurrent resolves of the same (user, template) in this
// process into a single list and create round trip
func WithDedupe(enabled bool) BrokerOption {
	return func(b *Broker) {
		b.dedupe = enabled
	}
}

// NewBroker creates a new Broker over the given providers
func NewBroker(logger *zap.Logger, interpreters Provider[InterpreterSandbox], apps Provider[AppSandbox], opts ...BrokerOption) *Broker {
	broker := &Broker{
		logger:       logger,
		interpreters: interpreters,
		apps:         apps,
	}

	for _, opt := range opts {
		opt(broker)
	}

	return broker
}

// resolveRequest identifies the sandbox a caller wants
type resolveRequest struct {
	userID   string
	template Template
	apiKey   string
}

func (r resolveRequest) validate() error {
	if strings.TrimSpace(r.userID) == "" {
		return invalidRequest("user id is required")
	}
	if strings.TrimSpace(string(r.template)) == "" {
		return invalidRequest("template is required")
	}
	return nil
}

// resolve returns a handle to the sandbox of the request, creating it when missing.
// Remote errors are returned unchanged.
func resolve[H Handle](ctx context.Context, b *Broker, log *zap.Logger, kind Kind, p Provider[H], req resolveRequest) (H, error) {
	if !b.dedupe {
		return findOrCreate(ctx, b, log, kind, p, req)
	}

	// The flight outlives any single caller; each caller stops waiting on its own context.
	// Every caller gets a handle of its own, so one closing does not affect the others
	key := strings.Join([]string{string(kind), req.apiKey, req.userID, string(req.template)}, "\x00")
	ch := b.group.DoChan(key, func() (any, error) {
		return findOrCreate(context.WithoutCancel(ctx), b, log, kind, p, req)
	})

	var zero H
	select {
	case <-ctx.Done():
		log.Warn("stopped waiting for sandbox resolution", zap.Error(ctx.Err()))
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		handle := res.Val.(H)
		if !res.Shared {
			return handle, nil
		}
		log.Debug("sharing concurrent sandbox resolution", zap.String("sandbox_id", handle.Info().SandboxID))
		return p.Attach(handle.Info(), req.apiKey), nil
	}
}

func findOrCreate[H Handle](ctx context.Context, b *Broker, log *zap.Logger, kind Kind, p Provider[H], req resolveRequest) (H, error) {
	var zero H
	log.Info("create or connect sandbox")

	sandboxes, err := p.List(ctx, req.apiKey)
	if err != nil {
		b.metrics.observeResolve(kind, outcomeError)
		return zero, err
	}
	log.Debug("listed sandboxes", zap.Int("count", len(sandboxes)))

	existing, found := findSandbox(sandboxes, req.userID, req.template)
	if !found {
		// Create failures are logged as well as returned
		handle, createErr := p.Create(ctx, image(kind, req.template), e2b.CreateOptions{
			Metadata: map[string]string{
				MetadataUserID:   req.userID,
				MetadataTemplate: string(req.template),
			},
			Timeout: IdleTimeout,
		}, req.apiKey)
		if createErr != nil {
			log.Error("error creating sandbox", zap.Error(createErr))
			b.metrics.observeResolve(kind, outcomeError)
			return zero, createErr
		}

		log.Info("sandbox created", zap.String("sandbox_id", handle.Info().SandboxID))
		b.metrics.observeResolve(kind, outcomeCreated)
		return handle, nil
	}

	log.Debug("found sandbox", zap.String("sandbox_id", existing.SandboxID))

	handle, err := p.Connect(ctx, existing.SandboxID, req.apiKey)
	if err != nil {
		b.metrics.observeResolve(kind, outcomeError)
		return zero, err
	}
	// Connecting does not refresh the idle timeout
	if err := handle.SetTimeout(ctx, IdleTimeout); err != nil {
		b.metrics.observeResolve(kind, outcomeError)
		return zero, err
	}

	log.Info("sandbox reconnected", zap.String("sandbox_id", existing.SandboxID))
	b.metrics.observeResolve(kind, outcomeReconnected)
	return handle, nil
}

// findSandbox returns the first sandbox whose metadata matches both user and template
func findSandbox(sandboxes []e2b.SandboxInfo, userID string, template Template) (e2b.SandboxInfo, bool) {
	for _, sbx := range sandboxes {
		if sbx.Metadata[MetadataUserID] == userID && sbx.Metadata[MetadataTemplate] == string(template) {
			return sbx, true
		}
	}
	return e2b.SandboxInfo{}, false
}
