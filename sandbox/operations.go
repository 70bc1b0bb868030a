package sandbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/sandboxbroker/e2b"
)

// Service is the caller-facing surface of the broker
type Service interface {
	RunPython(ctx context.Context, userID, code string, template Template, apiKey string) (*e2b.Execution, error)
	WriteToPage(ctx context.Context, userID, code string, template Template, apiKey string) (*Preview, error)
	WriteToApp(ctx context.Context, userID, code string, template Template, apiKey string) (*Preview, error)
	FindSandboxID(ctx context.Context, userID, apiKey string) (string, error)
}

// Preview is the public address of a served app
type Preview struct {
	URL string `json:"url"`
}

// previewTarget is where generated code goes and which port serves it
type previewTarget struct {
	operation string
	path      string
	port      int
}

var (
	pageTarget = previewTarget{operation: "write_to_page", path: "/home/user/app/page.tsx", port: 3000}
	appTarget  = previewTarget{operation: "write_to_app", path: "/home/user/app.py", port: 8501}
)

var _ Service = (*Broker)(nil)

// RunPython executes code as one cell in the user's code interpreter sandbox.
// The handle is always closed afterwards.
func (b *Broker) RunPython(ctx context.Context, userID, code string, template Template, apiKey string) (execution *e2b.Execution, err error) {
	defer func() { b.metrics.observeOperation("run_python", err) }()

	req := resolveRequest{userID: userID, template: template, apiKey: apiKey}
	if err := req.validate(); err != nil {
		return nil, err
	}
	log := b.operationLogger("run_python", req)

	sbx, err := resolve(ctx, b, log, KindCodeInterpreter, b.interpreters, req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := sbx.Close(); closeErr != nil {
			log.Warn("failed to close sandbox handle", zap.Error(closeErr))
		}
	}()

	log.Info("running code", zap.String("sandbox_id", sbx.Info().SandboxID), zap.Int("code_len", len(code)))
	log.Debug("code", zap.String("code", code))

	execution, err = sbx.ExecCell(ctx, code)
	if err != nil {
		return nil, err
	}

	log.Info("command result",
		zap.Int("results", len(execution.Results)),
		zap.Int("stdout_lines", len(execution.Logs.Stdout)),
		zap.Int("stderr_lines", len(execution.Logs.Stderr)),
		zap.Bool("has_error", execution.Error != nil))

	return execution, nil
}

// WriteToPage writes a Next.js page into the user's app sandbox and returns its preview URL
func (b *Broker) WriteToPage(ctx context.Context, userID, code string, template Template, apiKey string) (*Preview, error) {
	return b.writePreview(ctx, pageTarget, resolveRequest{userID: userID, template: template, apiKey: apiKey}, code)
}

// WriteToApp writes a Streamlit app into the user's app sandbox and returns its preview URL
func (b *Broker) WriteToApp(ctx context.Context, userID, code string, template Template, apiKey string) (*Preview, error) {
	return b.writePreview(ctx, appTarget, resolveRequest{userID: userID, template: template, apiKey: apiKey}, code)
}

// writePreview leaves the handle open: the written file is served by a process inside the sandbox
func (b *Broker) writePreview(ctx context.Context, target previewTarget, req resolveRequest, code string) (preview *Preview, err error) {
	defer func() { b.metrics.observeOperation(target.operation, err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	log := b.operationLogger(target.operation, req)

	sbx, err := resolve(ctx, b, log, KindApp, b.apps, req)
	if err != nil {
		return nil, err
	}

	log.Info("writing file",
		zap.String("sandbox_id", sbx.Info().SandboxID),
		zap.String("path", target.path),
		zap.Int("code_len", len(code)))
	log.Debug("code", zap.String("code", code))

	if err := sbx.WriteFile(ctx, target.path, code); err != nil {
		log.Error("error writing file", zap.String("path", target.path), zap.Error(err))
		return nil, err
	}

	return &Preview{URL: "https://" + sbx.GetHost(target.port)}, nil
}

// FindSandboxID returns the ID of any sandbox owned by the user, or "" when there is none
func (b *Broker) FindSandboxID(ctx context.Context, userID, apiKey string) (id string, err error) {
	defer func() { b.metrics.observeOperation("find_sandbox_id", err) }()

	if userID == "" {
		return "", invalidRequest("user id is required")
	}
	log := b.logger.With(zap.String("operation", "find_sandbox_id"), zap.String("user_id", userID))
	log.Info("getting sandbox for user")

	sandboxes, err := b.apps.List(ctx, apiKey)
	if err != nil {
		return "", err
	}
	for _, sbx := range sandboxes {
		if sbx.Metadata[MetadataUserID] == userID {
			return sbx.SandboxID, nil
		}
	}
	return "", nil
}

func (b *Broker) operationLogger(operation string, req resolveRequest) *zap.Logger {
	return b.logger.With(
		zap.String("op_id", uuid.NewString()),
		zap.String("operation", operation),
		zap.String("user_id", req.userID),
		zap.String("template", string(req.template)))
}

func invalidRequest(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}
