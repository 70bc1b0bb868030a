package e2b

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Defaults of the hosted service
const (
	DefaultDomain         = "e2b.app"
	DefaultRequestTimeout = 60 * time.Second

	// EnvdPort is the port of the in-sandbox daemon serving the filesystem API.
	EnvdPort = 49983
	// CodeInterpreterPort is the port of the notebook kernel gateway.
	CodeInterpreterPort = 49999

	headerAPIKey      = "X-API-Key"
	headerAccessToken = "X-Access-Token"
	headerSandboxID   = "E2b-Sandbox-Id"
	headerSandboxPort = "E2b-Sandbox-Port"
)

// Config holds configuration for the E2B client
type Config struct {
	// APIURL is the control plane URL. Defaults to https://api.<Domain>.
	APIURL string
	// Domain sandboxes are exposed under. Defaults to e2b.app.
	Domain string
	// APIKey is used when a call does not carry its own key.
	APIKey string
	// SandboxURL, when set, routes every data plane request to this base URL
	// and identifies the target sandbox through headers instead of the host.
	SandboxURL string
	// RequestTimeout bounds control plane requests.
	RequestTimeout time.Duration
}

// Client talks to the E2B control plane and hands out sandbox handles
type Client struct {
	logger *zap.Logger
	config Config
	api    *resty.Client
}

// NewClient creates a new Client, filling unset configuration with defaults
func NewClient(logger *zap.Logger, cfg Config) *Client {
	if cfg.Domain == "" {
		cfg.Domain = DefaultDomain
	}
	if cfg.APIURL == "" {
		cfg.APIURL = fmt.Sprintf("https://api.%s", cfg.Domain)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.SandboxURL = strings.TrimRight(cfg.SandboxURL, "/")

	api := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("Accept", "application/json")

	return &Client{
		logger: logger.Named("e2b"),
		config: cfg,
		api:    api,
	}
}

// Domain returns the domain sandboxes are exposed under
func (c *Client) Domain() string {
	return c.config.Domain
}

// List returns all sandboxes visible to the API key
func (c *Client) List(ctx context.Context, apiKey string) ([]SandboxInfo, error) {
	var sandboxes []SandboxInfo
	if err := c.call(ctx, http.MethodGet, "/sandboxes", apiKey, nil, &sandboxes); err != nil {
		return nil, err
	}
	c.logger.Debug("listed sandboxes", zap.Int("count", len(sandboxes)))
	return sandboxes, nil
}

// Create starts a new sandbox from the given template
func (c *Client) Create(ctx context.Context, template string, opts CreateOptions, apiKey string) (*Sandbox, error) {
	req := createSandboxRequest{
		TemplateID: template,
		Timeout:    timeoutSeconds(opts.Timeout),
		Metadata:   opts.Metadata,
		EnvVars:    opts.EnvVars,
	}

	var resp sandboxResponse
	if err := c.call(ctx, http.MethodPost, "/sandboxes", apiKey, req, &resp); err != nil {
		return nil, err
	}
	if resp.Metadata == nil {
		resp.Metadata = opts.Metadata
	}

	c.logger.Info("sandbox created",
		zap.String("sandbox_id", resp.SandboxID),
		zap.String("template", template),
		zap.Int("timeout_sec", req.Timeout))

	return c.Attach(c.connectionInfo(resp), apiKey), nil
}

// Connect returns a handle to an already running sandbox.
// The idle timeout of the sandbox is left untouched.
func (c *Client) Connect(ctx context.Context, sandboxID, apiKey string) (*Sandbox, error) {
	var resp sandboxResponse
	path := "/sandboxes/" + url.PathEscape(sandboxID)
	if err := c.call(ctx, http.MethodGet, path, apiKey, nil, &resp); err != nil {
		return nil, err
	}
	if resp.SandboxID == "" {
		resp.SandboxID = sandboxID
	}

	c.logger.Debug("connected to sandbox", zap.String("sandbox_id", resp.SandboxID))

	return c.Attach(c.connectionInfo(resp), apiKey), nil
}

// Attach builds a handle from known connection details without any network call
func (c *Client) Attach(info ConnectionInfo, apiKey string) *Sandbox {
	if info.Domain == "" {
		info.Domain = c.config.Domain
	}
	return &Sandbox{
		info:   info,
		apiKey: apiKey,
		client: c,
	}
}

// Kill terminates a sandbox. Killing an unknown sandbox is not an error.
func (c *Client) Kill(ctx context.Context, sandboxID, apiKey string) error {
	path := "/sandboxes/" + url.PathEscape(sandboxID)
	err := c.call(ctx, http.MethodDelete, path, apiKey, nil, nil)
	if IsNotFound(err) {
		c.logger.Debug("sandbox already gone", zap.String("sandbox_id", sandboxID))
		return nil
	}
	return err
}

func (c *Client) setTimeout(ctx context.Context, sandboxID, apiKey string, d time.Duration) error {
	path := "/sandboxes/" + url.PathEscape(sandboxID) + "/timeout"
	return c.call(ctx, http.MethodPost, path, apiKey, setTimeoutRequest{Timeout: timeoutSeconds(d)}, nil)
}

// call performs a control plane request and decodes a JSON answer into result
func (c *Client) call(ctx context.Context, method, path, apiKey string, body, result any) error {
	key, err := c.resolveAPIKey(apiKey)
	if err != nil {
		return err
	}

	r := c.api.R().
		SetContext(ctx).
		SetHeader(headerAPIKey, key)
	if body != nil {
		r.SetBody(body)
	}
	if result != nil {
		r.SetResult(result)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError(path, resp)
	}
	return nil
}

func (c *Client) resolveAPIKey(apiKey string) (string, error) {
	if apiKey != "" {
		return apiKey, nil
	}
	if c.config.APIKey != "" {
		return c.config.APIKey, nil
	}
	return "", ErrMissingAPIKey
}

func (c *Client) connectionInfo(resp sandboxResponse) ConnectionInfo {
	return ConnectionInfo{
		SandboxID:       resp.SandboxID,
		TemplateID:      resp.TemplateID,
		Domain:          resp.Domain,
		EnvdAccessToken: resp.EnvdAccessToken,
		Metadata:        resp.Metadata,
	}
}

// timeoutSeconds converts a duration to the whole seconds the API expects
func timeoutSeconds(d time.Duration) int {
	return int(d / time.Second)
}
