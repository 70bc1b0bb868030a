package e2b

import "time"

// SandboxInfo is a sandbox as reported by the control plane listing
type SandboxInfo struct {
	SandboxID  string            `json:"sandboxID"`
	TemplateID string            `json:"templateID"`
	Alias      string            `json:"alias,omitempty"`
	ClientID   string            `json:"clientID,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	EndAt      time.Time         `json:"endAt"`
	CPUCount   int               `json:"cpuCount,omitempty"`
	MemoryMB   int               `json:"memoryMB,omitempty"`
}

// CreateOptions holds the parameters for creating a sandbox
type CreateOptions struct {
	Metadata map[string]string
	EnvVars  map[string]string
	// Timeout is the idle timeout after which the service kills the sandbox.
	Timeout time.Duration
}

// ConnectionInfo is everything needed to talk to a running sandbox.
// It is a plain value so it can be shared between handles.
type ConnectionInfo struct {
	SandboxID       string
	TemplateID      string
	Domain          string
	EnvdAccessToken string
	Metadata        map[string]string
}

type createSandboxRequest struct {
	TemplateID string            `json:"templateID"`
	Timeout    int               `json:"timeout"` // seconds
	Metadata   map[string]string `json:"metadata,omitempty"`
	EnvVars    map[string]string `json:"envVars,omitempty"`
}

// sandboxResponse is shared by the create and get endpoints.
type sandboxResponse struct {
	SandboxID       string            `json:"sandboxID"`
	TemplateID      string            `json:"templateID"`
	ClientID        string            `json:"clientID,omitempty"`
	EnvdVersion     string            `json:"envdVersion,omitempty"`
	EnvdAccessToken string            `json:"envdAccessToken,omitempty"`
	Domain          string            `json:"domain,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type setTimeoutRequest struct {
	Timeout int `json:"timeout"` // seconds
}

type apiErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
