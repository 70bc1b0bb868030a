package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/sandboxbroker/config"
	"github.com/isdmx/sandboxbroker/e2b"
	"github.com/isdmx/sandboxbroker/logger"
	"github.com/isdmx/sandboxbroker/mcpserver"
	"github.com/isdmx/sandboxbroker/sandbox"
)

type fakeSandbox struct {
	ID         string            `json:"sandboxID"`
	TemplateID string            `json:"templateID"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// fakeE2B serves both the control plane and, through the sandbox URL headers,
// the data plane of every sandbox it created
type fakeE2B struct {
	mu        sync.Mutex
	apiKey    string
	sandboxes []fakeSandbox
	files     map[string]string
	timeouts  map[string]int
	creates   int
	executed  []string
}

func newFakeE2B(apiKey string) *fakeE2B {
	return &fakeE2B{
		apiKey:   apiKey,
		files:    map[string]string{},
		timeouts: map[string]int{},
	}
}

func (f *fakeE2B) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := r.Header.Get("E2b-Sandbox-Id"); id != "" {
		f.serveData(w, r, id, r.Header.Get("E2b-Sandbox-Port"))
		return
	}

	if r.Header.Get("X-API-Key") != f.apiKey {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "message": "Invalid API key"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/sandboxes":
		writeJSON(w, http.StatusOK, f.sandboxes)
	case r.Method == http.MethodPost && r.URL.Path == "/sandboxes":
		var body struct {
			TemplateID string            `json:"templateID"`
			Timeout    int               `json:"timeout"`
			Metadata   map[string]string `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"code": 400, "message": err.Error()})
			return
		}
		f.creates++
		sbx := fakeSandbox{
			ID:         fmt.Sprintf("sbx%d", f.creates),
			TemplateID: body.TemplateID,
			Metadata:   body.Metadata,
		}
		f.sandboxes = append(f.sandboxes, sbx)
		f.timeouts[sbx.ID] = body.Timeout
		writeJSON(w, http.StatusCreated, map[string]any{
			"sandboxID":       sbx.ID,
			"templateID":      sbx.TemplateID,
			"envdAccessToken": "token-" + sbx.ID,
		})
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/timeout"):
		id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/sandboxes/"), "/timeout")
		var body struct {
			Timeout int `json:"timeout"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.timeouts[id] = body.Timeout
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/sandboxes/"):
		id := strings.TrimPrefix(r.URL.Path, "/sandboxes/")
		for _, sbx := range f.sandboxes {
			if sbx.ID == id {
				writeJSON(w, http.StatusOK, sbx)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"code": 404, "message": "sandbox not found"})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeE2B) serveData(w http.ResponseWriter, r *http.Request, id, port string) {
	switch {
	case r.URL.Path == "/files" && port == fmt.Sprint(e2b.EnvdPort):
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)

		f.mu.Lock()
		f.files[id+":"+r.URL.Query().Get("path")] = string(content)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, []map[string]string{{"path": r.URL.Query().Get("path")}})
	case r.URL.Path == "/execute" && port == fmt.Sprint(e2b.CodeInterpreterPort):
		var body struct {
			Code string `json:"code"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		f.executed = append(f.executed, id+":"+body.Code)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"type":"number_of_executions","execution_count":1}`+"\n")
		_, _ = io.WriteString(w, `{"type":"stdout","text":"hello\n"}`+"\n")
		_, _ = io.WriteString(w, `{"type":"result","text":"2","is_main_result":true}`+"\n")
		_, _ = io.WriteString(w, `{"type":"end_of_execution"}`+"\n")
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// loadConfig writes a config file pointing at the fake service and loads it
func loadConfig(t *testing.T, serverURL string) *config.Config {
	t.Helper()
	t.Setenv("E2B_API_KEY", "")
	t.Setenv("SBXBROKER_E2B_API_KEY", "")

	raw, err := yaml.Marshal(map[string]any{
		"server": map[string]any{"transport": "stdio"},
		"e2b": map[string]any{
			"api_url":     serverURL,
			"sandbox_url": serverURL,
			"domain":      "e2b.test",
			"api_key":     "e2b_default",
		},
		"logging": map[string]any{"mode": "development", "level": "debug"},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func callTool(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) (string, bool) {
	t.Helper()
	request, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params":  map[string]any{"name": name, "arguments": args},
	})
	require.NoError(t, err)

	response := s.GetMCPServer().HandleMessage(context.Background(), request)
	raw, err := json.Marshal(response)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Nil(t, decoded.Error, "unexpected protocol error")
	require.Len(t, decoded.Result.Content, 1)
	return decoded.Result.Content[0].Text, decoded.Result.IsError
}

// TestIntegrationBrokerOverFakeE2B wires config, logger, E2B client, broker and MCP server together
func TestIntegrationBrokerOverFakeE2B(t *testing.T) {
	fake := newFakeE2B("e2b_default")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := loadConfig(t, srv.URL)
	log, err := logger.NewFromConfig(cfg)
	require.NoError(t, err)
	defer func() { _ = log.Sync() }()

	registry := prometheus.NewRegistry()
	metrics := sandbox.NewMetrics(registry)
	client := sandbox.NewE2BClient(log, cfg)
	svc := sandbox.NewService(log, cfg, client, metrics)

	server, err := mcpserver.New(cfg, log, svc, registry)
	require.NoError(t, err)

	t.Run("WriteToPageCreatesThenReuses", func(t *testing.T) {
		text, isError := callTool(t, server, mcpserver.ToolWriteToPage, map[string]any{
			"user_id": "alice",
			"code":    "export default function Page() { return <p>v1</p> }",
		})
		require.False(t, isError, text)
		assert.JSONEq(t, `{"url":"https://3000-sbx1.e2b.test"}`, text)

		text, isError = callTool(t, server, mcpserver.ToolWriteToPage, map[string]any{
			"user_id": "alice",
			"code":    "export default function Page() { return <p>v2</p> }",
		})
		require.False(t, isError, text)
		assert.JSONEq(t, `{"url":"https://3000-sbx1.e2b.test"}`, text)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, 1, fake.creates)
		assert.Equal(t, "export default function Page() { return <p>v2</p> }", fake.files["sbx1:/home/user/app/page.tsx"])
		assert.Equal(t, map[string]string{"userID": "alice", "template": "nextjs-developer"}, fake.sandboxes[0].Metadata)
		assert.Equal(t, 600, fake.timeouts["sbx1"])
	})

	t.Run("WriteToAppUsesItsOwnTemplate", func(t *testing.T) {
		text, isError := callTool(t, server, mcpserver.ToolWriteToApp, map[string]any{
			"user_id": "alice",
			"code":    "import streamlit as st",
		})
		require.False(t, isError, text)
		assert.JSONEq(t, `{"url":"https://8501-sbx2.e2b.test"}`, text)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, "import streamlit as st", fake.files["sbx2:/home/user/app.py"])
		assert.Equal(t, "streamlit-developer", fake.sandboxes[1].TemplateID)
	})

	t.Run("RunPython", func(t *testing.T) {
		text, isError := callTool(t, server, mcpserver.ToolRunPython, map[string]any{
			"user_id": "bob",
			"code":    "print('hello'); 1+1",
		})
		require.False(t, isError, text)

		var execution e2b.Execution
		require.NoError(t, json.Unmarshal([]byte(text), &execution))
		assert.Equal(t, "2", execution.Text())
		assert.Equal(t, []string{"hello\n"}, execution.Logs.Stdout)

		fake.mu.Lock()
		defer fake.mu.Unlock()
		assert.Equal(t, []string{"sbx3:print('hello'); 1+1"}, fake.executed)
	})

	t.Run("FindSandboxID", func(t *testing.T) {
		text, isError := callTool(t, server, mcpserver.ToolFindSandboxID, map[string]any{"user_id": "bob"})
		require.False(t, isError, text)
		assert.JSONEq(t, `{"sandbox_id":"sbx3"}`, text)

		text, isError = callTool(t, server, mcpserver.ToolFindSandboxID, map[string]any{"user_id": "carol"})
		require.False(t, isError, text)
		assert.JSONEq(t, `{"sandbox_id":""}`, text)
	})

	t.Run("RejectedAPIKeyIsReported", func(t *testing.T) {
		text, isError := callTool(t, server, mcpserver.ToolWriteToApp, map[string]any{
			"user_id": "dave",
			"code":    "x",
			"api_key": "wrong",
		})
		assert.True(t, isError)
		assert.Contains(t, text, "Invalid API key")
		assert.Contains(t, text, "401")
	})

	t.Run("Metrics", func(t *testing.T) {
		count, err := testutil.GatherAndCount(registry, "sandboxbroker_resolves_total")
		require.NoError(t, err)
		assert.Positive(t, count)
	})
}
