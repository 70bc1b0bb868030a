package e2b

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxStreamLine bounds a single event of the execution stream (results may carry images)
const maxStreamLine = 32 * 1024 * 1024

// CodeInterpreter is a sandbox exposing a notebook-style cell execution interface
type CodeInterpreter struct {
	*Sandbox
}

// NewCodeInterpreter wraps a sandbox handle running a code interpreter template
func NewCodeInterpreter(s *Sandbox) *CodeInterpreter {
	return &CodeInterpreter{Sandbox: s}
}

// Notebook returns the notebook of the code interpreter
func (c *CodeInterpreter) Notebook() *Notebook {
	return &Notebook{sandbox: c.Sandbox}
}

// Notebook executes cells in the default kernel of a code interpreter
type Notebook struct {
	sandbox *Sandbox
}

// Execution is the outcome of one executed cell
type Execution struct {
	Results        []Result        `json:"results"`
	Logs           Logs            `json:"logs"`
	Error          *ExecutionError `json:"error,omitempty"`
	ExecutionCount int             `json:"execution_count,omitempty"`
}

// Text returns the text of the main result, if any
func (e *Execution) Text() string {
	for _, r := range e.Results {
		if r.IsMainResult {
			return r.Text
		}
	}
	return ""
}

// Logs holds what the cell printed
type Logs struct {
	Stdout []string `json:"stdout"`
	Stderr []string `json:"stderr"`
}

// ExecutionError is an exception raised by the executed code
type ExecutionError struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Traceback string `json:"traceback"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Value)
}

// Result is display data produced by the cell
type Result struct {
	Text         string         `json:"text,omitempty"`
	HTML         string         `json:"html,omitempty"`
	Markdown     string         `json:"markdown,omitempty"`
	SVG          string         `json:"svg,omitempty"`
	PNG          string         `json:"png,omitempty"`
	JPEG         string         `json:"jpeg,omitempty"`
	PDF          string         `json:"pdf,omitempty"`
	LaTeX        string         `json:"latex,omitempty"`
	JSON         map[string]any `json:"json,omitempty"`
	JavaScript   string         `json:"javascript,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
	IsMainResult bool           `json:"is_main_result,omitempty"`
}

type executeRequest struct {
	Code string `json:"code"`
}

// streamEvent is one line of the newline-delimited execution stream
type streamEvent struct {
	Type           string `json:"type"`
	Text           string `json:"text"`
	Name           string `json:"name"`
	Value          string `json:"value"`
	Traceback      string `json:"traceback"`
	ExecutionCount int    `json:"execution_count"`
}

// ExecCell runs code as one cell and waits for it to finish.
// Exceptions raised by the code are reported in Execution.Error, not as an error.
func (n *Notebook) ExecCell(ctx context.Context, code string) (*Execution, error) {
	r, baseURL, err := n.sandbox.dataRequest(ctx, CodeInterpreterPort)
	if err != nil {
		return nil, err
	}

	resp, err := r.
		SetBody(executeRequest{Code: code}).
		SetDoNotParseResponse(true).
		Post(baseURL + "/execute")
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		raw, _ := io.ReadAll(body)
		return nil, &APIError{
			StatusCode: resp.StatusCode(),
			Message:    strings.TrimSpace(string(raw)),
			Path:       "/execute",
		}
	}

	return decodeExecution(body)
}

// decodeExecution folds the execution stream into an Execution
func decodeExecution(r io.Reader) (*Execution, error) {
	execution := &Execution{
		Results: []Result{},
		Logs:    Logs{Stdout: []string{}, Stderr: []string{}},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to decode execution event: %w", err)
		}

		switch event.Type {
		case "result":
			var result Result
			if err := json.Unmarshal(line, &result); err != nil {
				return nil, fmt.Errorf("failed to decode execution result: %w", err)
			}
			execution.Results = append(execution.Results, result)
		case "stdout":
			execution.Logs.Stdout = append(execution.Logs.Stdout, event.Text)
		case "stderr":
			execution.Logs.Stderr = append(execution.Logs.Stderr, event.Text)
		case "error":
			execution.Error = &ExecutionError{
				Name:      event.Name,
				Value:     event.Value,
				Traceback: event.Traceback,
			}
		case "number_of_executions":
			execution.ExecutionCount = event.ExecutionCount
		case "end_of_execution":
			return execution, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read execution stream: %w", err)
	}

	return execution, nil
}
