package e2b

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrMissingAPIKey is returned when neither the call nor the client carries an API key.
	ErrMissingAPIKey = errors.New("e2b: api key is required")
	// ErrClosed is returned by data plane calls on a closed handle.
	ErrClosed = errors.New("e2b: sandbox handle is closed")
)

// APIError is a non-2xx answer from the control or data plane
type APIError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("e2b api error, request path: %s, code: %d, message: %s", e.Path, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

func newAPIError(path string, resp *resty.Response) *APIError {
	message := strings.TrimSpace(string(resp.Body()))
	var body apiErrorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Message != "" {
		message = body.Message
	}
	return &APIError{
		StatusCode: resp.StatusCode(),
		Message:    message,
		Path:       path,
	}
}
