package e2b

import (
	"context"
	"strings"
)

// defaultUser owns the files written through envd
const defaultUser = "user"

// Filesystem gives access to the files of a sandbox
type Filesystem struct {
	sandbox *Sandbox
}

// Write creates or replaces the file at path with content.
// Missing parent directories are created by the sandbox daemon.
func (f *Filesystem) Write(ctx context.Context, path, content string) error {
	r, baseURL, err := f.sandbox.dataRequest(ctx, EnvdPort)
	if err != nil {
		return err
	}

	resp, err := r.
		SetQueryParam("path", path).
		SetQueryParam("username", defaultUser).
		SetFileReader("file", path, strings.NewReader(content)).
		Post(baseURL + "/files")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return newAPIError("/files", resp)
	}
	return nil
}
