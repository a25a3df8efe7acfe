// Package file implements file_read and file_write, both confined to a
// run's workspace directory.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// ReadHandler builds the file_read Handler.
func ReadHandler(workDir string) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		path, err := resolvePath(workDir, call.Input["path"])
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("file_read: %w", err)
		}
		return map[string]any{"content": string(data), "bytes": len(data)}, nil
	}
}

// WriteHandler builds the file_write Handler.
func WriteHandler(workDir string) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		path, err := resolvePath(workDir, call.Input["path"])
		if err != nil {
			return nil, err
		}
		content, _ := call.Input["content"].(string)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("file_write: %w", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("file_write: %w", err)
		}
		return map[string]any{"bytes_written": len(content)}, nil
	}
}

// resolvePath joins workDir with the requested relative path, rejecting any
// path that escapes workDir via "..".
func resolvePath(workDir string, rawPath any) (string, error) {
	rel, _ := rawPath.(string)
	if rel == "" {
		return "", fmt.Errorf("\"path\" input is required")
	}
	joined := filepath.Join(workDir, rel)
	escape, err := filepath.Rel(filepath.Clean(workDir), joined)
	if err != nil || escape == ".." || strings.HasPrefix(escape, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the workspace", rel)
	}
	return joined, nil
}
