// Package shell implements the shell_exec tool body: run a command in a
// sandboxed working directory and capture its output, grounded on the
// pack's command-execution wrapper pattern (bytes.Buffer stdout/stderr
// capture around exec.CommandContext).
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// Handler builds the shell_exec Handler. workDir is the sandbox root every
// invocation is confined to via its working directory; callers are expected
// to have already provisioned an isolated directory per run.
func Handler(workDir string) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		command, _ := call.Input["command"].(string)
		if command == "" {
			return nil, fmt.Errorf("shell_exec: \"command\" input is required")
		}
		args, _ := call.Input["args"].([]string)

		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Dir = workDir

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()
		exitCode := 0
		if runErr != nil {
			if exitErr, ok := runErr.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			} else {
				return nil, fmt.Errorf("shell_exec: %w", runErr)
			}
		}

		return map[string]any{
			"exit_code": exitCode,
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
		}, nil
	}
}
