// Package image implements image_generate: call an image generation
// backend with a prompt and hand the resulting bytes off to an artifact
// sink.
package image

import (
	"context"
	"fmt"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// ArtifactSink stores a byte blob for a run and returns its retrievable
// URI, mirroring the document package's seam.
type ArtifactSink interface {
	Put(ctx context.Context, runID, name string, data []byte) (uri string, err error)
}

// Generator calls the underlying image backend and returns PNG/JPEG bytes.
type Generator func(ctx context.Context, prompt string) ([]byte, error)

// Handler builds the image_generate Handler.
func Handler(sink ArtifactSink, generate Generator) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		prompt, _ := call.Input["prompt"].(string)
		if prompt == "" {
			return nil, fmt.Errorf("image_generate: \"prompt\" input is required")
		}

		data, err := generate(ctx, prompt)
		if err != nil {
			return nil, fmt.Errorf("image_generate: %w", err)
		}

		uri, err := sink.Put(ctx, call.RunID, call.ID+".png", data)
		if err != nil {
			return nil, fmt.Errorf("image_generate: storing artifact: %w", err)
		}

		return map[string]any{"artifact_uri": uri, "bytes": len(data)}, nil
	}
}
