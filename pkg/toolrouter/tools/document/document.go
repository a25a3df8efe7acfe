// Package document implements document_generate: render structured content
// into a document artifact and hand the bytes off to an artifact sink.
package document

import (
	"context"
	"fmt"

	"github.com/conductor-run/conductor/pkg/toolrouter"
)

// ArtifactSink stores a byte blob for a run and returns its retrievable
// URI. *pkg/artifact.Manager satisfies this without document needing to
// import it directly.
type ArtifactSink interface {
	Put(ctx context.Context, runID, name string, data []byte) (uri string, err error)
}

// Handler builds the document_generate Handler. render converts the tool
// call's structured "content" input into document bytes (e.g. Markdown,
// PDF); sink persists the result.
func Handler(sink ArtifactSink, render func(content any) ([]byte, string, error)) toolrouter.Handler {
	return func(ctx context.Context, call toolrouter.ToolCall) (map[string]any, error) {
		content, ok := call.Input["content"]
		if !ok {
			return nil, fmt.Errorf("document_generate: \"content\" input is required")
		}
		title, _ := call.Input["title"].(string)
		if title == "" {
			title = "document"
		}

		data, ext, err := render(content)
		if err != nil {
			return nil, fmt.Errorf("document_generate: rendering: %w", err)
		}

		name := title + ext
		uri, err := sink.Put(ctx, call.RunID, name, data)
		if err != nil {
			return nil, fmt.Errorf("document_generate: storing artifact: %w", err)
		}

		return map[string]any{"artifact_uri": uri, "bytes": len(data)}, nil
	}
}
