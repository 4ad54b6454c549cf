// Package analysis turns a finished mock interview transcript into stored
// feedback. The pipeline runs the feedback sections concurrently against the
// model, retries transient failures, and persists the aggregate.
package analysis

import (
	"context"
	"strings"
)

// Oracle is the model surface the pipeline depends on. Kept to a single
// method so tests can swap in canned responses.
type Oracle interface {
	// GenerateContent sends the prompt and returns the textual response.
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// stripFences removes a surrounding markdown code fence from model output.
// Models frequently wrap JSON answers in ```json blocks even when told not to.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
