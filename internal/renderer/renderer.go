// Package renderer defines the content-renderer collaborator contract and
// the transports that implement it. The dialogue engine only ever sees the
// injected function form; nothing here leaks into user-facing messages.
package renderer

import (
	"context"

	"github.com/briefline/briefline/internal/dialogue"
)

// Result is what the render service reports back for one command.
type Result struct {
	Success        bool   `json:"success"`
	ArtifactHandle string `json:"artifact_handle"`
	ErrorDetail    string `json:"error_detail,omitempty"`
}

// Renderer turns a structured command into an artifact.
type Renderer interface {
	Render(ctx context.Context, cmd dialogue.StructuredCommand) (Result, error)
}

// AsRenderFunc adapts a Renderer to the dialogue manager's injection point.
// Transport errors are folded into a failed result so the manager's
// user-safe fallback path handles them uniformly.
func AsRenderFunc(r Renderer) dialogue.RenderFunc {
	return func(ctx context.Context, cmd dialogue.StructuredCommand) dialogue.RenderResult {
		res, err := r.Render(ctx, cmd)
		if err != nil {
			return dialogue.RenderResult{ErrorDetail: err.Error()}
		}
		return dialogue.RenderResult{
			Success:        res.Success,
			ArtifactHandle: res.ArtifactHandle,
			ErrorDetail:    res.ErrorDetail,
		}
	}
}
