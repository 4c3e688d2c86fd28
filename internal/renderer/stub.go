package renderer

import (
	"context"

	"github.com/briefline/briefline/internal/dialogue"
	"github.com/google/uuid"
)

// Stub fakes the external render service for development and tests. Every
// command succeeds with a unique artifact handle.
type Stub struct{}

var _ Renderer = Stub{}

// Render returns a synthetic artifact handle for the command's domain.
func (Stub) Render(_ context.Context, cmd dialogue.StructuredCommand) (Result, error) {
	return Result{
		Success:        true,
		ArtifactHandle: "artifact://" + cmd.Domain + "/" + uuid.NewString(),
	}, nil
}
