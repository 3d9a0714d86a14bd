package steps

import (
	"context"

	"github.com/plaicube/video-pipeline/internal/model"
)

// CustomHandler runs a caller-defined processing step. There is no real
// backend for these, so the handler acknowledges the params and emits a
// deterministic artifact.
type CustomHandler struct{}

func NewCustomHandler() *CustomHandler {
	return &CustomHandler{}
}

func (h *CustomHandler) Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	progress(50)

	name := paramString(params, "name")
	if name == "" {
		name = "custom"
	}
	progress(100)
	return mockArtifact(params, name+".out"), nil
}
