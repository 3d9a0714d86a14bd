package pipeline

import (
	"context"
	"sort"

	"github.com/plaicube/video-pipeline/internal/model"
)

// Reserved parameter keys injected by the runtime on every invocation,
// alongside the step's own params.
const (
	ParamPipelineID = "pipelineId"
	ParamStepID     = "stepId"
	ParamPrompt     = "prompt"
	ParamVideoID    = "videoId"
)

// Handler is the capability contract a step handler must satisfy. Invoke is
// called at most once per step attempt, receives the prior step's output as
// input, may report progress (0-100) through the callback, and must honor
// ctx cancellation cooperatively.
type Handler interface {
	Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error)

func (f HandlerFunc) Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
	return f(ctx, input, params, progress)
}

// Registry resolves step types to handlers. An unknown type is a
// configuration error at submission time, never at run time.
type Registry struct {
	handlers map[model.StepType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.StepType]Handler)}
}

func (r *Registry) Register(t model.StepType, h Handler) {
	r.handlers[t] = h
}

func (r *Registry) Resolve(t model.StepType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

func (r *Registry) Has(t model.StepType) bool {
	_, ok := r.handlers[t]
	return ok
}

// Types returns the registered step types in stable order.
func (r *Registry) Types() []model.StepType {
	out := make([]model.StepType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
