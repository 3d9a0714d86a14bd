package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/plaicube/video-pipeline/internal/model"
)

// TimeoutPolicy returns the execution bound for a step type.
type TimeoutPolicy func(t model.StepType) time.Duration

// DefaultStepTimeout bounds handlers for which no policy is configured.
const DefaultStepTimeout = 2 * time.Minute

// errStaleProgress rejects a progress write that would regress or that
// arrived after the step stopped running. Rejected writes leave the prior
// store state untouched.
var errStaleProgress = errors.New("stale progress update")

// Runtime executes a single step-handler invocation: it applies the
// per-type timeout, funnels progress updates into the store with a monotonic
// clamp, and observes cancellation at the start of execution and at every
// progress boundary. It never retries; at most one attempt per step.
type Runtime struct {
	store   *Store
	events  Events
	timeout TimeoutPolicy
}

func NewRuntime(store *Store, events Events, timeout TimeoutPolicy) *Runtime {
	if events == nil {
		events = NopEvents{}
	}
	if timeout == nil {
		timeout = func(model.StepType) time.Duration { return DefaultStepTimeout }
	}
	return &Runtime{store: store, events: events, timeout: timeout}
}

// Execute runs the handler for the step at stepIndex. Disabled steps are
// passed through without invoking the handler: the input artifact becomes
// the output artifact unchanged. A cancelled context yields ErrCancelled,
// an exceeded bound yields *TimeoutError, and any other handler failure is
// wrapped into *HandlerError.
func (r *Runtime) Execute(ctx context.Context, pipelineID string, stepIndex int, h Handler, input model.ArtifactRef) (model.ArtifactRef, error) {
	snapshot, err := r.store.Get(pipelineID)
	if err != nil {
		return "", err
	}
	step := snapshot.Steps[stepIndex]

	if !step.Enabled {
		_, err := r.store.Update(pipelineID, func(p *model.Pipeline) error {
			if p.Terminal() {
				return errStaleProgress
			}
			st := &p.Steps[stepIndex]
			st.InputRef = input
			st.OutputRef = input
			return nil
		})
		if err != nil {
			return "", ErrCancelled
		}
		return input, nil
	}

	if ctx.Err() != nil {
		return "", ErrCancelled
	}

	bound := r.timeout(step.Type)
	tctx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	params := mergeParams(snapshot, step)

	out, err := h.Invoke(tctx, input, params, r.progressFunc(ctx, pipelineID, stepIndex))
	if err != nil {
		if ctx.Err() != nil {
			return "", ErrCancelled
		}
		if tctx.Err() == context.DeadlineExceeded {
			return "", &TimeoutError{StepType: step.Type, Timeout: bound}
		}
		return "", &HandlerError{StepType: step.Type, Err: err}
	}

	// A handler that ignored cancellation may still return a result; the
	// result is discarded and the outcome stays cancelled.
	if ctx.Err() != nil {
		return "", ErrCancelled
	}
	return out, nil
}

// progressFunc writes handler progress into the step record. Regressions
// are discarded rather than applied, and nothing is written once the step
// stopped running or the pipeline went terminal.
func (r *Runtime) progressFunc(ctx context.Context, pipelineID string, stepIndex int) func(int) {
	return func(pct int) {
		if ctx.Err() != nil {
			return
		}
		if pct > 100 {
			pct = 100
		}
		updated, err := r.store.Update(pipelineID, func(p *model.Pipeline) error {
			if p.Terminal() {
				return errStaleProgress
			}
			st := &p.Steps[stepIndex]
			if st.Status != model.StepStatusRunning || pct <= st.Progress {
				return errStaleProgress
			}
			st.Progress = pct
			return nil
		})
		if err != nil {
			return
		}
		r.events.StepProgress(pipelineID, updated.Steps[stepIndex])
	}
}

func mergeParams(p *model.Pipeline, step model.Step) map[string]any {
	params := make(map[string]any, len(step.Params)+4)
	for k, v := range step.Params {
		params[k] = v
	}
	params[ParamPipelineID] = p.ID
	params[ParamStepID] = step.ID
	params[ParamPrompt] = p.Prompt
	params[ParamVideoID] = p.VideoID
	return params
}
