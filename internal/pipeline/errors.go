package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/plaicube/video-pipeline/internal/model"
)

// Sentinel errors surfaced synchronously to facade callers.
var (
	ErrNotFound     = errors.New("pipeline not found")
	ErrInvalidState = errors.New("operation not valid for current pipeline state")
	ErrValidation   = errors.New("invalid submission")
)

// ErrCancelled is the outcome of a cooperatively aborted step execution.
// It is a normal terminal outcome, not a failure.
var ErrCancelled = errors.New("execution cancelled")

// HandlerError wraps a step-handler failure with the step type that produced it.
type HandlerError struct {
	StepType model.StepType
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// TimeoutError reports that a handler exceeded its configured bound.
type TimeoutError struct {
	StepType model.StepType
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %s: handler timed out after %s", e.StepType, e.Timeout)
}

// classify converts a runtime error into the structured error recorded on a
// failed pipeline.
func classify(err error) *model.PipelineError {
	var te *TimeoutError
	if errors.As(err, &te) {
		return &model.PipelineError{Kind: model.ErrorKindTimeout, Message: te.Error()}
	}
	return &model.PipelineError{Kind: model.ErrorKindHandler, Message: err.Error()}
}
