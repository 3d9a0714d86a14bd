package model

import "time"

// ArtifactRef is an opaque pointer (usually a URL) to an input or output
// media resource. The pipeline core never dereferences it.
type ArtifactRef string

// Step is one stage of a pipeline, bound to exactly one handler type.
// Steps are owned by their pipeline and never shared.
type Step struct {
	ID         string         `json:"stepId"`
	Type       StepType       `json:"stepType"`
	Status     StepStatus     `json:"status"`
	Enabled    bool           `json:"enabled"`
	Order      int            `json:"order"`
	Params     map[string]any `json:"params,omitempty"`
	InputRef   ArtifactRef    `json:"inputRef,omitempty"`
	OutputRef  ArtifactRef    `json:"outputRef,omitempty"`
	Progress   int            `json:"progress"`
	Error      *string        `json:"error,omitempty"`
	StartedAt  *time.Time     `json:"startedAt,omitempty"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

// PipelineError is the structured error recorded on a failed pipeline.
type PipelineError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Pipeline represents one end-to-end multi-step processing run against a
// single video input.
type Pipeline struct {
	ID               string         `json:"pipelineId"`
	VideoID          string         `json:"videoId"`
	VideoURL         string         `json:"videoUrl"`
	Prompt           string         `json:"prompt"`
	Status           PipelineStatus `json:"status"`
	Steps            []Step         `json:"steps"`
	CurrentStepIndex int            `json:"currentStepIndex"`
	CancelRequested  bool           `json:"cancelRequested"`
	Result           *ArtifactRef   `json:"result,omitempty"`
	Error            *PipelineError `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// Terminal reports whether the pipeline reached a terminal status.
func (p *Pipeline) Terminal() bool {
	return p.Status.Terminal()
}

// CompletedSteps counts steps that finished successfully.
func (p *Pipeline) CompletedSteps() int {
	n := 0
	for i := range p.Steps {
		if p.Steps[i].Status == StepStatusCompleted {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so that store snapshots never alias live state.
func (p *Pipeline) Clone() *Pipeline {
	cp := *p
	cp.Steps = make([]Step, len(p.Steps))
	for i := range p.Steps {
		cp.Steps[i] = p.Steps[i].clone()
	}
	if p.Result != nil {
		r := *p.Result
		cp.Result = &r
	}
	if p.Error != nil {
		e := *p.Error
		cp.Error = &e
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (s Step) clone() Step {
	cp := s
	if s.Params != nil {
		cp.Params = make(map[string]any, len(s.Params))
		for k, v := range s.Params {
			cp.Params[k] = v
		}
	}
	if s.Error != nil {
		e := *s.Error
		cp.Error = &e
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		cp.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		cp.FinishedAt = &t
	}
	return cp
}
