package model

// Step types
type StepType string

const (
	StepTypeRunwayVideo StepType = "runway_video"
	StepTypeFFmpeg      StepType = "ffmpeg_process"
	StepTypeWhisper     StepType = "whisper_transcribe"
	StepTypeGPT4        StepType = "gpt4_analysis"
	StepTypeCustom      StepType = "custom_process"
)

var ValidStepTypes = []StepType{
	StepTypeRunwayVideo, StepTypeFFmpeg, StepTypeWhisper,
	StepTypeGPT4, StepTypeCustom,
}

// Step status
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Pipeline status
type PipelineStatus string

const (
	PipelineStatusPending   PipelineStatus = "pending"
	PipelineStatusRunning   PipelineStatus = "running"
	PipelineStatusCompleted PipelineStatus = "completed"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
)

// Terminal reports whether a pipeline status admits no further transitions.
func (s PipelineStatus) Terminal() bool {
	switch s {
	case PipelineStatusCompleted, PipelineStatusFailed, PipelineStatusCancelled:
		return true
	}
	return false
}

// Error kinds recorded on a failed pipeline
const (
	ErrorKindHandler = "handler_error"
	ErrorKindTimeout = "handler_timeout"
)
