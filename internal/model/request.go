package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransformRequest is the submission payload for POST /api/video/transform.
type TransformRequest struct {
	VideoID        string          `json:"videoId" validate:"required,uuid4"`
	VideoURL       string          `json:"videoUrl" validate:"required,url,startswith=http"`
	Prompt         string          `json:"prompt" validate:"required,max=1000"`
	PipelineConfig *PipelineConfig `json:"pipelineConfig,omitempty"`
}

// PipelineConfig selects which standard steps run and appends custom steps.
// Disabled steps are still recorded on the pipeline and marked skipped.
type PipelineConfig struct {
	EnableRunwayVideo *bool            `json:"enableRunwayVideo,omitempty"` // default true
	EnableFFmpeg      bool             `json:"enableFfmpeg,omitempty"`
	EnableWhisper     bool             `json:"enableWhisper,omitempty"`
	EnableGPT4        bool             `json:"enableGpt4,omitempty"`
	CustomSteps       []map[string]any `json:"customSteps,omitempty"`
}

// UnmarshalJSON decodes the config strictly: a key outside the known set is
// a validation error, not something to drop silently.
func (c *PipelineConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		switch key {
		case "enableRunwayVideo", "enableFfmpeg", "enableWhisper", "enableGpt4", "customSteps":
		default:
			return fmt.Errorf("unknown pipelineConfig key %q", key)
		}
	}

	type plain PipelineConfig
	var out plain
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*c = PipelineConfig(out)
	return nil
}

// RunwayEnabled resolves the pointer default.
func (c *PipelineConfig) RunwayEnabled() bool {
	if c == nil || c.EnableRunwayVideo == nil {
		return true
	}
	return *c.EnableRunwayVideo
}

// TransformResponse acknowledges a submission.
type TransformResponse struct {
	VideoID        string         `json:"videoId"`
	PipelineID     string         `json:"pipelineId"`
	Status         PipelineStatus `json:"status"`
	Message        string         `json:"message"`
	TotalSteps     int            `json:"totalSteps"`
	CompletedSteps int            `json:"completedSteps"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// StatusResponse is the full pipeline snapshot returned by the status endpoint.
type StatusResponse struct {
	PipelineID       string         `json:"pipelineId"`
	VideoID          string         `json:"videoId"`
	Status           PipelineStatus `json:"status"`
	Message          string         `json:"message"`
	Steps            []Step         `json:"steps"`
	TotalSteps       int            `json:"totalSteps"`
	CompletedSteps   int            `json:"completedSteps"`
	CurrentStepIndex int            `json:"currentStepIndex"`
	Result           *ArtifactRef   `json:"result,omitempty"`
	Error            *PipelineError `json:"error,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	CompletedAt      *time.Time     `json:"completedAt,omitempty"`
}

// PipelineSummary is the list-view projection of a pipeline.
type PipelineSummary struct {
	PipelineID     string         `json:"pipelineId"`
	VideoID        string         `json:"videoId"`
	Status         PipelineStatus `json:"status"`
	TotalSteps     int            `json:"totalSteps"`
	CompletedSteps int            `json:"completedSteps"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// ListResponse wraps pipeline summaries, most-recently-created first.
type ListResponse struct {
	Pipelines []PipelineSummary `json:"pipelines"`
	Total     int               `json:"total"`
}

// StepsResponse is the steps-listing accessor payload.
type StepsResponse struct {
	PipelineID string `json:"pipelineId"`
	Steps      []Step `json:"steps"`
}

// CancelResponse acknowledges a cancellation request. The transition to
// cancelled is asynchronous; Status reflects the snapshot at response time.
type CancelResponse struct {
	Success    bool           `json:"success"`
	PipelineID string         `json:"pipelineId"`
	Status     PipelineStatus `json:"status"`
}
