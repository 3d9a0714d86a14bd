package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage carries a step-level progress update
type WSProgressMessage struct {
	Type       string         `json:"type"`
	PipelineID string         `json:"pipelineId"`
	StepType   StepType       `json:"stepType"`
	StepStatus StepStatus     `json:"stepStatus"`
	Progress   int            `json:"progress"`
	Status     PipelineStatus `json:"status"`
}

// WSCompleteMessage announces a terminal pipeline
type WSCompleteMessage struct {
	Type       string         `json:"type"`
	PipelineID string         `json:"pipelineId"`
	Status     PipelineStatus `json:"status"`
	Result     *ArtifactRef   `json:"result,omitempty"`
}

// WSErrorMessage announces a failed pipeline
type WSErrorMessage struct {
	Type       string  `json:"type"`
	PipelineID string  `json:"pipelineId"`
	Error      WSError `json:"error"`
}

// WSError carries the structured failure detail
type WSError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
