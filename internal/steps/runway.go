package steps

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/plaicube/video-pipeline/internal/client"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
)

// RunwayHandler performs the video-to-video transformation step.
type RunwayHandler struct {
	client       *client.RunwayClient
	pollInterval time.Duration
}

func NewRunwayHandler(c *client.RunwayClient, pollInterval time.Duration) *RunwayHandler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &RunwayHandler{client: c, pollInterval: pollInterval}
}

func (h *RunwayHandler) Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
	progress(5)

	if !h.client.IsConfigured() {
		log.Printf("Runway not configured, returning mock transform for pipeline %s", paramString(params, pipeline.ParamPipelineID))
		progress(40)
		progress(90)
		return mockArtifact(params, "transformed.mp4"), nil
	}

	prompt := paramString(params, pipeline.ParamPrompt)
	task, err := h.client.CreateVideoTask(ctx, &client.VideoTaskRequest{
		VideoURI:   string(input),
		PromptText: prompt,
		Ratio:      "1920:1080",
	})
	if err != nil {
		return "", fmt.Errorf("create video task: %w", err)
	}
	progress(10)

	result, err := h.client.PollTask(ctx, task.ID, h.pollInterval, func(pct int) {
		// Task progress spans the 10-95 window; completion fills the rest.
		progress(10 + pct*85/100)
	})
	if err != nil {
		return "", fmt.Errorf("poll video task: %w", err)
	}
	if len(result.Output) == 0 {
		return "", fmt.Errorf("runway task %s returned no output", task.ID)
	}
	return model.ArtifactRef(result.Output[0]), nil
}
