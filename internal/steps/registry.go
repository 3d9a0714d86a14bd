// Package steps provides the concrete step handlers backing each pipeline
// step type. Every handler satisfies the pipeline.Handler contract; handlers
// whose external service is not configured fall back to a canned result so
// the service stays operable in development.
package steps

import (
	"fmt"

	"github.com/plaicube/video-pipeline/internal/client"
	"github.com/plaicube/video-pipeline/internal/config"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
)

// BuildRegistry wires one handler per supported step type.
func BuildRegistry(cfg *config.Config, runway *client.RunwayClient, openai *client.OpenAIClient, storage client.ArtifactStore) *pipeline.Registry {
	r := pipeline.NewRegistry()
	r.Register(model.StepTypeRunwayVideo, NewRunwayHandler(runway, cfg.Steps.PollEvery()))
	r.Register(model.StepTypeFFmpeg, NewConvertHandler(cfg.FFmpeg, storage))
	r.Register(model.StepTypeWhisper, NewTranscribeHandler(openai, storage))
	r.Register(model.StepTypeGPT4, NewAnalysisHandler(openai, storage))
	r.Register(model.StepTypeCustom, NewCustomHandler())
	return r
}

func paramString(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// mockArtifact builds the canned artifact reference handlers return when
// their external service is not configured.
func mockArtifact(params map[string]any, name string) model.ArtifactRef {
	pid := paramString(params, pipeline.ParamPipelineID)
	return model.ArtifactRef(fmt.Sprintf("https://storage.plaicube.app/mock/%s/%s", pid, name))
}

func storageReady(s client.ArtifactStore) bool {
	return s != nil && s.IsConfigured()
}
