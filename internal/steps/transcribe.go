package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/plaicube/video-pipeline/internal/client"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
)

// maxAudioBytes caps what the transcription step will pull down.
const maxAudioBytes = 25 << 20 // Whisper API upload limit

// TranscribeHandler performs the Whisper transcription step.
type TranscribeHandler struct {
	openai     *client.OpenAIClient
	storage    client.ArtifactStore
	httpClient *http.Client
}

func NewTranscribeHandler(openai *client.OpenAIClient, storage client.ArtifactStore) *TranscribeHandler {
	return &TranscribeHandler{
		openai:  openai,
		storage: storage,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (h *TranscribeHandler) Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
	pipelineID := paramString(params, pipeline.ParamPipelineID)
	progress(5)

	if !h.openai.IsConfigured() {
		log.Printf("OpenAI not configured, returning mock transcript for pipeline %s", pipelineID)
		progress(60)
		return mockArtifact(params, "transcript.json"), nil
	}

	audio, err := h.fetch(ctx, input)
	if err != nil {
		return "", err
	}
	progress(30)

	result, err := h.openai.Transcribe(ctx, "audio.mp4", audio)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	progress(80)

	if !storageReady(h.storage) {
		return model.ArtifactRef("transcript://" + pipelineID), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}
	key := fmt.Sprintf("pipelines/%s/transcript.json", pipelineID)
	url, err := h.storage.UploadArtifact(ctx, key, strings.NewReader(string(payload)), "application/json")
	if err != nil {
		return "", fmt.Errorf("upload transcript: %w", err)
	}
	progress(95)
	return model.ArtifactRef(url), nil
}

func (h *TranscribeHandler) fetch(ctx context.Context, input model.ArtifactRef) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(input), nil)
	if err != nil {
		return nil, fmt.Errorf("create audio request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download audio: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}
