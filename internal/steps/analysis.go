package steps

import (
	"context"
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

const analysisSystemPrompt = "You are a helpful AI assistant that analyzes video content and provides insights."

// AnalysisHandler performs the GPT content-analysis step over the prior
// step's artifact (typically a transcript).
type AnalysisHandler struct {
	openai     *client.OpenAIClient
	storage    client.ArtifactStore
	httpClient *http.Client
}

func NewAnalysisHandler(openai *client.OpenAIClient, storage client.ArtifactStore) *AnalysisHandler {
	return &AnalysisHandler{
		openai:  openai,
		storage: storage,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (h *AnalysisHandler) Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
	pipelineID := paramString(params, pipeline.ParamPipelineID)
	progress(5)

	if !h.openai.IsConfigured() {
		log.Printf("OpenAI not configured, returning mock analysis for pipeline %s", pipelineID)
		progress(60)
		return mockArtifact(params, "analysis.json"), nil
	}

	content, err := h.content(ctx, input, params)
	if err != nil {
		return "", err
	}
	progress(30)

	prompt := fmt.Sprintf("Analyze the following video content and summarize its key themes, tone and notable moments:\n\n%s", content)
	analysis, err := h.openai.ChatCompletion(ctx, analysisSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("analyze content: %w", err)
	}
	progress(80)

	if !storageReady(h.storage) {
		return model.ArtifactRef("analysis://" + pipelineID), nil
	}

	key := fmt.Sprintf("pipelines/%s/analysis.txt", pipelineID)
	url, err := h.storage.UploadArtifact(ctx, key, strings.NewReader(analysis), "text/plain")
	if err != nil {
		return "", fmt.Errorf("upload analysis: %w", err)
	}
	progress(95)
	return model.ArtifactRef(url), nil
}

// content resolves the text to analyze: an http(s) artifact is fetched,
// anything else falls back to the submission prompt.
func (h *AnalysisHandler) content(ctx context.Context, input model.ArtifactRef, params map[string]any) (string, error) {
	ref := string(input)
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return paramString(params, pipeline.ParamPrompt), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("create content request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch content: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}
