package steps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/plaicube/video-pipeline/internal/client"
	"github.com/plaicube/video-pipeline/internal/config"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
)

// ConvertHandler performs the ffmpeg format-conversion step: download the
// input artifact, transcode it locally, and host the output.
type ConvertHandler struct {
	cfg        config.FFmpegConfig
	storage    client.ArtifactStore
	httpClient *http.Client
}

func NewConvertHandler(cfg config.FFmpegConfig, storage client.ArtifactStore) *ConvertHandler {
	return &ConvertHandler{
		cfg:     cfg,
		storage: storage,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (h *ConvertHandler) Invoke(ctx context.Context, input model.ArtifactRef, params map[string]any, progress func(int)) (model.ArtifactRef, error) {
	pipelineID := paramString(params, pipeline.ParamPipelineID)
	progress(5)

	if !h.cfg.Enabled {
		log.Printf("FFmpeg disabled, returning mock conversion for pipeline %s", pipelineID)
		progress(50)
		return mockArtifact(params, "converted."+h.cfg.Format), nil
	}

	srcPath, err := h.download(ctx, input, pipelineID)
	if err != nil {
		return "", err
	}
	defer os.Remove(srcPath)
	progress(30)

	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("ffmpeg_output_%s.%s", pipelineID, h.cfg.Format))
	defer os.Remove(outPath)

	args := []string{
		"-i", srcPath,
		"-c:v", h.cfg.Codec,
		"-preset", h.cfg.Preset,
		"-vf", "scale=" + h.cfg.Resolution,
		"-y",
		outPath,
	}

	cmd := exec.CommandContext(ctx, h.cfg.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 512))
	}
	progress(70)

	if !storageReady(h.storage) {
		return model.ArtifactRef("file://" + outPath), nil
	}

	f, err := os.Open(outPath)
	if err != nil {
		return "", fmt.Errorf("open converted file: %w", err)
	}
	defer f.Close()

	key := fmt.Sprintf("pipelines/%s/converted.%s", pipelineID, h.cfg.Format)
	url, err := h.storage.UploadArtifact(ctx, key, f, "video/"+h.cfg.Format)
	if err != nil {
		return "", fmt.Errorf("upload converted file: %w", err)
	}
	progress(95)
	return model.ArtifactRef(url), nil
}

// download fetches the input artifact to a temporary file.
func (h *ConvertHandler) download(ctx context.Context, input model.ArtifactRef, pipelineID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(input), nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download input: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download input: unexpected status %d", resp.StatusCode)
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("video_%s.mp4", pipelineID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", err)
	}
	return path, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
