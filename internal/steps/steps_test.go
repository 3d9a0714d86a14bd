package steps

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/plaicube/video-pipeline/internal/config"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
)

func testParams() map[string]any {
	return map[string]any{
		pipeline.ParamPipelineID: "pipe-123",
		pipeline.ParamStepID:     "step-1",
		pipeline.ParamPrompt:     "make it cinematic",
		pipeline.ParamVideoID:    "vid-1",
	}
}

func recordProgress(dst *[]int) func(int) {
	return func(pct int) { *dst = append(*dst, pct) }
}

func assertMonotonic(t *testing.T, pcts []int) {
	t.Helper()
	for i := 1; i < len(pcts); i++ {
		if pcts[i] < pcts[i-1] {
			t.Fatalf("progress went backwards: %v", pcts)
		}
	}
}

func TestRunwayHandlerMockPath(t *testing.T) {
	h := NewRunwayHandler(nil, time.Millisecond)

	var pcts []int
	out, err := h.Invoke(context.Background(), "https://example.com/in.mp4", testParams(), recordProgress(&pcts))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(string(out), "pipe-123") {
		t.Errorf("output should reference the pipeline, got %q", out)
	}
	if len(pcts) == 0 {
		t.Error("expected progress updates")
	}
	assertMonotonic(t, pcts)
}

func TestConvertHandlerDisabledReturnsMock(t *testing.T) {
	h := NewConvertHandler(config.FFmpegConfig{Enabled: false}, nil)

	out, err := h.Invoke(context.Background(), "https://example.com/in.mp4", testParams(), func(int) {})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out == "" {
		t.Fatal("expected a mock artifact")
	}
}

func TestTranscribeHandlerMockPath(t *testing.T) {
	h := NewTranscribeHandler(nil, nil)

	var pcts []int
	out, err := h.Invoke(context.Background(), "https://example.com/in.mp4", testParams(), recordProgress(&pcts))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if out == "" {
		t.Fatal("expected a mock artifact")
	}
	assertMonotonic(t, pcts)
}

func TestAnalysisHandlerMockPath(t *testing.T) {
	h := NewAnalysisHandler(nil, nil)

	out, err := h.Invoke(context.Background(), "transcript://pipe-123", testParams(), func(int) {})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(string(out), "analysis") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCustomHandlerUsesNameParam(t *testing.T) {
	h := NewCustomHandler()

	params := testParams()
	params["name"] = "watermark"
	out, err := h.Invoke(context.Background(), "in", params, func(int) {})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !strings.Contains(string(out), "watermark.out") {
		t.Errorf("expected artifact named after the step, got %q", out)
	}
}

func TestCustomHandlerHonoursCancelledContext(t *testing.T) {
	h := NewCustomHandler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Invoke(ctx, "in", testParams(), func(int) {}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestBuildRegistryCoversAllStepTypes(t *testing.T) {
	cfg := &config.Config{}
	r := BuildRegistry(cfg, nil, nil, nil)

	for _, st := range model.ValidStepTypes {
		if !r.Has(st) {
			t.Errorf("no handler registered for %s", st)
		}
	}
}
