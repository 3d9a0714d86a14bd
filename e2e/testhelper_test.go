package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/plaicube/video-pipeline/internal/client"
	"github.com/plaicube/video-pipeline/internal/config"
	"github.com/plaicube/video-pipeline/internal/handler"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
	"github.com/plaicube/video-pipeline/internal/service"
	"github.com/plaicube/video-pipeline/internal/steps"
)

// testApp holds all components needed for testing
type testApp struct {
	app       *fiber.App
	scheduler *pipeline.Scheduler
}

// setupApp creates a Fiber app identical to main.go but with unconfigured
// external clients, so every step handler takes its mock fallback path.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	cfg := &config.Config{
		Steps: config.StepsConfig{
			RunwayTimeout:   5,
			FFmpegTimeout:   5,
			WhisperTimeout:  5,
			AnalysisTimeout: 5,
			CustomTimeout:   5,
			PollInterval:    1,
		},
	}

	validate := validator.New()

	// External clients — no API keys → mock fallbacks
	runwayClient := client.NewRunwayClient(&config.RunwayConfig{})
	openaiClient := client.NewOpenAIClient(&config.OpenAIConfig{})

	store := pipeline.NewStore()
	runtime := pipeline.NewRuntime(store, nil, nil)
	registry := steps.BuildRegistry(cfg, runwayClient, openaiClient, nil)
	scheduler := pipeline.NewScheduler(store, registry, runtime, nil)

	pipelineService := service.NewPipelineService(store, scheduler, registry)
	pipelineHandler := handler.NewPipelineHandler(pipelineService, validate)

	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"runway": false,
				"openai": false,
				"r2":     false,
				"ffmpeg": false,
			},
		})
	})

	api := app.Group("/api")
	api.Post("/video/transform", pipelineHandler.Transform)
	api.Get("/video/:videoId/status", pipelineHandler.VideoStatus)
	api.Get("/pipelines", pipelineHandler.List)
	api.Get("/pipeline/:pipelineId/status", pipelineHandler.Status)
	api.Get("/pipeline/:pipelineId/steps", pipelineHandler.Steps)
	api.Post("/pipeline/:pipelineId/cancel", pipelineHandler.Cancel)
	api.Delete("/pipeline/:pipelineId", pipelineHandler.Delete)

	return &testApp{app: app, scheduler: scheduler}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// waitForTerminal polls the status endpoint until the pipeline settles.
func waitForTerminal(t *testing.T, ta *testApp, pipelineID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doRequest(ta.app, "GET", "/api/pipeline/"+pipelineID+"/status", "")
		if err != nil {
			t.Fatalf("status request: %v", err)
		}
		body := parseJSON(t, resp)
		status, _ := body["status"].(string)
		if model.PipelineStatus(status).Terminal() {
			return body
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("pipeline never reached a terminal state")
	return nil
}
