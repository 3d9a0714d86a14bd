package e2e

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func transformBody(videoID string) string {
	return fmt.Sprintf(`{
		"videoId": %q,
		"videoUrl": "https://videos.example.com/input.mp4",
		"prompt": "make it look like a watercolor painting",
		"pipelineConfig": {
			"enableFfmpeg": true,
			"enableWhisper": true,
			"enableGpt4": true
		}
	}`, videoID)
}

func TestTransformLifecycle(t *testing.T) {
	ta := setupApp(t)

	videoID := uuid.New().String()
	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(videoID))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	assertStatus(t, resp, 202)

	body := parseJSON(t, resp)
	pipelineID, _ := body["pipelineId"].(string)
	if pipelineID == "" {
		t.Fatalf("no pipelineId in response: %v", body)
	}
	if body["totalSteps"].(float64) != 4 {
		t.Errorf("totalSteps = %v, want 4", body["totalSteps"])
	}

	final := waitForTerminal(t, ta, pipelineID)
	if final["status"] != "completed" {
		t.Fatalf("status = %v, want completed (error: %v)", final["status"], final["error"])
	}
	if final["result"] == nil || final["result"] == "" {
		t.Error("completed pipeline should carry a result")
	}
	if final["completedSteps"].(float64) != 4 {
		t.Errorf("completedSteps = %v, want 4", final["completedSteps"])
	}
}

func TestTransformValidation(t *testing.T) {
	ta := setupApp(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing videoId", `{"videoUrl": "https://v.example.com/a.mp4", "prompt": "x"}`},
		{"bad videoId", `{"videoId": "not-a-uuid", "videoUrl": "https://v.example.com/a.mp4", "prompt": "x"}`},
		{"bad url", `{"videoId": "` + uuid.New().String() + `", "videoUrl": "ftp://nope", "prompt": "x"}`},
		{"missing prompt", `{"videoId": "` + uuid.New().String() + `", "videoUrl": "https://v.example.com/a.mp4"}`},
		{"not json", `plainly not json`},
		{"unknown config key", `{"videoId": "` + uuid.New().String() + `", "videoUrl": "https://v.example.com/a.mp4", "prompt": "x", "pipelineConfig": {"enableFfmpeg": true, "notARealKey": true}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := doRequest(ta.app, "POST", "/api/video/transform", tc.body)
			if err != nil {
				t.Fatalf("transform: %v", err)
			}
			assertStatus(t, resp, 400)
			body := parseJSON(t, resp)
			errObj, _ := body["error"].(map[string]interface{})
			if errObj == nil || errObj["code"] != "VALIDATION_ERROR" {
				t.Errorf("error = %v, want VALIDATION_ERROR", body)
			}
		})
	}
}

func TestTransformDedupesByVideo(t *testing.T) {
	ta := setupApp(t)

	videoID := uuid.New().String()
	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(videoID))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	first := parseJSON(t, resp)

	resp, err = doRequest(ta.app, "POST", "/api/video/transform", transformBody(videoID))
	if err != nil {
		t.Fatalf("second transform: %v", err)
	}
	assertStatus(t, resp, 202)
	second := parseJSON(t, resp)

	if first["pipelineId"] != second["pipelineId"] {
		t.Errorf("resubmission created a new pipeline: %v vs %v", first["pipelineId"], second["pipelineId"])
	}
}

func TestPipelineStepsEndpoint(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(uuid.New().String()))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	body := parseJSON(t, resp)
	pipelineID := body["pipelineId"].(string)
	waitForTerminal(t, ta, pipelineID)

	resp, err = doRequest(ta.app, "GET", "/api/pipeline/"+pipelineID+"/steps", "")
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	assertStatus(t, resp, 200)

	stepsBody := parseJSON(t, resp)
	steps, _ := stepsBody["steps"].([]interface{})
	if len(steps) != 4 {
		t.Fatalf("steps = %d, want 4", len(steps))
	}
	for _, raw := range steps {
		step := raw.(map[string]interface{})
		if step["status"] != "completed" {
			t.Errorf("step %v status = %v, want completed", step["stepType"], step["status"])
		}
	}
}

func TestPipelineListEndpoint(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(uuid.New().String()))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	parseJSON(t, resp)

	resp, err = doRequest(ta.app, "GET", "/api/pipelines", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	assertStatus(t, resp, 200)

	body := parseJSON(t, resp)
	if body["total"].(float64) != 1 {
		t.Errorf("total = %v, want 1", body["total"])
	}
}

func TestPipelineNotFound(t *testing.T) {
	ta := setupApp(t)
	id := uuid.New().String()

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/pipeline/" + id + "/status"},
		{"GET", "/api/pipeline/" + id + "/steps"},
		{"POST", "/api/pipeline/" + id + "/cancel"},
		{"DELETE", "/api/pipeline/" + id},
	} {
		resp, err := doRequest(ta.app, tc.method, tc.path, "")
		if err != nil {
			t.Fatalf("%s %s: %v", tc.method, tc.path, err)
		}
		assertStatus(t, resp, 404)
	}
}

func TestPipelineBadIDRejected(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "GET", "/api/pipeline/not-a-uuid/status", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertStatus(t, resp, 400)
}

func TestCancelTerminalPipelineConflicts(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(uuid.New().String()))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	pipelineID := parseJSON(t, resp)["pipelineId"].(string)
	waitForTerminal(t, ta, pipelineID)

	resp, err = doRequest(ta.app, "POST", "/api/pipeline/"+pipelineID+"/cancel", "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	assertStatus(t, resp, 409)
	body := parseJSON(t, resp)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj == nil || errObj["code"] != "INVALID_STATE" {
		t.Errorf("error = %v, want INVALID_STATE", body)
	}
}

func TestDeleteLifecycle(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(uuid.New().String()))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	pipelineID := parseJSON(t, resp)["pipelineId"].(string)
	waitForTerminal(t, ta, pipelineID)

	resp, err = doRequest(ta.app, "DELETE", "/api/pipeline/"+pipelineID, "")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	assertStatus(t, resp, 204)

	resp, err = doRequest(ta.app, "GET", "/api/pipeline/"+pipelineID+"/status", "")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	assertStatus(t, resp, 404)
}

func TestLegacyVideoStatusEndpoint(t *testing.T) {
	ta := setupApp(t)

	videoID := uuid.New().String()
	resp, err := doRequest(ta.app, "POST", "/api/video/transform", transformBody(videoID))
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	pipelineID := parseJSON(t, resp)["pipelineId"].(string)
	waitForTerminal(t, ta, pipelineID)

	resp, err = doRequest(ta.app, "GET", "/api/video/"+videoID+"/status", "")
	if err != nil {
		t.Fatalf("video status: %v", err)
	}
	assertStatus(t, resp, 200)

	body := parseJSON(t, resp)
	if body["pipelineId"] != pipelineID {
		t.Errorf("pipelineId = %v, want %v", body["pipelineId"], pipelineID)
	}
	if body["videoId"] != videoID {
		t.Errorf("videoId = %v, want %v", body["videoId"], videoID)
	}
}
