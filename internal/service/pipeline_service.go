package service

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
)

// PipelineService is the single entry point callers use to submit, inspect,
// cancel and delete pipelines. It owns record construction and dedupe; the
// scheduler owns execution.
type PipelineService struct {
	store     *pipeline.Store
	scheduler *pipeline.Scheduler
	registry  *pipeline.Registry
}

func NewPipelineService(store *pipeline.Store, scheduler *pipeline.Scheduler, registry *pipeline.Registry) *PipelineService {
	return &PipelineService{
		store:     store,
		scheduler: scheduler,
		registry:  registry,
	}
}

// Submit creates a pipeline for the video and starts it. A video that
// already has a pipeline is not resubmitted; the existing record is
// acknowledged instead, even when two submissions race.
func (s *PipelineService) Submit(req *model.TransformRequest) (*model.TransformResponse, error) {
	steps, err := s.buildSteps(req)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &model.Pipeline{
		ID:               uuid.New().String(),
		VideoID:          req.VideoID,
		VideoURL:         req.VideoURL,
		Prompt:           req.Prompt,
		Status:           model.PipelineStatusPending,
		Steps:            steps,
		CurrentStepIndex: -1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	existing, err := s.store.CreateForVideo(p)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Printf("Pipeline %s already exists for video %s (status %s)", existing.ID, req.VideoID, existing.Status)
		return &model.TransformResponse{
			VideoID:        existing.VideoID,
			PipelineID:     existing.ID,
			Status:         existing.Status,
			Message:        fmt.Sprintf("Pipeline already exists with status: %s", existing.Status),
			TotalSteps:     len(existing.Steps),
			CompletedSteps: existing.CompletedSteps(),
			CreatedAt:      existing.CreatedAt,
			UpdatedAt:      existing.UpdatedAt,
		}, nil
	}

	if err := s.scheduler.Start(p.ID); err != nil {
		return nil, err
	}

	log.Printf("Pipeline %s submitted for video %s (%d steps)", p.ID, p.VideoID, len(p.Steps))
	return &model.TransformResponse{
		VideoID:        p.VideoID,
		PipelineID:     p.ID,
		Status:         p.Status,
		Message:        "Video transformation pipeline started",
		TotalSteps:     len(p.Steps),
		CompletedSteps: 0,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

// buildSteps expands the submission config into the ordered step list. All
// standard steps are recorded even when disabled so the pipeline shape stays
// stable; disabled steps are marked skipped up front.
func (s *PipelineService) buildSteps(req *model.TransformRequest) ([]model.Step, error) {
	cfg := req.PipelineConfig

	type stepSpec struct {
		typ     model.StepType
		enabled bool
		params  map[string]any
	}
	specs := []stepSpec{
		{typ: model.StepTypeRunwayVideo, enabled: cfg.RunwayEnabled()},
	}
	if cfg != nil {
		specs = append(specs,
			stepSpec{typ: model.StepTypeFFmpeg, enabled: cfg.EnableFFmpeg},
			stepSpec{typ: model.StepTypeWhisper, enabled: cfg.EnableWhisper},
			stepSpec{typ: model.StepTypeGPT4, enabled: cfg.EnableGPT4},
		)
		for _, cs := range cfg.CustomSteps {
			params := make(map[string]any, len(cs))
			for k, v := range cs {
				params[k] = v
			}
			specs = append(specs, stepSpec{typ: model.StepTypeCustom, enabled: true, params: params})
		}
	} else {
		specs = append(specs,
			stepSpec{typ: model.StepTypeFFmpeg},
			stepSpec{typ: model.StepTypeWhisper},
			stepSpec{typ: model.StepTypeGPT4},
		)
	}

	steps := make([]model.Step, 0, len(specs))
	for i, spec := range specs {
		if !s.registry.Has(spec.typ) {
			return nil, fmt.Errorf("unsupported step type %q (supported: %v): %w", spec.typ, s.registry.Types(), pipeline.ErrValidation)
		}
		status := model.StepStatusPending
		if !spec.enabled {
			status = model.StepStatusSkipped
		}
		steps = append(steps, model.Step{
			ID:      uuid.New().String(),
			Type:    spec.typ,
			Status:  status,
			Enabled: spec.enabled,
			Order:   i,
			Params:  spec.params,
		})
	}
	return steps, nil
}

// GetStatus returns the full snapshot for a pipeline.
func (s *PipelineService) GetStatus(id string) (*model.StatusResponse, error) {
	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return statusResponse(p), nil
}

// List returns summaries of all pipelines, newest first.
func (s *PipelineService) List() *model.ListResponse {
	pipelines := s.store.List()
	summaries := make([]model.PipelineSummary, 0, len(pipelines))
	for _, p := range pipelines {
		summaries = append(summaries, model.PipelineSummary{
			PipelineID:     p.ID,
			VideoID:        p.VideoID,
			Status:         p.Status,
			TotalSteps:     len(p.Steps),
			CompletedSteps: p.CompletedSteps(),
			CreatedAt:      p.CreatedAt,
			UpdatedAt:      p.UpdatedAt,
			CompletedAt:    p.CompletedAt,
		})
	}
	return &model.ListResponse{Pipelines: summaries, Total: len(summaries)}
}

// ListSteps returns the step list for a pipeline.
func (s *PipelineService) ListSteps(id string) (*model.StepsResponse, error) {
	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return &model.StepsResponse{PipelineID: p.ID, Steps: p.Steps}, nil
}

// Cancel requests cancellation of a live pipeline. The returned status is a
// snapshot; the terminal transition may still be settling.
func (s *PipelineService) Cancel(id string) (*model.CancelResponse, error) {
	if err := s.scheduler.Cancel(id); err != nil {
		return nil, err
	}
	p, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	log.Printf("Pipeline %s cancellation requested", id)
	return &model.CancelResponse{Success: true, PipelineID: p.ID, Status: p.Status}, nil
}

// Delete removes a terminal pipeline's record. Live pipelines must be
// cancelled first.
func (s *PipelineService) Delete(id string) error {
	p, err := s.store.Get(id)
	if err != nil {
		return err
	}
	if !p.Terminal() {
		return fmt.Errorf("pipeline %s is %s: %w", id, p.Status, pipeline.ErrInvalidState)
	}
	if !s.store.Delete(id) {
		return pipeline.ErrNotFound
	}
	log.Printf("Pipeline %s deleted", id)
	return nil
}

// VideoStatus looks up a pipeline by the video it was submitted for.
func (s *PipelineService) VideoStatus(videoID string) (*model.StatusResponse, error) {
	p := s.store.FindByVideo(videoID)
	if p == nil {
		return nil, pipeline.ErrNotFound
	}
	return statusResponse(p), nil
}

func statusResponse(p *model.Pipeline) *model.StatusResponse {
	return &model.StatusResponse{
		PipelineID:       p.ID,
		VideoID:          p.VideoID,
		Status:           p.Status,
		Message:          statusMessage(p.Status),
		Steps:            p.Steps,
		TotalSteps:       len(p.Steps),
		CompletedSteps:   p.CompletedSteps(),
		CurrentStepIndex: p.CurrentStepIndex,
		Result:           p.Result,
		Error:            p.Error,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
		CompletedAt:      p.CompletedAt,
	}
}

func statusMessage(status model.PipelineStatus) string {
	switch status {
	case model.PipelineStatusPending:
		return "Pipeline is queued"
	case model.PipelineStatusRunning:
		return "Pipeline is processing"
	case model.PipelineStatusCompleted:
		return "Pipeline completed successfully"
	case model.PipelineStatusFailed:
		return "Pipeline failed"
	case model.PipelineStatusCancelled:
		return "Pipeline was cancelled"
	default:
		return string(status)
	}
}
