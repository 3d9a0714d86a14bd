package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
	"github.com/plaicube/video-pipeline/internal/service"
	"github.com/plaicube/video-pipeline/pkg/response"
)

type PipelineHandler struct {
	service   *service.PipelineService
	validator *validator.Validate
}

func NewPipelineHandler(svc *service.PipelineService, v *validator.Validate) *PipelineHandler {
	return &PipelineHandler{
		service:   svc,
		validator: v,
	}
}

// Transform handles POST /api/video/transform
func (h *PipelineHandler) Transform(c *fiber.Ctx) error {
	var req model.TransformRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(&req)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/pipeline/:pipelineId/status
func (h *PipelineHandler) Status(c *fiber.Ctx) error {
	id, err := pipelineParam(c)
	if err != nil {
		return response.ValidationError(c, "Invalid pipeline ID", nil)
	}

	result, err := h.service.GetStatus(id)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// List handles GET /api/pipelines
func (h *PipelineHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.service.List())
}

// Steps handles GET /api/pipeline/:pipelineId/steps
func (h *PipelineHandler) Steps(c *fiber.Ctx) error {
	id, err := pipelineParam(c)
	if err != nil {
		return response.ValidationError(c, "Invalid pipeline ID", nil)
	}

	result, err := h.service.ListSteps(id)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/pipeline/:pipelineId/cancel
func (h *PipelineHandler) Cancel(c *fiber.Ctx) error {
	id, err := pipelineParam(c)
	if err != nil {
		return response.ValidationError(c, "Invalid pipeline ID", nil)
	}

	result, err := h.service.Cancel(id)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

// Delete handles DELETE /api/pipeline/:pipelineId
func (h *PipelineHandler) Delete(c *fiber.Ctx) error {
	id, err := pipelineParam(c)
	if err != nil {
		return response.ValidationError(c, "Invalid pipeline ID", nil)
	}

	if err := h.service.Delete(id); err != nil {
		return mapServiceError(c, err)
	}

	return response.NoContent(c)
}

// VideoStatus handles GET /api/video/:videoId/status
func (h *PipelineHandler) VideoStatus(c *fiber.Ctx) error {
	videoID := c.Params("videoId")
	if _, err := uuid.Parse(videoID); err != nil {
		return response.ValidationError(c, "Invalid video ID", nil)
	}

	result, err := h.service.VideoStatus(videoID)
	if err != nil {
		return mapServiceError(c, err)
	}

	return response.OK(c, result)
}

func pipelineParam(c *fiber.Ctx) (string, error) {
	id := c.Params("pipelineId")
	if _, err := uuid.Parse(id); err != nil {
		return "", err
	}
	return id, nil
}

func mapServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return response.NotFound(c, "Pipeline not found")
	case errors.Is(err, pipeline.ErrInvalidState):
		return response.InvalidState(c, err.Error())
	case errors.Is(err, pipeline.ErrValidation):
		return response.ValidationError(c, err.Error(), nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
