package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"

	"github.com/plaicube/video-pipeline/internal/client"
	"github.com/plaicube/video-pipeline/internal/config"
	"github.com/plaicube/video-pipeline/internal/handler"
	"github.com/plaicube/video-pipeline/internal/model"
	"github.com/plaicube/video-pipeline/internal/pipeline"
	"github.com/plaicube/video-pipeline/internal/service"
	"github.com/plaicube/video-pipeline/internal/steps"
	ws "github.com/plaicube/video-pipeline/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	runwayClient := client.NewRunwayClient(&cfg.Runway)
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)

	// Initialize R2 client (optional - continues if not configured)
	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	// Initialize pipeline core
	store := pipeline.NewStore()
	events := pipeline.CombineEvents(pipeline.LogEvents{}, ws.NewEventSink(hub))
	runtime := pipeline.NewRuntime(store, events, stepTimeouts(cfg.Steps))
	registry := steps.BuildRegistry(cfg, runwayClient, openaiClient, r2Client)
	scheduler := pipeline.NewScheduler(store, registry, runtime, events)

	// Initialize service and handlers
	pipelineService := service.NewPipelineService(store, scheduler, registry)
	pipelineHandler := handler.NewPipelineHandler(pipelineService, validate)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    5 * 1024 * 1024, // 5MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"runway": runwayClient.IsConfigured(),
				"openai": openaiClient.IsConfigured(),
				"r2":     r2Client != nil,
				"ffmpeg": cfg.FFmpeg.Enabled,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	// Submission and legacy per-video lookup
	api.Post("/video/transform", pipelineHandler.Transform)
	api.Get("/video/:videoId/status", pipelineHandler.VideoStatus)

	// Pipeline routes
	api.Get("/pipelines", pipelineHandler.List)
	api.Get("/pipeline/:pipelineId/status", pipelineHandler.Status)
	api.Get("/pipeline/:pipelineId/steps", pipelineHandler.Steps)
	api.Post("/pipeline/:pipelineId/cancel", pipelineHandler.Cancel)
	api.Delete("/pipeline/:pipelineId", pipelineHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/pipelines/:pipelineId", websocket.New(func(c *websocket.Conn) {
		pipelineID := c.Params("pipelineId")
		if _, err := uuid.Parse(pipelineID); err != nil {
			c.Close()
			return
		}
		hub.HandleConnection(c, pipelineID)
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := scheduler.Shutdown(ctx); err != nil {
			log.Printf("Scheduler shutdown error: %v", err)
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// stepTimeouts maps the configured per-step bounds onto a timeout policy.
func stepTimeouts(cfg config.StepsConfig) pipeline.TimeoutPolicy {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return func(t model.StepType) time.Duration {
		switch t {
		case model.StepTypeRunwayVideo:
			return seconds(cfg.RunwayTimeout)
		case model.StepTypeFFmpeg:
			return seconds(cfg.FFmpegTimeout)
		case model.StepTypeWhisper:
			return seconds(cfg.WhisperTimeout)
		case model.StepTypeGPT4:
			return seconds(cfg.AnalysisTimeout)
		case model.StepTypeCustom:
			return seconds(cfg.CustomTimeout)
		default:
			return pipeline.DefaultStepTimeout
		}
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
