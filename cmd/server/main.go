package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/adimov-eth/transcribe/internal/cleanup"
	"github.com/adimov-eth/transcribe/internal/handlers"
	"github.com/adimov-eth/transcribe/internal/middleware"
	"github.com/adimov-eth/transcribe/internal/progress"
	"github.com/adimov-eth/transcribe/internal/queue"
	"github.com/adimov-eth/transcribe/internal/storage"
	"github.com/adimov-eth/transcribe/internal/transcription"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Whisper struct {
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"whisper"`

	Audio struct {
		MaxFileSizeMB        int      `yaml:"max_file_size_mb"`
		ChunkDurationSeconds int      `yaml:"chunk_duration_seconds"`
		SupportedFormats     []string `yaml:"supported_formats"`
	} `yaml:"audio"`

	Workers struct {
		Count                 int  `yaml:"count"`
		RetryValidationErrors bool `yaml:"retry_validation_errors"`
	} `yaml:"workers"`

	Storage struct {
		WorkDir         string `yaml:"work_dir"`
		Database        string `yaml:"database"`
		MaxUploadSizeMB int    `yaml:"max_upload_size_mb"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`
}

func main() {
	// .env is optional; real deployments export the variables directly
	_ = godotenv.Load()

	config, err := loadConfig("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		log.Fatalf("CONFIG_ERROR: OPENAI_API_KEY environment variable is required")
	}

	log.Println("Initializing components...")

	// Storage manager and working directory
	storageManager := storage.NewManager(
		config.Storage.WorkDir,
		int64(config.Storage.MaxUploadSizeMB)*1024*1024,
	)
	if err := storageManager.EnsureDir(); err != nil {
		log.Fatalf("Failed to prepare working directory: %v", err)
	}

	// Transcription engine
	probe := transcription.NewMediaProbe()
	chunker := transcription.NewChunker(float64(config.Audio.ChunkDurationSeconds), probe)
	whisper, err := transcription.NewWhisperClient(apiKey, config.Whisper.Model)
	if err != nil {
		log.Fatalf("Failed to initialize recognition client: %v", err)
	}
	engine := transcription.NewEngine(whisper, chunker, probe, transcription.EngineConfig{
		MaxFileSize:      int64(config.Audio.MaxFileSizeMB) * 1024 * 1024,
		SupportedFormats: config.Audio.SupportedFormats,
		Language:         config.Whisper.Language,
	})

	// Durable job store
	store, err := queue.NewStore(config.Storage.Database, queue.DefaultStoreConfig())
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer store.Close()

	// Progress fan-out
	bus := progress.NewBus()

	// Worker pool
	workerConfig := queue.DefaultWorkerConfig()
	workerConfig.Concurrency = config.Workers.Count
	workerConfig.RetryValidationErrors = config.Workers.RetryValidationErrors
	workerPool := queue.NewWorkerPool(store, engine, bus, storageManager, workerConfig)
	workerPool.Start()
	defer workerPool.Stop()

	// Cleanup scheduler
	cleanupScheduler := cleanup.NewScheduler(
		storageManager,
		time.Duration(config.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(config.Cleanup.MaxAgeHours)*time.Hour,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: config.Storage.MaxUploadSizeMB * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	submissionLimiter := middleware.NewRateLimiter(10, 15*time.Minute)
	defer submissionLimiter.Stop()
	statusLimiter := middleware.NewRateLimiter(60, time.Minute)
	defer statusLimiter.Stop()

	// Initialize handlers
	transcribeHandler := handlers.NewTranscribeHandler(store, storageManager, config.Audio.SupportedFormats)
	jobsHandler := handlers.NewJobsHandler(store)
	progressHandler := handlers.NewProgressHandler(bus)

	// Routes
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	app.Post("/transcribe/file", submissionLimiter.Handler(), transcribeHandler.HandleFile)
	app.Post("/transcribe/url", submissionLimiter.Handler(), transcribeHandler.HandleURL)

	app.Get("/jobs", statusLimiter.Handler(), jobsHandler.HandleList)
	app.Get("/jobs/:id", statusLimiter.Handler(), jobsHandler.HandleStatus)
	app.Get("/jobs/:id/result", statusLimiter.Handler(), jobsHandler.HandleResult)
	app.Delete("/jobs/:id", statusLimiter.Handler(), jobsHandler.HandleDelete)

	// WebSocket route
	app.Get("/ws/progress", websocket.New(progressHandler.Handle))

	// Start server
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	log.Printf("Server starting on %s", addr)
	log.Println("Endpoints:")
	log.Println("   POST   /transcribe/file   - Upload media file")
	log.Println("   POST   /transcribe/url    - Transcribe remote media")
	log.Println("   GET    /jobs              - List active/waiting jobs")
	log.Println("   GET    /jobs/:id          - Job status")
	log.Println("   GET    /jobs/:id/result   - Job result")
	log.Println("   DELETE /jobs/:id          - Cancel job")
	log.Println("   GET    /ws/progress       - WebSocket progress events")
	log.Println("   GET    /health            - Health check")

	// Graceful shutdown
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Println("Shutting down gracefully...")
		app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration from YAML file
func loadConfig(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	return &config, nil
}
