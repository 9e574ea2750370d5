package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sahilchouksey/exam-parser/api"
	"github.com/sahilchouksey/exam-parser/config"
	"github.com/sahilchouksey/exam-parser/database"
	"github.com/sahilchouksey/exam-parser/handlers"
	exam_handlers "github.com/sahilchouksey/exam-parser/handlers/exam"
	"github.com/sahilchouksey/exam-parser/router"
	"github.com/sahilchouksey/exam-parser/services"
	"github.com/sahilchouksey/exam-parser/services/artifacts"
	"github.com/sahilchouksey/exam-parser/services/cron"
	"github.com/sahilchouksey/exam-parser/services/examparser"
	"github.com/sahilchouksey/exam-parser/services/llm"
	"github.com/sahilchouksey/exam-parser/utils/cache"
	"github.com/sahilchouksey/exam-parser/utils/middleware"
)

// NewCompleter builds the completion backend selected by LLM_PROVIDER
func NewCompleter(env *config.EnvironmentVariable) (llm.Completer, error) {
	keys := llm.NewKeyPool(env.APIKeys()...)
	if keys.Len() == 0 {
		return nil, llm.ErrNoAPIKeys
	}

	cfg := llm.InferenceConfig{
		Keys:    keys,
		BaseURL: env.LLM_BASE_URL,
		Timeout: time.Duration(env.LLM_TIMEOUT_SECONDS) * time.Second,
		Model:   env.LLM_MODEL,
		Limiter: llm.NewRateLimiter(llm.RateLimiterConfig{
			Burst:     env.PARSER_MAX_CONCURRENT,
			PerSecond: float64(env.LLM_REQUESTS_PER_SECOND),
		}),
	}

	if env.LLM_PROVIDER == "openai" {
		return llm.NewOpenAIClient(cfg), nil
	}
	return llm.NewInferenceClient(cfg), nil
}

// NewArtifactStore builds the storage backend selected by STORAGE_DRIVER
func NewArtifactStore(env *config.EnvironmentVariable) (artifacts.Store, error) {
	if env.STORAGE_DRIVER == "spaces" {
		return artifacts.NewSpacesStore(artifacts.SpacesConfig{
			AccessKey: env.DO_SPACES_ACCESS_KEY,
			SecretKey: env.DO_SPACES_SECRET_KEY,
			Bucket:    env.DO_SPACES_BUCKET,
			Region:    env.DO_SPACES_REGION,
			Endpoint:  env.DO_SPACES_ENDPOINT,
		})
	}
	return artifacts.NewLocalStore(env.STORAGE_DIR)
}

// ParserConfig maps PARSER_* settings onto the pipeline config
func ParserConfig(env *config.EnvironmentVariable) examparser.Config {
	cfg := examparser.DefaultConfig()
	cfg.SinglePassMaxChars = env.PARSER_SINGLE_PASS_MAX_CHARS
	cfg.QuestionsPerWorker = env.PARSER_QUESTIONS_PER_WORKER
	cfg.MaxConcurrent = env.PARSER_MAX_CONCURRENT
	cfg.FallbackWindowChars = env.PARSER_FALLBACK_WINDOW_CHARS
	cfg.FallbackOverlapChars = env.PARSER_FALLBACK_OVERLAP_CHARS
	cfg.MarkerSimilarity = env.PARSER_MARKER_SIMILARITY
	if timeout := time.Duration(env.LLM_TIMEOUT_SECONDS) * time.Second; timeout > 0 {
		cfg.WorkerTimeout = timeout
	}
	return cfg
}

// NewOCRClient returns nil when no OCR service is configured
func NewOCRClient(env *config.EnvironmentVariable) *services.OCRClient {
	if env.OCR_SERVICE_URL == "" {
		return nil
	}
	return services.NewOCRClient(env.OCR_SERVICE_URL, llm.NewKeyPool(env.OCRKeys()...))
}

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	// Initialize GORM database connection
	store, err := database.StartGORM(getEnv)
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("Connection settings come from DB_HOST, DB_PORT, DB_USER_NAME, DB_PASSWORD and DB_NAME\n")
		return err
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	completer, err := NewCompleter(getEnv)
	if err != nil {
		return fmt.Errorf("failed to configure completion backend: %w", err)
	}

	artifactStore, err := NewArtifactStore(getEnv)
	if err != nil {
		return fmt.Errorf("failed to configure artifact storage: %w", err)
	}

	// Redis is optional; without it there is no live progress or cross-process lock
	var tracker *services.ProgressTracker
	var redisCache *cache.RedisCache
	if getEnv.REDIS_URL != "" {
		redisCache, err = cache.NewRedisCache(getEnv.REDIS_URL, "examparser:")
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v. Progress tracking will be disabled.", err)
		} else {
			defer redisCache.Close()
			tracker = services.NewProgressTracker(redisCache)
		}
	}

	parser := examparser.NewParser(completer, artifactStore, ParserConfig(getEnv))
	ocrClient := NewOCRClient(getEnv)
	examService := services.NewExamService(store.GetDB(), parser, artifactStore, ocrClient, tracker)
	examService.MaxPDFPages = getEnv.MAX_PDF_PAGES

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if getEnv.CRON_ENABLED {
		cronManager = cron.NewCronManager(store.GetDB(), artifactStore, examService)
		if err := cronManager.Start(); err != nil {
			print("Warning: Failed to start cron jobs\n")
			print("Error: ", err.Error(), "\n")
			cronManager = nil
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT), getEnv.MAX_UPLOAD_BYTES+1024*1024)
	app := server.GetEngine()

	// Attach Middleware
	security := middleware.DefaultSecurityConfig()
	security.AllowedOrigins = getEnv.CORS_ALLOWED_ORIGINS
	security.RateLimitRequests = getEnv.RATE_LIMIT_REQUESTS
	middleware.SetupSecurity(app, security)

	checks := map[string]handlers.HealthCheck{
		"database": store.HealthCheck,
	}
	if redisCache != nil {
		checks["redis"] = redisCache.Ping
	}
	if ocrClient.Enabled() {
		checks["ocr"] = ocrClient.HealthCheck
	}

	router.SetupRoutes(app,
		exam_handlers.NewExamHandler(examService, int64(getEnv.MAX_UPLOAD_BYTES)),
		handlers.NewHealthHandler(checks),
	)

	// Stop accepting requests on SIGINT/SIGTERM, then let background runs finish
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down API Server")
		if err := server.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	runErr := server.Run()

	if cronManager != nil {
		cronManager.Stop()
	}
	log.Println("Waiting for in-flight extraction runs")
	examService.Wait()

	return runErr
}
