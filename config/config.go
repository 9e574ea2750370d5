package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

type EnvironmentVariable struct {
	GO_ENV string `validate:"omitempty,oneof=development production test"`
	PORT   int    `validate:"min=1,max=65535"`

	// Database Configuration
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string

	// Redis Configuration
	REDIS_URL string

	// LLM Configuration
	LLM_PROVIDER            string `validate:"oneof=inference openai"`
	LLM_BASE_URL            string `validate:"omitempty,url"`
	LLM_API_KEYS            string
	LLM_MODEL               string `validate:"required"`
	LLM_TIMEOUT_SECONDS     int    `validate:"min=1"`
	LLM_REQUESTS_PER_SECOND int    `validate:"min=1"`

	// OCR Configuration
	OCR_SERVICE_URL  string `validate:"omitempty,url"`
	OCR_SERVICE_KEYS string

	// Storage Configuration
	STORAGE_DRIVER       string `validate:"oneof=local spaces"`
	STORAGE_DIR          string `validate:"required_if=STORAGE_DRIVER local"`
	DO_SPACES_ACCESS_KEY string `validate:"required_if=STORAGE_DRIVER spaces"`
	DO_SPACES_SECRET_KEY string `validate:"required_if=STORAGE_DRIVER spaces"`
	DO_SPACES_BUCKET     string `validate:"required_if=STORAGE_DRIVER spaces"`
	DO_SPACES_REGION     string `validate:"required_if=STORAGE_DRIVER spaces"`
	DO_SPACES_ENDPOINT   string

	// Parser Configuration
	PARSER_SINGLE_PASS_MAX_CHARS  int     `validate:"min=0"`
	PARSER_QUESTIONS_PER_WORKER   int     `validate:"min=0"`
	PARSER_MAX_CONCURRENT         int     `validate:"min=0,max=50"`
	PARSER_FALLBACK_WINDOW_CHARS  int     `validate:"min=0"`
	PARSER_FALLBACK_OVERLAP_CHARS int     `validate:"min=0"`
	PARSER_MARKER_SIMILARITY      float64 `validate:"min=0,max=1"`

	MAX_UPLOAD_BYTES int `validate:"min=1"`
	MAX_PDF_PAGES    int `validate:"min=0"`
	CRON_ENABLED     bool

	// HTTP Security
	CORS_ALLOWED_ORIGINS string
	RATE_LIMIT_REQUESTS  int `validate:"min=0"`
}

var validate = validator.New()

func Get() (*EnvironmentVariable, error) {
	// Database defaults
	dbHost := getString("DB_HOST", "localhost")
	dbPort := getString("DB_PORT", "5432")

	envVariables := &EnvironmentVariable{
		GO_ENV: os.Getenv("GO_ENV"),
		PORT:   getInt("PORT", 8080),
		// Database
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  getString("DB_SSL_MODE", "disable"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// LLM
		LLM_PROVIDER:            strings.ToLower(getString("LLM_PROVIDER", "inference")),
		LLM_BASE_URL:            os.Getenv("LLM_BASE_URL"),
		LLM_API_KEYS:            os.Getenv("LLM_API_KEYS"),
		LLM_MODEL:               getString("LLM_MODEL", "gpt-4o-mini"),
		LLM_TIMEOUT_SECONDS:     getInt("LLM_TIMEOUT_SECONDS", 180),
		LLM_REQUESTS_PER_SECOND: getInt("LLM_REQUESTS_PER_SECOND", 2),
		// OCR
		OCR_SERVICE_URL:  os.Getenv("OCR_SERVICE_URL"),
		OCR_SERVICE_KEYS: os.Getenv("OCR_SERVICE_KEYS"),
		// Storage
		STORAGE_DRIVER:       strings.ToLower(getString("STORAGE_DRIVER", "local")),
		STORAGE_DIR:          getString("STORAGE_DIR", "./data"),
		DO_SPACES_ACCESS_KEY: os.Getenv("DO_SPACES_ACCESS_KEY"),
		DO_SPACES_SECRET_KEY: os.Getenv("DO_SPACES_SECRET_KEY"),
		DO_SPACES_BUCKET:     os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:     os.Getenv("DO_SPACES_REGION"),
		DO_SPACES_ENDPOINT:   os.Getenv("DO_SPACES_ENDPOINT"),
		// Parser (zero means the parser default)
		PARSER_SINGLE_PASS_MAX_CHARS:  getInt("PARSER_SINGLE_PASS_MAX_CHARS", 15000),
		PARSER_QUESTIONS_PER_WORKER:   getInt("PARSER_QUESTIONS_PER_WORKER", 20),
		PARSER_MAX_CONCURRENT:         getInt("PARSER_MAX_CONCURRENT", 5),
		PARSER_FALLBACK_WINDOW_CHARS:  getInt("PARSER_FALLBACK_WINDOW_CHARS", 10000),
		PARSER_FALLBACK_OVERLAP_CHARS: getInt("PARSER_FALLBACK_OVERLAP_CHARS", 1500),
		PARSER_MARKER_SIMILARITY:      getFloat("PARSER_MARKER_SIMILARITY", 0.8),

		MAX_UPLOAD_BYTES: getInt("MAX_UPLOAD_BYTES", 50*1024*1024),
		MAX_PDF_PAGES:    getInt("MAX_PDF_PAGES", 50),
		CRON_ENABLED:     getBool("CRON_ENABLED", true),
		// HTTP Security
		CORS_ALLOWED_ORIGINS: getString("CORS_ALLOWED_ORIGINS", "*"),
		RATE_LIMIT_REQUESTS:  getInt("RATE_LIMIT_REQUESTS", 60),
	}

	if err := validate.Struct(envVariables); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return envVariables, nil
}

// APIKeys returns the configured LLM keys
func (e *EnvironmentVariable) APIKeys() []string {
	return splitList(e.LLM_API_KEYS)
}

// OCRKeys returns the configured OCR service keys
func (e *EnvironmentVariable) OCRKeys() []string {
	return splitList(e.OCR_SERVICE_KEYS)
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
