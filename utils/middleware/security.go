package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sahilchouksey/exam-parser/utils/response"
)

const accessLogFormat = "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${locals:requestid}\n"

// SecurityConfig tunes the middleware stack installed by SetupSecurity
type SecurityConfig struct {
	AllowedOrigins    string
	RateLimitRequests int // per client IP and window; 0 disables rate limiting
	RateLimitWindow   time.Duration
	// Paths with these prefixes are never rate limited
	UnlimitedPrefixes []string
}

// DefaultSecurityConfig allows any origin and 60 requests per minute.
// Liveness probes and progress streams are exempt from the limit.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		AllowedOrigins:    "*",
		RateLimitRequests: 60,
		RateLimitWindow:   time.Minute,
		UnlimitedPrefixes: []string{"/ping", "/api/v1/health"},
	}
}

// SetupSecurity installs request ids, access logging, panic recovery,
// secure headers, CORS and per-IP rate limiting, in that order
func SetupSecurity(app *fiber.App, config SecurityConfig) {
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     accessLogFormat,
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(helmet.New(helmet.Config{
		XFrameOptions:  "DENY",
		ReferrerPolicy: "no-referrer",
		HSTSMaxAge:     31536000,
	}))

	origins := config.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
		MaxAge:       86400,
	}))

	if config.RateLimitRequests > 0 {
		app.Use(rateLimiter(config))
	}
}

func rateLimiter(config SecurityConfig) fiber.Handler {
	window := config.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        config.RateLimitRequests,
		Expiration: window,
		Next: func(c *fiber.Ctx) bool {
			return exempt(c.Path(), config.UnlimitedPrefixes) || strings.HasSuffix(c.Path(), "/events")
		},
		LimitReached: func(c *fiber.Ctx) error {
			return response.Error(c, fiber.StatusTooManyRequests,
				"Too many requests, retry later", "RATE_LIMIT_EXCEEDED")
		},
	})
}

func exempt(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
