package handlers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-parser/utils/response"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthHandler reports the state of the API's dependencies
type HealthHandler struct {
	checks map[string]HealthCheck
}

// NewHealthHandler creates a health handler; nil checks are skipped
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	h := &HealthHandler{checks: map[string]HealthCheck{}}
	for name, check := range checks {
		if check != nil {
			h.checks[name] = check
		}
	}
	return h
}

// Ping handles GET /ping
func (h *HealthHandler) Ping(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Health handles GET /api/v1/health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := fiber.Map{}
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(response.Response{
			Success: false,
			Data:    status,
			Error: &response.ErrorDetail{
				Code:    "SERVICE_UNAVAILABLE",
				Message: "One or more dependencies are unhealthy",
			},
		})
	}
	return response.Success(c, status)
}
