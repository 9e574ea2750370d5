package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHealth(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	down := func(ctx context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name   string
		checks map[string]HealthCheck
		want   int
	}{
		{"all healthy", map[string]HealthCheck{"database": ok, "redis": ok}, fiber.StatusOK},
		{"redis down", map[string]HealthCheck{"database": ok, "redis": down}, fiber.StatusServiceUnavailable},
		{"nil checks skipped", map[string]HealthCheck{"database": ok, "redis": nil}, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			h := NewHealthHandler(tt.checks)
			app.Get("/health", h.Health)
			app.Get("/ping", h.Ping)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}

			resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
			if resp.StatusCode != fiber.StatusOK {
				t.Errorf("ping status = %d", resp.StatusCode)
			}
		})
	}
}
