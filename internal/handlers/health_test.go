package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthStatus(t *testing.T, h *HealthHandler) (int, map[string]any) {
	t.Helper()
	app := fiber.New()
	app.Get("/health", h.Check)
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthOK(t *testing.T) {
	self, err := os.Executable()
	require.NoError(t, err)

	h := NewHealthHandler("test", pingFunc(func(context.Context) error { return nil }), map[string]string{"exiftool": self})
	code, body := healthStatus(t, h)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "OK", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestHealthDegradedWithoutTools(t *testing.T) {
	h := NewHealthHandler("test", pingFunc(func(context.Context) error { return nil }),
		map[string]string{"exiftool": "/nonexistent/exiftool"})
	code, body := healthStatus(t, h)
	assert.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestHealthStoreDown(t *testing.T) {
	h := NewHealthHandler("test", pingFunc(func(context.Context) error { return errors.New("connection refused") }), nil)
	code, body := healthStatus(t, h)
	assert.Equal(t, fiber.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body["status"])
	assert.Equal(t, "connection refused", body["store"])
}
