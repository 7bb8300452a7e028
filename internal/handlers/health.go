package handlers

import (
	"context"
	"time"

	"github.com/dastankg/orimi-merchen/internal/provenance"
	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether the session store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	Version string
	store   Pinger
	tools   map[string]string
}

// NewHealthHandler creates a new health handler. tools maps tool names to the
// configured binaries of the photo pipeline.
func NewHealthHandler(version string, store Pinger, tools map[string]string) *HealthHandler {
	return &HealthHandler{
		Version: version,
		store:   store,
		tools:   tools,
	}
}

// Check returns the health status of the service. A missing external tool
// degrades the status but does not fail the check.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "OK"
	storeStatus := "OK"
	if err := h.store.Ping(ctx); err != nil {
		status, storeStatus = "unavailable", err.Error()
	}

	tools := provenance.CheckTools(h.tools)
	for _, t := range tools {
		if !t.Available && status == "OK" {
			status = "degraded"
		}
	}

	code := fiber.StatusOK
	if status == "unavailable" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":  status,
		"service": "Orimi merchandising bot",
		"version": h.Version,
		"store":   storeStatus,
		"tools":   tools,
	})
}
