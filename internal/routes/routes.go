package routes

import (
	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/handlers"
	"github.com/dastankg/orimi-merchen/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handlers groups the HTTP handlers mounted by SetupRoutes.
type Handlers struct {
	WhatsApp *handlers.WhatsAppHandler
	Health   *handlers.HealthHandler
}

// SetupRoutes configures all routes
func SetupRoutes(app *fiber.App, cfg *config.Config, h Handlers, log *zap.Logger) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Orimi merchandising bot",
			"version": h.Health.Version,
			"endpoints": fiber.Map{
				"health":  "/health",
				"webhook": "/webhook/whatsapp",
			},
		})
	})

	app.Get("/health", h.Health.Check)

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")
	webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(cfg.Twilio, log), h.WhatsApp.HandleWebhook)

	// ========== TEST ROUTES (Development Only) ==========
	if cfg.IsDevelopment() {
		app.Post("/test/whatsapp", h.WhatsApp.HandleTestWebhook)
		log.Warn("test WhatsApp endpoint enabled", zap.String("path", "/test/whatsapp"))
	}
}
