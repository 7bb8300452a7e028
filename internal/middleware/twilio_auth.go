package middleware

import (
	"fmt"
	"strings"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/twilio/twilio-go/client"
	"go.uber.org/zap"
)

// ValidateTwilioSignature rejects webhook requests that Twilio did not sign.
// Validation is skipped when the config disables it.
func ValidateTwilioSignature(cfg config.TwilioConfig, log *zap.Logger) fiber.Handler {
	if !cfg.ValidateWebhook {
		log.Warn("WhatsApp webhook signature validation disabled")
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	validator := client.NewRequestValidator(cfg.AuthToken)

	return func(c *fiber.Ctx) error {
		signature := c.Get("X-Twilio-Signature")
		if signature == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing Twilio signature",
			})
		}
		if cfg.AuthToken == "" {
			log.Error("TWILIO_AUTH_TOKEN not set")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Server configuration error",
			})
		}

		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			params[string(key)] = string(value)
		})

		if !validator.Validate(fullURL(c, cfg.PublicURL), params, signature) {
			log.Warn("rejected webhook with invalid signature", zap.String("ip", c.IP()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid signature",
			})
		}
		return c.Next()
	}
}

// fullURL rebuilds the URL Twilio signed. Behind a proxy the public base URL wins.
func fullURL(c *fiber.Ctx, publicURL string) string {
	uri := string(c.Request().RequestURI())
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + uri
	}
	return fmt.Sprintf("%s://%s%s", c.Protocol(), c.Hostname(), uri)
}
