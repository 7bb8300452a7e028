package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dastankg/orimi-merchen/internal/logging"
	"github.com/dastankg/orimi-merchen/internal/services"
	"github.com/dastankg/orimi-merchen/internal/utils"
	"github.com/dastankg/orimi-merchen/internal/workflow"
	"github.com/gofiber/fiber/v2"
	fiberutils "github.com/gofiber/fiber/v2/utils"
	"go.uber.org/zap"
)

const (
	shareContactPayload = "share_contact"
	processTimeout      = 2 * time.Minute
	textProcessingError = "❌ Что-то пошло не так. Пожалуйста, попробуйте еще раз."
)

// Engine applies inbound events to agent sessions.
type Engine interface {
	Handle(ctx context.Context, ev workflow.Event) ([]workflow.Reply, error)
}

// CardFetcher downloads small attachments such as shared contact cards.
type CardFetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, string, error)
}

// WhatsAppHandler turns Twilio webhooks into workflow events.
type WhatsAppHandler struct {
	engine    Engine
	messenger services.Messenger
	cards     CardFetcher
	log       *zap.Logger

	// base is cancelled on shutdown; in-flight work is tracked by wg.
	base context.Context
	wg   sync.WaitGroup
}

// NewWhatsAppHandler creates a new WhatsApp handler. Webhook work runs under base.
func NewWhatsAppHandler(base context.Context, engine Engine, messenger services.Messenger, cards CardFetcher, log *zap.Logger) *WhatsAppHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if messenger == nil {
		messenger = services.LogMessenger{Log: log}
	}
	return &WhatsAppHandler{
		engine:    engine,
		messenger: messenger,
		cards:     cards,
		log:       log,
		base:      base,
	}
}

// TwilioWebhookPayload represents incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid        string `form:"MessageSid"`
	AccountSid        string `form:"AccountSid"`
	From              string `form:"From"` // whatsapp:+996700123456
	To                string `form:"To"`
	Body              string `form:"Body"`
	NumMedia          string `form:"NumMedia"`
	MediaUrl0         string `form:"MediaUrl0"`
	MediaContentType0 string `form:"MediaContentType0"`
	Latitude          string `form:"Latitude"`
	Longitude         string `form:"Longitude"`
	ButtonText        string `form:"ButtonText"`
	ButtonPayload     string `form:"ButtonPayload"`
}

// detach copies every field out of the request buffer.
func (p TwilioWebhookPayload) detach() TwilioWebhookPayload {
	return TwilioWebhookPayload{
		MessageSid:        fiberutils.CopyString(p.MessageSid),
		AccountSid:        fiberutils.CopyString(p.AccountSid),
		From:              fiberutils.CopyString(p.From),
		To:                fiberutils.CopyString(p.To),
		Body:              fiberutils.CopyString(p.Body),
		NumMedia:          fiberutils.CopyString(p.NumMedia),
		MediaUrl0:         fiberutils.CopyString(p.MediaUrl0),
		MediaContentType0: fiberutils.CopyString(p.MediaContentType0),
		Latitude:          fiberutils.CopyString(p.Latitude),
		Longitude:         fiberutils.CopyString(p.Longitude),
		ButtonText:        fiberutils.CopyString(p.ButtonText),
		ButtonPayload:     fiberutils.CopyString(p.ButtonPayload),
	}
}

// HandleWebhook acknowledges the webhook at once and processes the message in the background.
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		h.log.Warn("invalid webhook payload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	// Form values alias the request buffer, which fiber reuses once we return.
	payload = payload.detach()
	from := utils.StripWhatsApp(payload.From)
	if from == "" {
		// Status callbacks carry no sender.
		return c.SendStatus(fiber.StatusOK)
	}
	h.log.Info("WhatsApp message received",
		logging.Identity(from),
		zap.String("sid", payload.MessageSid),
		zap.String("num_media", payload.NumMedia))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.process(from, payload)
	}()

	return c.SendStatus(fiber.StatusOK)
}

// Wait blocks until every background message has been answered.
func (h *WhatsAppHandler) Wait() {
	h.wg.Wait()
}

func (h *WhatsAppHandler) process(from string, payload TwilioWebhookPayload) {
	ctx, cancel := context.WithTimeout(h.base, processTimeout)
	defer cancel()

	body, err := h.respond(ctx, from, payload)
	if err != nil {
		h.log.Error("failed to process message", logging.Identity(from), zap.Error(err))
		if errors.Is(err, context.Canceled) {
			return
		}
		if body == "" {
			body = textProcessingError
		}
	}
	if body == "" {
		return
	}
	if err := h.messenger.Send(ctx, from, body); err != nil {
		h.log.Error("failed to send WhatsApp response", logging.Identity(from), zap.Error(err))
	}
}

func (h *WhatsAppHandler) respond(ctx context.Context, from string, payload TwilioWebhookPayload) (string, error) {
	ev, err := h.toEvent(ctx, from, payload)
	if err != nil {
		return "", err
	}
	replies, err := h.engine.Handle(ctx, ev)
	return workflow.RenderAll(replies), err
}

// toEvent classifies the webhook as contact, location, media or text.
func (h *WhatsAppHandler) toEvent(ctx context.Context, from string, p TwilioWebhookPayload) (workflow.Event, error) {
	if n, _ := strconv.Atoi(p.NumMedia); n > 0 && p.MediaUrl0 != "" {
		if services.IsVCard(p.MediaContentType0) {
			return h.contactFromCard(ctx, from, p.MediaUrl0)
		}
		ext := services.ExtensionForContentType(p.MediaContentType0)
		return workflow.MediaEvent(from, p.MediaUrl0, p.MediaContentType0, ext), nil
	}

	if p.Latitude != "" && p.Longitude != "" {
		lat, errLat := strconv.ParseFloat(p.Latitude, 64)
		lon, errLon := strconv.ParseFloat(p.Longitude, 64)
		if errLat == nil && errLon == nil {
			return workflow.LocationEvent(from, lat, lon), nil
		}
		h.log.Warn("malformed location", zap.String("latitude", p.Latitude), zap.String("longitude", p.Longitude))
	}

	text := p.Body
	if text == "" {
		text = p.ButtonText
	}
	if isContactShare(text, p.ButtonPayload) {
		// The sender address is verified by WhatsApp, so it proves the phone.
		return workflow.ContactEvent(from, from), nil
	}
	return workflow.TextEvent(from, text), nil
}

func (h *WhatsAppHandler) contactFromCard(ctx context.Context, from, url string) (workflow.Event, error) {
	if h.cards == nil {
		return workflow.Event{}, errors.New("contact cards are not supported")
	}
	data, _, err := h.cards.FetchBytes(ctx, url)
	if err != nil {
		return workflow.Event{}, err
	}
	return workflow.ContactEvent(from, services.ParseVCardPhone(data)), nil
}

func isContactShare(text, payload string) bool {
	if payload == shareContactPayload {
		return true
	}
	t := strings.ToLower(strings.TrimSpace(text))
	return t == "контакт" || t == strings.ToLower(workflow.ButtonContact)
}

// TestWebhookPayload drives the workflow without Twilio.
type TestWebhookPayload struct {
	From             string   `json:"from"`
	Message          string   `json:"message"`
	Contact          string   `json:"contact"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
	MediaURL         string   `json:"media_url"`
	MediaContentType string   `json:"media_content_type"`
}

func (p TestWebhookPayload) event() workflow.Event {
	from := utils.StripWhatsApp(p.From)
	switch {
	case p.Contact != "":
		return workflow.ContactEvent(from, p.Contact)
	case p.Latitude != nil && p.Longitude != nil:
		return workflow.LocationEvent(from, *p.Latitude, *p.Longitude)
	case p.MediaURL != "":
		return workflow.MediaEvent(from, p.MediaURL, p.MediaContentType, services.ExtensionForContentType(p.MediaContentType))
	}
	return workflow.TextEvent(from, p.Message)
}

// HandleTestWebhook processes one message synchronously and returns the replies.
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil || utils.StripWhatsApp(payload.From) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}

	ev := payload.event()
	h.log.Debug("test webhook received", logging.Identity(ev.Identity), zap.String("kind", string(ev.Kind)))

	replies, err := h.engine.Handle(c.UserContext(), ev)
	if err != nil {
		h.log.Error("failed to process test message", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"replies":  replies,
		"response": workflow.RenderAll(replies),
	})
}
