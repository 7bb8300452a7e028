package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/dastankg/orimi-merchen/internal/workflow"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu      sync.Mutex
	events  []workflow.Event
	replies []workflow.Reply
	err     error
}

func (f *fakeEngine) Handle(_ context.Context, ev workflow.Event) ([]workflow.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.replies, f.err
}

func (f *fakeEngine) last(t *testing.T) workflow.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.events)
	return f.events[len(f.events)-1]
}

type sentMessage struct{ to, body string }

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (m *fakeMessenger) Send(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{to, body})
	return nil
}

type fakeCards struct {
	data []byte
	err  error
}

func (f fakeCards) FetchBytes(context.Context, string) ([]byte, string, error) {
	return f.data, "text/vcard", f.err
}

func newTestApp(engine *fakeEngine, messenger *fakeMessenger, cards CardFetcher) (*fiber.App, *WhatsAppHandler) {
	h := NewWhatsAppHandler(context.Background(), engine, messenger, cards, nil)
	app := fiber.New()
	app.Post("/webhook/whatsapp", h.HandleWebhook)
	app.Post("/test/whatsapp", h.HandleTestWebhook)
	return app, h
}

func postForm(t *testing.T, app *fiber.App, form url.Values) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestWebhookEventMapping(t *testing.T) {
	tests := []struct {
		name  string
		form  url.Values
		check func(t *testing.T, ev workflow.Event)
	}{
		{
			name: "text",
			form: url.Values{"From": {"whatsapp:+996700123456"}, "Body": {"Глобус"}},
			check: func(t *testing.T, ev workflow.Event) {
				assert.Equal(t, workflow.EventText, ev.Kind)
				assert.Equal(t, "Глобус", ev.Text)
				assert.Equal(t, "+996700123456", ev.Identity)
			},
		},
		{
			name: "location",
			form: url.Values{"From": {"whatsapp:+996700123456"}, "Latitude": {"42.87"}, "Longitude": {"74.59"}},
			check: func(t *testing.T, ev workflow.Event) {
				require.Equal(t, workflow.EventLocation, ev.Kind)
				assert.InDelta(t, 42.87, ev.Location.Latitude, 1e-9)
				assert.InDelta(t, 74.59, ev.Location.Longitude, 1e-9)
			},
		},
		{
			name: "photo",
			form: url.Values{
				"From":              {"whatsapp:+996700123456"},
				"NumMedia":          {"1"},
				"MediaUrl0":         {"https://api.twilio.com/media/1"},
				"MediaContentType0": {"image/heic"},
			},
			check: func(t *testing.T, ev workflow.Event) {
				require.Equal(t, workflow.EventMedia, ev.Kind)
				assert.Equal(t, ".heic", ev.Media.Extension)
				assert.Equal(t, "https://api.twilio.com/media/1", ev.Media.URL)
			},
		},
		{
			name: "contact keyword",
			form: url.Values{"From": {"whatsapp:+996700123456"}, "Body": {" Контакт "}},
			check: func(t *testing.T, ev workflow.Event) {
				require.Equal(t, workflow.EventContact, ev.Kind)
				assert.Equal(t, "+996700123456", ev.Contact.Phone)
			},
		},
		{
			name: "contact button",
			form: url.Values{"From": {"whatsapp:+996700123456"}, "ButtonText": {"Поделиться"}, "ButtonPayload": {"share_contact"}},
			check: func(t *testing.T, ev workflow.Event) {
				assert.Equal(t, workflow.EventContact, ev.Kind)
			},
		},
		{
			name: "vcard",
			form: url.Values{
				"From":              {"whatsapp:+996700123456"},
				"NumMedia":          {"1"},
				"MediaUrl0":         {"https://api.twilio.com/media/2"},
				"MediaContentType0": {"text/vcard"},
			},
			check: func(t *testing.T, ev workflow.Event) {
				require.Equal(t, workflow.EventContact, ev.Kind)
				assert.Equal(t, "+996 555 000 111", ev.Contact.Phone)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{replies: []workflow.Reply{{Text: "ok"}}}
			messenger := &fakeMessenger{}
			card := []byte("BEGIN:VCARD\nVERSION:3.0\nTEL;type=CELL:+996 555 000 111\nEND:VCARD\n")
			app, h := newTestApp(engine, messenger, fakeCards{data: card})

			assert.Equal(t, fiber.StatusOK, postForm(t, app, tt.form))
			h.Wait()

			tt.check(t, engine.last(t))
			require.Len(t, messenger.sent, 1)
			assert.Equal(t, "+996700123456", messenger.sent[0].to)
			assert.Equal(t, "ok", messenger.sent[0].body)
		})
	}
}

func TestWebhookIgnoresStatusCallbacks(t *testing.T) {
	engine := &fakeEngine{}
	messenger := &fakeMessenger{}
	app, h := newTestApp(engine, messenger, nil)

	assert.Equal(t, fiber.StatusOK, postForm(t, app, url.Values{"MessageStatus": {"delivered"}}))
	h.Wait()
	assert.Empty(t, engine.events)
	assert.Empty(t, messenger.sent)
}

func TestWebhookReportsProcessingError(t *testing.T) {
	engine := &fakeEngine{err: errors.New("store down")}
	messenger := &fakeMessenger{}
	app, h := newTestApp(engine, messenger, nil)

	postForm(t, app, url.Values{"From": {"whatsapp:+996700123456"}, "Body": {"привет"}})
	h.Wait()
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, textProcessingError, messenger.sent[0].body)
}

func TestWebhookCardDownloadFailure(t *testing.T) {
	engine := &fakeEngine{}
	messenger := &fakeMessenger{}
	app, h := newTestApp(engine, messenger, fakeCards{err: errors.New("404")})

	postForm(t, app, url.Values{
		"From":              {"whatsapp:+996700123456"},
		"NumMedia":          {"1"},
		"MediaUrl0":         {"https://api.twilio.com/media/2"},
		"MediaContentType0": {"text/x-vcard"},
	})
	h.Wait()
	assert.Empty(t, engine.events)
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, textProcessingError, messenger.sent[0].body)
}

func TestTestWebhookRepliesSynchronously(t *testing.T) {
	engine := &fakeEngine{replies: []workflow.Reply{{Text: "Выберите магазин:", Options: []string{"Глобус"}}}}
	app, _ := newTestApp(engine, &fakeMessenger{}, nil)

	body, _ := json.Marshal(map[string]any{"from": "+996700123456", "latitude": 42.87, "longitude": 74.59})
	req := httptest.NewRequest(http.MethodPost, "/test/whatsapp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var got struct {
		Success  bool             `json:"success"`
		Replies  []workflow.Reply `json:"replies"`
		Response string           `json:"response"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.True(t, got.Success)
	require.Len(t, got.Replies, 1)
	assert.Contains(t, got.Response, "1. Глобус")

	assert.Equal(t, workflow.EventLocation, engine.last(t).Kind)
}

func TestTestWebhookRequiresSender(t *testing.T) {
	app, _ := newTestApp(&fakeEngine{}, &fakeMessenger{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/test/whatsapp", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

type gatedEngine struct {
	fakeEngine
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEngine) Handle(ctx context.Context, ev workflow.Event) ([]workflow.Reply, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeEngine.Handle(ctx, ev)
}

func TestWebhooksInFlightKeepTheirOwnSender(t *testing.T) {
	engine := &gatedEngine{entered: make(chan struct{}, 2), release: make(chan struct{})}
	messenger := &fakeMessenger{}
	h := NewWhatsAppHandler(context.Background(), engine, messenger, fakeCards{}, nil)
	app := fiber.New()
	app.Post("/webhook/whatsapp", h.HandleWebhook)

	assert.Equal(t, fiber.StatusOK, postForm(t, app, url.Values{"From": {"whatsapp:+996700111111"}, "Body": {"Tess"}}))
	assert.Equal(t, fiber.StatusOK, postForm(t, app, url.Values{"From": {"whatsapp:+996555999999"}, "Body": {"ZZZZ"}}))
	<-engine.entered
	<-engine.entered
	close(engine.release)
	h.Wait()

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.events, 2)
	got := map[string]string{}
	for _, ev := range engine.events {
		got[ev.Identity] = ev.Text
	}
	assert.Equal(t, map[string]string{
		"+996700111111": "Tess",
		"+996555999999": "ZZZZ",
	}, got)
}
