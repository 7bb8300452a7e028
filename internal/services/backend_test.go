package services

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startBackend(t *testing.T, register func(app *fiber.App)) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true, UnescapePath: true})
	register(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "http://" + ln.Addr().String()
}

func newTestBackend(baseURL string) *BackendClient {
	return NewBackendClient(config.BackendConfig{
		BaseURL:      baseURL,
		Timeout:      2 * time.Second,
		Retries:      2,
		RetryBackoff: time.Millisecond,
	}, nil)
}

func TestFindAgent(t *testing.T) {
	var gotPhone string
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/agent/:phone", func(c *fiber.Ctx) error {
			gotPhone = c.Params("phone")
			if gotPhone != "+996700123456" {
				return c.SendStatus(fiber.StatusNotFound)
			}
			return c.JSON(fiber.Map{"id": 7, "phone_number": gotPhone, "name": "Айгуль"})
		})
	})
	client := newTestBackend(base)

	agent, err := client.FindAgent(context.Background(), "996700123456")
	require.NoError(t, err)
	require.NotNil(t, agent)
	assert.Equal(t, int64(7), agent.ID)
	assert.Equal(t, "+996700123456", gotPhone)

	agent, err = client.FindAgent(context.Background(), "+996700000000")
	require.NoError(t, err)
	assert.Nil(t, agent)
}

func TestAssignedStores(t *testing.T) {
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/agent-schedule/:phone", func(c *fiber.Ctx) error {
			return c.JSON([]fiber.Map{{"id": 1, "name": "Глобус"}, {"id": 2, "name": "Народный"}})
		})
	})

	stores, err := newTestBackend(base).AssignedStores(context.Background(), "+996700123456")
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "Глобус", stores[0].Name)
	assert.Equal(t, int64(2), stores[1].ID)
}

func TestResolveStoreIDEscapesName(t *testing.T) {
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/store-id/:name", func(c *fiber.Ctx) error {
			if c.Params("name") != "Народный 12" {
				return c.SendStatus(fiber.StatusNotFound)
			}
			return c.JSON(fiber.Map{"id": 12})
		})
	})
	client := newTestBackend(base)

	ref, err := client.ResolveStoreID(context.Background(), "Народный 12")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, int64(12), ref.ID)
	assert.Equal(t, "Народный 12", ref.Name)

	ref, err = client.ResolveStoreID(context.Background(), "Другой")
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestCheckLocation(t *testing.T) {
	var gotPath string
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/check-address/*", func(c *fiber.Ctx) error {
			gotPath = c.Params("*")
			return c.JSON(fiber.Map{"success": strings.Contains(gotPath, "Глобус")})
		})
	})
	client := newTestBackend(base)

	ok, err := client.CheckLocation(context.Background(), 42.87, 74.59, "Глобус")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(gotPath, "74.59/42.87/"), gotPath)

	ok, err = client.CheckLocation(context.Background(), 42.87, 74.59, "Народный")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/agent-schedule/:phone", func(c *fiber.Ctx) error {
			if calls.Add(1) == 1 {
				return c.SendStatus(fiber.StatusServiceUnavailable)
			}
			return c.JSON([]fiber.Map{})
		})
	})

	stores, err := newTestBackend(base).AssignedStores(context.Background(), "+996700123456")
	require.NoError(t, err)
	assert.Empty(t, stores)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetGivesUpAfterRetryBudget(t *testing.T) {
	var calls atomic.Int32
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/agent/:phone", func(c *fiber.Ctx) error {
			calls.Add(1)
			return c.Status(fiber.StatusBadGateway).SendString("gateway down")
		})
	})

	_, err := newTestBackend(base).FindAgent(context.Background(), "+996700123456")
	require.Error(t, err)
	assert.Equal(t, models.KindUpstream, models.KindOf(err))
	assert.Equal(t, int32(3), calls.Load())

	var me *models.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, fiber.StatusBadGateway, me.Status)
	assert.Equal(t, "gateway down", me.Body)
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	base := startBackend(t, func(app *fiber.App) {
		app.Get("/api/agent-schedule/:phone", func(c *fiber.Ctx) error {
			calls.Add(1)
			return c.SendStatus(fiber.StatusForbidden)
		})
	})

	_, err := newTestBackend(base).AssignedStores(context.Background(), "+996700123456")
	assert.Equal(t, models.KindUpstream, models.KindOf(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreatePostJSON(t *testing.T) {
	var got map[string]any
	var contentType string
	base := startBackend(t, func(app *fiber.App) {
		app.Post("/api/photo-posts/create/", func(c *fiber.Ctx) error {
			contentType = c.Get(fiber.HeaderContentType)
			if err := json.Unmarshal(c.Body(), &got); err != nil {
				return c.SendStatus(fiber.StatusBadRequest)
			}
			return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": 99})
		})
	})

	brand, count := "Beta", 12
	err := newTestBackend(base).CreatePost(context.Background(), models.SubmissionRecord{
		AgentID: 7, StoreID: 3, Category: "ДМП_конкурент",
		Latitude: 42.87, Longitude: 74.59,
		Brand: &brand, CompetitorCount: &count,
	})
	require.NoError(t, err)
	assert.Contains(t, contentType, fiber.MIMEApplicationJSON)
	assert.Equal(t, "Beta", got["dmp_type"])
	assert.EqualValues(t, 12, got["dmp_count"])
	assert.EqualValues(t, 3, got["store"])
	assert.NotContains(t, got, "image")
}

func TestCreatePostMultipart(t *testing.T) {
	var fields map[string]string
	var fileName string
	var fileSize int64
	base := startBackend(t, func(app *fiber.App) {
		app.Post("/api/photo-posts/create/", func(c *fiber.Ctx) error {
			fh, err := c.FormFile("image")
			if err != nil {
				return c.Status(fiber.StatusBadRequest).SendString(err.Error())
			}
			fileName, fileSize = fh.Filename, fh.Size
			fields = map[string]string{
				"agent":     c.FormValue("agent"),
				"post_type": c.FormValue("post_type"),
				"dmp_type":  c.FormValue("dmp_type"),
				"dmp_count": c.FormValue("dmp_count"),
			}
			return c.SendStatus(fiber.StatusCreated)
		})
	})

	photo := filepath.Join(t.TempDir(), "shelf.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("jpeg-bytes"), 0o644))

	err := newTestBackend(base).CreatePost(context.Background(), models.SubmissionRecord{
		AgentID: 7, StoreID: 3, Category: "ДМП_ОРИМИ КР",
		Latitude: 42.87, Longitude: 74.59,
		PhotoPath: photo,
	})
	require.NoError(t, err)
	assert.Equal(t, "shelf.jpg", fileName)
	assert.Equal(t, int64(len("jpeg-bytes")), fileSize)
	assert.Equal(t, "7", fields["agent"])
	assert.Equal(t, "ДМП_ОРИМИ КР", fields["post_type"])
	assert.Empty(t, fields["dmp_type"])
	assert.Empty(t, fields["dmp_count"])
}

func TestCreatePostIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	base := startBackend(t, func(app *fiber.App) {
		app.Post("/api/photo-posts/create/", func(c *fiber.Ctx) error {
			calls.Add(1)
			return c.Status(fiber.StatusInternalServerError).SendString(`{"detail":"db down"}`)
		})
	})

	brand, count := "Beta", 1
	err := newTestBackend(base).CreatePost(context.Background(), models.SubmissionRecord{
		AgentID: 1, StoreID: 1, Category: "ДМП_конкурент", Brand: &brand, CompetitorCount: &count,
	})
	var me *models.Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, models.KindUpstream, me.Kind)
	assert.Equal(t, fiber.StatusInternalServerError, me.Status)
	assert.Equal(t, `{"detail":"db down"}`, me.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreatePostMissingPhoto(t *testing.T) {
	err := newTestBackend("http://127.0.0.1:1").CreatePost(context.Background(), models.SubmissionRecord{
		AgentID: 1, StoreID: 1, Category: "РМП_чай_ДО", PhotoPath: filepath.Join(t.TempDir(), "gone.jpg"),
	})
	assert.Equal(t, models.KindUpstream, models.KindOf(err))
}
