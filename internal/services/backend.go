package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/dastankg/orimi-merchen/internal/models"
	"github.com/dastankg/orimi-merchen/internal/utils"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxLoggedBody = 512

// BackendClient talks to the web service that owns agents, stores and photo posts.
type BackendClient struct {
	baseURL string
	timeout time.Duration
	retries int
	backoff time.Duration
	log     *zap.Logger
}

// NewBackendClient creates a client for the configured web service
func NewBackendClient(cfg config.BackendConfig, log *zap.Logger) *BackendClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &BackendClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		backoff: cfg.RetryBackoff,
		log:     log,
	}
}

// FindAgent returns the directory record for phone, or nil when the backend does not know it.
func (c *BackendClient) FindAgent(ctx context.Context, phone string) (*models.Agent, error) {
	const op = "find agent"
	code, body, err := c.get(ctx, op, "/api/agent/"+url.PathEscape(utils.WithPlus(phone)))
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, c.upstream(op, code, body)
	}

	var agent models.Agent
	if err := json.Unmarshal(body, &agent); err != nil {
		return nil, models.UpstreamErr(op, fmt.Errorf("decode agent: %w", err))
	}
	if agent.ID == 0 {
		return nil, nil
	}
	return &agent, nil
}

// AssignedStores lists the stores scheduled for the agent today, in backend order.
func (c *BackendClient) AssignedStores(ctx context.Context, phone string) ([]models.StoreRef, error) {
	const op = "agent schedule"
	code, body, err := c.get(ctx, op, "/api/agent-schedule/"+url.PathEscape(utils.WithPlus(phone)))
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK {
		return nil, c.upstream(op, code, body)
	}

	var stores []models.StoreRef
	if err := json.Unmarshal(body, &stores); err != nil {
		return nil, models.UpstreamErr(op, fmt.Errorf("decode schedule: %w", err))
	}
	return stores, nil
}

// ResolveStoreID looks up the backend id of a store by name. Unknown stores return nil.
func (c *BackendClient) ResolveStoreID(ctx context.Context, name string) (*models.StoreRef, error) {
	const op = "resolve store"
	code, body, err := c.get(ctx, op, "/api/store-id/"+url.PathEscape(name))
	if err != nil {
		return nil, err
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, c.upstream(op, code, body)
	}

	var ref models.StoreRef
	if err := json.Unmarshal(body, &ref); err != nil {
		return nil, models.UpstreamErr(op, fmt.Errorf("decode store: %w", err))
	}
	if ref.ID == 0 {
		return nil, nil
	}
	if ref.Name == "" {
		ref.Name = name
	}
	return &ref, nil
}

// CheckLocation asks the backend whether the coordinates lie within the store's geofence.
func (c *BackendClient) CheckLocation(ctx context.Context, lat, lon float64, storeName string) (bool, error) {
	const op = "check address"
	path := fmt.Sprintf("/api/check-address/%s/%s/%s/",
		strconv.FormatFloat(lon, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		url.PathEscape(storeName))
	code, body, err := c.get(ctx, op, path)
	if err != nil {
		return false, err
	}
	if code != http.StatusOK {
		return false, c.upstream(op, code, body)
	}

	var res struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return false, models.UpstreamErr(op, fmt.Errorf("decode check: %w", err))
	}
	return res.Success, nil
}

// CreatePost sends one photo post. Records with a photo go out as multipart with
// the file under "image"; the rest are JSON. The call is never retried.
func (c *BackendClient) CreatePost(ctx context.Context, rec models.SubmissionRecord) error {
	const op = "create post"
	if err := ctx.Err(); err != nil {
		return models.UpstreamErr(op, err)
	}

	a := fiber.Post(c.baseURL + "/api/photo-posts/create/")
	if c.timeout > 0 {
		a.Timeout(c.timeout)
	}

	if rec.HasPhoto() {
		args := fiber.AcquireArgs()
		defer fiber.ReleaseArgs(args)
		args.Set("agent", strconv.FormatInt(rec.AgentID, 10))
		args.Set("store", strconv.FormatInt(rec.StoreID, 10))
		args.Set("post_type", rec.Category)
		args.Set("latitude", strconv.FormatFloat(rec.Latitude, 'f', -1, 64))
		args.Set("longitude", strconv.FormatFloat(rec.Longitude, 'f', -1, 64))
		a.SendFile(rec.PhotoPath, "image").MultipartForm(args)
	} else {
		a.JSON(rec)
	}

	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return models.UpstreamErr(op, errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		return c.upstream(op, code, body)
	}
	c.log.Info("photo post created", zap.Int("status", code), zap.Int64("store", rec.StoreID), zap.String("category", rec.Category))
	return nil
}

// get performs a GET with bounded retries on transport errors and 5xx responses.
func (c *BackendClient) get(ctx context.Context, op, path string) (int, []byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return 0, nil, models.UpstreamErr(op, err)
		}

		a := fiber.Get(c.baseURL + path)
		if c.timeout > 0 {
			a.Timeout(c.timeout)
		}
		code, body, errs := a.Bytes()
		switch {
		case len(errs) > 0:
			lastErr = models.UpstreamErr(op, errors.Join(errs...))
		case code >= http.StatusInternalServerError:
			lastErr = models.Upstream(op, code, truncate(body))
		default:
			return code, body, nil
		}

		if attempt >= c.retries {
			c.log.Warn("backend call failed", zap.String("op", op), zap.Int("attempts", attempt+1), zap.Error(lastErr))
			return 0, nil, lastErr
		}

		wait := c.backoff << attempt
		c.log.Debug("retrying backend call", zap.String("op", op), zap.Duration("wait", wait), zap.Error(lastErr))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, nil, models.UpstreamErr(op, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *BackendClient) upstream(op string, code int, body []byte) error {
	err := models.Upstream(op, code, truncate(body))
	c.log.Warn("backend returned an error", zap.String("op", op), zap.Int("status", code), zap.String("body", err.Body))
	return err
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxLoggedBody {
		return s[:maxLoggedBody] + "..."
	}
	return s
}
