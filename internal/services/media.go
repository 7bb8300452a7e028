package services

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dastankg/orimi-merchen/internal/config"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const maxMediaRedirects = 5

// ErrMediaTooLarge is returned when a download exceeds the configured cap.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

var safeExtension = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

var contentTypeExtensions = map[string]string{
	"image/jpeg":   ".jpg",
	"image/jpg":    ".jpg",
	"image/png":    ".png",
	"image/tiff":   ".tiff",
	"image/bmp":    ".bmp",
	"image/heic":   ".heic",
	"image/heif":   ".heif",
	"text/vcard":   ".vcf",
	"text/x-vcard": ".vcf",
}

// ExtensionForContentType maps a media content type to the extension used for scratch files.
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return contentTypeExtensions[ct]
}

// IsVCard reports whether the content type is a shared contact card.
func IsVCard(contentType string) bool {
	return ExtensionForContentType(contentType) == ".vcf"
}

// MediaFetcher downloads inbound WhatsApp media into the scratch directory.
type MediaFetcher struct {
	dir      string
	maxBytes int64
	timeout  time.Duration
	username string
	password string
	log      *zap.Logger
}

// NewMediaFetcher creates a fetcher authenticated with the Twilio account credentials
func NewMediaFetcher(media config.MediaConfig, tw config.TwilioConfig, timeout time.Duration, log *zap.Logger) *MediaFetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaFetcher{
		dir:      media.Dir,
		maxBytes: media.MaxBytes,
		timeout:  timeout,
		username: tw.AccountSID,
		password: tw.AuthToken,
		log:      log,
	}
}

// Dir returns the scratch directory.
func (m *MediaFetcher) Dir() string {
	return m.dir
}

// Fetch downloads url into a new scratch file named <uuid><ext> and returns its path.
func (m *MediaFetcher) Fetch(ctx context.Context, url, ext string) (string, error) {
	ext = strings.ToLower(ext)
	if !safeExtension.MatchString(ext) {
		return "", fmt.Errorf("invalid extension %q", ext)
	}

	data, _, err := m.FetchBytes(ctx, url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	path := filepath.Join(m.dir, uuid.NewString()+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write media: %w", err)
	}
	m.log.Debug("media downloaded", zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}

// FetchBytes downloads url into memory. Redirects are followed by hand so that
// credentials are only sent to the first host.
func (m *MediaFetcher) FetchBytes(ctx context.Context, url string) ([]byte, string, error) {
	target := url
	for hop := 0; hop <= maxMediaRedirects; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		resp := fiber.AcquireResponse()
		a := fiber.Get(target).SetResponse(resp)
		if m.timeout > 0 {
			a.Timeout(m.timeout)
		}
		if hop == 0 && m.username != "" {
			a.BasicAuth(m.username, m.password)
		}
		if m.maxBytes > 0 && a.HostClient != nil {
			a.MaxResponseBodySize = int(m.maxBytes)
		}
		code, body, errs := a.Bytes()
		location := string(resp.Header.Peek(fiber.HeaderLocation))
		contentType := string(resp.Header.ContentType())
		fiber.ReleaseResponse(resp)

		if len(errs) > 0 {
			err := errors.Join(errs...)
			if errors.Is(err, fasthttp.ErrBodyTooLarge) {
				return nil, "", fmt.Errorf("%w: over %d bytes", ErrMediaTooLarge, m.maxBytes)
			}
			return nil, "", fmt.Errorf("download media: %w", err)
		}
		switch {
		case code >= 300 && code < 400 && location != "":
			target = location
			continue
		case code != http.StatusOK:
			return nil, "", fmt.Errorf("download media: status %d", code)
		}
		if m.maxBytes > 0 && int64(len(body)) > m.maxBytes {
			return nil, "", fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, len(body))
		}
		return body, contentType, nil
	}
	return nil, "", fmt.Errorf("download media: more than %d redirects", maxMediaRedirects)
}

// ParseVCardPhone returns the first TEL value of a vCard.
func ParseVCardPhone(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name, _, _ = strings.Cut(strings.ToUpper(name), ";")
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		if name == "TEL" {
			if value = strings.TrimSpace(strings.TrimPrefix(value, "tel:")); value != "" {
				return value
			}
		}
	}
	return ""
}
