package provenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/heic"
	"go.uber.org/zap"
)

// ErrConversionFailed is returned when every converter failed.
var ErrConversionFailed = errors.New("conversion failed")

const jpegQuality = 95

// Converter turns a container file into a JPEG at dst.
type Converter interface {
	Name() string
	Convert(ctx context.Context, src, dst string) error
}

// HEICDecoder decodes HEIC in process and re-encodes it as JPEG.
type HEICDecoder struct{}

func (HEICDecoder) Name() string { return "heic" }

func (HEICDecoder) Convert(_ context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	img, err := heic.Decode(in)
	if err != nil {
		return fmt.Errorf("decode heic: %w", err)
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		out.Close()
		return fmt.Errorf("encode jpeg: %w", err)
	}
	return out.Close()
}

// MagickConverter shells out to ImageMagick.
type MagickConverter struct {
	Binary string
}

func (m MagickConverter) Name() string { return "imagemagick" }

func (m MagickConverter) Convert(ctx context.Context, src, dst string) error {
	binary := m.Binary
	if binary == "" {
		binary = "convert"
	}
	var stderr bytes.Buffer
	cmd := commandContext(ctx, binary, src, dst) //nolint:gosec
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Normalizer tries converters in order until one produces a non-empty JPEG.
type Normalizer struct {
	converters []Converter
	log        *zap.Logger
}

// NewNormalizer builds a normalizer. Order matters: the first success wins.
func NewNormalizer(log *zap.Logger, converters ...Converter) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{converters: converters, log: log}
}

// OutputPath is the JPEG written beside src.
func OutputPath(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + ".jpg"
}

// Normalize converts src and deletes it on success. On failure src is kept and
// no partial output remains.
func (n *Normalizer) Normalize(ctx context.Context, src string) (string, error) {
	dst := OutputPath(src)
	if dst == src {
		return "", fmt.Errorf("%w: source already has the output name", ErrConversionFailed)
	}

	var errs []error
	for _, c := range n.converters {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		err := c.Convert(ctx, src, dst)
		if err == nil {
			err = checkOutput(dst)
		}
		if err != nil {
			n.log.Warn("converter failed", zap.String("converter", c.Name()), zap.Error(err))
			_ = os.Remove(dst)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}

		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			n.log.Warn("failed to remove converted source", zap.String("path", src), zap.Error(err))
		}
		n.log.Debug("photo normalized", zap.String("converter", c.Name()), zap.String("path", dst))
		return dst, nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no converters configured"))
	}
	return "", fmt.Errorf("%w: %w", ErrConversionFailed, errors.Join(errs...))
}

func checkOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("output is empty")
	}
	return nil
}
