package provenance

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dastankg/orimi-merchen/internal/models"
	"go.uber.org/zap"
)

// Result is the outcome of one verification. It is never persisted.
type Result struct {
	Accepted       bool
	CaptureTime    time.Time
	NormalizedPath string
	Reason         models.Kind
	Err            error
}

// Age returns how old the capture was at verification time.
func (r Result) Age(now time.Time) time.Duration {
	if r.CaptureTime.IsZero() {
		return 0
	}
	return now.Sub(r.CaptureTime)
}

// Options configures a Verifier.
type Options struct {
	Location  *time.Location
	MaxAge    time.Duration
	Raster    MetadataReader
	Container MetadataReader
	Converter *Normalizer
	Now       func() time.Time
	Logger    *zap.Logger
}

// Verifier accepts photos whose embedded capture time is within MaxAge of now.
type Verifier struct {
	loc       *time.Location
	maxAge    time.Duration
	raster    MetadataReader
	container MetadataReader
	normalize *Normalizer
	now       func() time.Time
	log       *zap.Logger
}

// NewVerifier builds a verifier. Zero options fall back to EXIF, exiftool and
// the heic-then-ImageMagick converter list.
func NewVerifier(opts Options) *Verifier {
	v := &Verifier{
		loc:       opts.Location,
		maxAge:    opts.MaxAge,
		raster:    opts.Raster,
		container: opts.Container,
		normalize: opts.Converter,
		now:       opts.Now,
		log:       opts.Logger,
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	if v.loc == nil {
		v.loc = time.UTC
	}
	if v.maxAge <= 0 {
		v.maxAge = 5 * time.Minute
	}
	if v.raster == nil {
		v.raster = EXIFReader{}
	}
	if v.container == nil {
		v.container = ExifToolReader{}
	}
	if v.normalize == nil {
		v.normalize = NewNormalizer(v.log, HEICDecoder{}, MagickConverter{})
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// MaxAge returns the freshness threshold.
func (v *Verifier) MaxAge() time.Duration {
	return v.maxAge
}

// Verify checks the capture time of the file at path. Accepted container files
// are converted to JPEG and NormalizedPath points at the new file. The caller
// owns every file left on disk.
func (v *Verifier) Verify(ctx context.Context, path, ext string) Result {
	format := Classify(ext)

	var reader MetadataReader
	switch format {
	case FormatRaster:
		reader = v.raster
	case FormatContainer:
		reader = v.container
	default:
		return reject(models.KindUnsupportedFormat, fmt.Errorf("unsupported extension %q", ext))
	}

	raw, err := reader.CaptureTime(ctx, path)
	if err != nil {
		return reject(models.KindMetadataMissing, err)
	}
	captured, err := ParseTimestamp(raw, v.loc)
	if err != nil {
		return reject(models.KindMetadataMissing, err)
	}

	now := v.now().In(v.loc)
	age := now.Sub(captured)
	if age < 0 || age > v.maxAge {
		res := reject(models.KindPhotoStale, fmt.Errorf("captured %s ago, limit %s", age.Round(time.Second), v.maxAge))
		res.CaptureTime = captured
		return res
	}

	res := Result{Accepted: true, CaptureTime: captured, NormalizedPath: path}
	if format == FormatContainer {
		out, err := v.normalize.Normalize(ctx, path)
		if err != nil {
			res = reject(models.KindConversionFailed, err)
			res.CaptureTime = captured
			return res
		}
		res.NormalizedPath = out
	}

	v.log.Debug("photo accepted",
		zap.String("format", format.String()),
		zap.Time("captured", captured),
		zap.Duration("age", age))
	return res
}

func reject(kind models.Kind, err error) Result {
	return Result{Reason: kind, Err: &models.Error{Kind: kind, Op: "verify", Err: err}}
}

// ToolStatus reports whether the external binaries used for container files are installed.
type ToolStatus struct {
	Name      string `json:"name"`
	Binary    string `json:"binary"`
	Available bool   `json:"available"`
	Error     string `json:"error,omitempty"`
}

// CheckTools looks up the binaries on PATH.
func CheckTools(binaries map[string]string) []ToolStatus {
	var out []ToolStatus
	for _, name := range []string{"exiftool", "convert"} {
		bin, ok := binaries[name]
		if !ok {
			continue
		}
		status := ToolStatus{Name: name, Binary: bin}
		if _, err := exec.LookPath(bin); err != nil {
			status.Error = err.Error()
		} else {
			status.Available = true
		}
		out = append(out, status)
	}
	return out
}
