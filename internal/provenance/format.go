// Package provenance decides whether an uploaded shelf photo is a fresh camera capture.
package provenance

import (
	"strings"
)

// Format is the handling class of an uploaded file.
type Format int

const (
	FormatUnsupported Format = iota
	FormatRaster
	FormatContainer
)

func (f Format) String() string {
	switch f {
	case FormatRaster:
		return "raster"
	case FormatContainer:
		return "container"
	default:
		return "unsupported"
	}
}

var extensionFormats = map[string]Format{
	".jpg":  FormatRaster,
	".jpeg": FormatRaster,
	".png":  FormatRaster,
	".tif":  FormatRaster,
	".tiff": FormatRaster,
	".bmp":  FormatRaster,
	".heic": FormatContainer,
	".heif": FormatContainer,
}

// Classify maps a declared extension (with or without the dot) to its format.
func Classify(ext string) Format {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return extensionFormats[ext]
}
