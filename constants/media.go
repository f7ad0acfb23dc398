package constants

import "strings"

const (
	MediaTypePDF = "application/pdf"
	mediaImage   = "image/"
)

// MediaKind is the normalizer's view of a declared media type.
type MediaKind string

const (
	MediaPaginated MediaKind = "PAGINATED"
	MediaRaster    MediaKind = "RASTER"
	MediaUnknown   MediaKind = "UNKNOWN"
)

// extToMediaType is used when a caller gives a path without a declared type.
var extToMediaType = map[string]string{
	"pdf":  MediaTypePDF,
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MediaTypeForExt returns the media type for a file extension, or "" if unknown.
func MediaTypeForExt(ext string) string {
	return extToMediaType[NormalizeExt(ext)]
}

// KindOf classifies a declared media type. Parameters such as "; charset=" are ignored.
func KindOf(mediaType string) MediaKind {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == MediaTypePDF:
		return MediaPaginated
	case strings.HasPrefix(mt, mediaImage):
		return MediaRaster
	default:
		return MediaUnknown
	}
}
