package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/artifact"
	"github.com/joseph-ayodele/exams-tracker/internal/core/ocr"
)

// Normalizer turns an uploaded document into a raster image the recognizer can read.
type Normalizer struct {
	rasterizer ocr.Rasterizer
	logger     *slog.Logger
}

func NewNormalizer(r ocr.Rasterizer, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{rasterizer: r, logger: logger}
}

// Normalize returns the image path for doc. Paginated documents are rendered
// to a new file tracked by session, even when rendering fails. Raster images
// are returned unchanged, and unknown types pass through for the recognizer to judge.
func (n *Normalizer) Normalize(ctx context.Context, doc Document, session *artifact.Session, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = n.logger
	}
	switch constants.KindOf(doc.MediaType) {
	case constants.MediaPaginated:
		session.Track(n.rasterizer.ExpectedOutput(doc.StoredPath))
		out, err := n.rasterizer.FirstPageToRaster(ctx, doc.StoredPath)
		if err != nil {
			return "", common.NewConversionError(err)
		}
		session.Track(out)
		logger.Debug("document rasterized", "raster", out)
		return out, nil
	case constants.MediaRaster:
		return doc.StoredPath, nil
	default:
		logger.Warn("unrecognized media type, passing through", "media_type", doc.MediaType)
		return doc.StoredPath, nil
	}
}
