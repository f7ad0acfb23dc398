// Package intake turns an uploaded document into a persisted consultation.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/artifact"
	"github.com/joseph-ayodele/exams-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
	"github.com/joseph-ayodele/exams-tracker/internal/repository"
)

// Processor runs one document through extraction and resolution.
type Processor interface {
	Run(ctx context.Context, doc pipeline.Document) (*pipeline.Result, error)
}

// Outcome is what callers get back for one processed document.
type Outcome struct {
	Protocol     string               `json:"protocol"`
	Result       *pipeline.Result     `json:"result"`
	Consultation *entity.Consultation `json:"consultation"`
}

var (
	errMissingPath   = common.NewAppError("INVALID_DOCUMENT", "path is required", common.ErrInvalidInput)
	errUnknownFormat = common.NewAppError("INVALID_DOCUMENT", "unsupported document format", common.ErrInvalidInput)
)

// Service handles intake business logic.
type Service struct {
	store         *artifact.Store
	processor     Processor
	protocols     *pipeline.ProtocolGenerator
	consultations repository.ConsultationRepository
	logger        *slog.Logger
}

// NewService creates a new intake service.
func NewService(store *artifact.Store, p Processor, protocols *pipeline.ProtocolGenerator, consultations repository.ConsultationRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         store,
		processor:     p,
		protocols:     protocols,
		consultations: consultations,
		logger:        logger,
	}
}

// ProcessUpload stores r in the artifact store and processes it. The stored
// copy is removed by the pipeline whatever the outcome.
func (s *Service) ProcessUpload(ctx context.Context, r io.Reader, originalName, declaredType string) (*Outcome, error) {
	mediaType, err := resolveMediaType(declaredType, originalName)
	if err != nil {
		return nil, err
	}
	path, err := s.store.Save(r, originalName)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, pipeline.Document{StoredPath: path, MediaType: mediaType, OriginalName: originalName})
}

// ProcessPath copies a local file into the artifact store and processes the
// copy, so the caller's file is never deleted.
func (s *Service) ProcessPath(ctx context.Context, path, declaredType, originalName string) (*Outcome, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errMissingPath
	}
	if originalName == "" {
		originalName = filepath.Base(path)
	}
	mediaType, err := resolveMediaType(declaredType, originalName)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Import(path)
	if err != nil {
		s.logger.Error("failed to import document", "path", path, "error", err)
		return nil, common.NewAppError("INVALID_DOCUMENT", "document could not be read", errors.Join(common.ErrInvalidInput, err))
	}
	return s.process(ctx, pipeline.Document{StoredPath: stored, MediaType: mediaType, OriginalName: originalName})
}

func (s *Service) process(ctx context.Context, doc pipeline.Document) (*Outcome, error) {
	start := time.Now()
	res, err := s.processor.Run(ctx, doc)
	if err != nil {
		s.logger.Warn("document processing failed", "original_name", doc.OriginalName, "code", common.ErrorCode(err), "error", err)
		return nil, err
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	c := &entity.Consultation{
		Protocol:          s.protocols.Next(),
		OriginalName:      doc.OriginalName,
		RequiresSignature: res.RequiresSignature,
		ExamCount:         len(res.Exams),
		Result:            payload,
	}
	if err := s.consultations.Create(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("document processed",
		"protocol", c.Protocol,
		"exams", c.ExamCount,
		"requires_signature", c.RequiresSignature,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Outcome{Protocol: c.Protocol, Result: res, Consultation: c}, nil
}

// GetConsultation returns the consultation recorded under protocol.
func (s *Service) GetConsultation(ctx context.Context, protocol string) (*entity.Consultation, error) {
	protocol = strings.TrimSpace(protocol)
	if protocol == "" {
		return nil, common.NewAppError("INVALID_PROTOCOL", "protocol is required", common.ErrInvalidInput)
	}
	c, err := s.consultations.GetByProtocol(ctx, protocol)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewAppError("NOT_FOUND", "consultation not found", err)
	}
	return c, err
}

// resolveMediaType prefers the declared type and falls back to the file
// extension when the declaration is missing or generic.
func resolveMediaType(declared, name string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && constants.KindOf(declared) != constants.MediaUnknown {
		return declared, nil
	}
	if mt := constants.MediaTypeForExt(filepath.Ext(name)); mt != "" {
		return mt, nil
	}
	if declared != "" && !strings.HasPrefix(strings.ToLower(declared), "application/octet-stream") {
		// Unknown but explicit types are passed through; the normalizer decides.
		return declared, nil
	}
	return "", errUnknownFormat
}
