// Package pipeline runs a stored document through normalization, text
// extraction, exam parsing and deadline resolution.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/artifact"
	"github.com/joseph-ayodele/exams-tracker/internal/core/deadline"
	"github.com/joseph-ayodele/exams-tracker/internal/core/exams"
	"github.com/joseph-ayodele/exams-tracker/internal/core/ocr"
)

// Document is an upload already persisted to storage. The pipeline owns
// StoredPath for the duration of Run and deletes it before returning.
type Document struct {
	StoredPath   string
	MediaType    string
	OriginalName string
}

// Result is the outcome of a successful run.
type Result struct {
	Exams             []deadline.ExamResolution `json:"exams"`
	RequiresSignature bool                      `json:"requires_signature"`
}

// Observer receives run and stage measurements.
type Observer interface {
	ObserveRun(outcome string)
	ObserveStage(stage string, d time.Duration)
	ObserveExams(n int)
}

type Pipeline struct {
	normalizer *Normalizer
	recognizer ocr.Recognizer
	parser     *exams.Parser
	resolver   *deadline.Resolver
	logger     *slog.Logger
	observer   Observer
}

func New(normalizer *Normalizer, recognizer ocr.Recognizer, parser *exams.Parser, resolver *deadline.Resolver, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = exams.Default()
	}
	return &Pipeline{
		normalizer: normalizer,
		recognizer: recognizer,
		parser:     parser,
		resolver:   resolver,
		logger:     logger,
	}
}

func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	p.observer = o
	return p
}

// Run processes doc. Conversion and extraction failures are returned as
// *common.AppError; every file created for or by the run is removed on return.
func (p *Pipeline) Run(ctx context.Context, doc Document) (*Result, error) {
	logger := common.LoggerFromContext(ctx, p.logger).With("document", doc.OriginalName)
	session := artifact.NewSession(logger)
	session.Track(doc.StoredPath)
	defer session.Release()

	run := &runState{p: p, logger: logger}
	run.enter(constants.StageReceived)

	run.enter(constants.StageNormalizing)
	raster, err := p.normalizer.Normalize(ctx, doc, session, logger)
	if err != nil {
		return nil, run.fail(err)
	}
	run.done()

	run.enter(constants.StageExtracting)
	text, err := p.recognizer.RecognizeText(ctx, raster)
	if err != nil {
		var appErr *common.AppError
		if !errors.As(err, &appErr) {
			err = common.NewOCRError(err)
		}
		return nil, run.fail(err)
	}
	run.done()

	run.enter(constants.StageParsing)
	names := p.parser.Parse(text)
	if p.observer != nil {
		p.observer.ObserveExams(len(names))
	}
	logger.Debug("exams parsed", "count", len(names), "text_bytes", len(text))
	run.done()

	run.enter(constants.StageResolving)
	rendered := deadline.RenderAll(p.resolver.Resolve(ctx, names))
	run.done()

	result := &Result{Exams: rendered, RequiresSignature: deadline.RequiresSignature(rendered)}
	run.enter(constants.StageCompleted)
	if p.observer != nil {
		p.observer.ObserveRun("completed")
	}
	logger.Info("document processed", "exams", len(rendered), "requires_signature", result.RequiresSignature)
	return result, nil
}

type runState struct {
	p       *Pipeline
	logger  *slog.Logger
	stage   constants.Stage
	started time.Time
}

func (r *runState) enter(s constants.Stage) {
	r.stage = s
	r.started = time.Now()
	r.logger.Debug("pipeline state", "state", string(s))
}

func (r *runState) done() {
	if r.p.observer != nil {
		r.p.observer.ObserveStage(string(r.stage), time.Since(r.started))
	}
}

func (r *runState) fail(err error) error {
	r.done()
	r.logger.Error("pipeline failed",
		"state", string(constants.StageFailed),
		"stage", string(r.stage),
		"code", common.ErrorCode(err),
		"error", err,
	)
	if r.p.observer != nil {
		r.p.observer.ObserveRun("failed_" + strings.ToLower(string(r.stage)))
	}
	return err
}
