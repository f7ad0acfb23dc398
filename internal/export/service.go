package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

const sheet = "Consultations"

// Lister is the subset of the consultation repository the export needs.
type Lister interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]*entity.Consultation, error)
}

// Service produces XLSX bytes for consultation exports.
type Service struct {
	repo   Lister
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo Lister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// ExportConsultationsXLSX returns a workbook with one row per requested exam.
// Both bounds are whole UTC days and inclusive.
// If only from is provided -> from..today.
// If only to is provided   -> beginning..to.
// If neither is provided   -> everything up to today.
func (s *Service) ExportConsultationsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	lower := time.Unix(0, 0).UTC()
	if from != nil {
		lower = dateOnly(*from)
	}
	upper := dateOnly(s.now())
	if to != nil {
		upper = dateOnly(*to)
	}
	if upper.Before(lower) {
		return nil, fmt.Errorf("export window: to %s is before from %s", upper.Format(time.DateOnly), lower.Format(time.DateOnly))
	}

	recs, err := s.repo.ListBetween(ctx, lower, upper.AddDate(0, 0, 1))
	if err != nil {
		return nil, common.WrapError(err, "query consultations")
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Protocol",
		"Created At",
		"Original File",
		"Exam",
		"Signature Type",
		"Deadline",
		"Requires Signature",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for _, c := range recs {
		var res pipeline.Result
		if len(c.Result) > 0 {
			if err := json.Unmarshal(c.Result, &res); err != nil {
				s.logger.Warn("export: unreadable consultation result", "protocol", c.Protocol, "error", err)
			}
		}

		requires := "no"
		if c.RequiresSignature {
			requires = "yes"
		}
		if len(res.Exams) == 0 {
			write(1, c.Protocol)
			write(2, c.CreatedAt.UTC().Format(time.DateTime))
			write(3, c.OriginalName)
			write(7, requires)
			row++
			continue
		}
		for _, e := range res.Exams {
			write(1, c.Protocol)
			write(2, c.CreatedAt.UTC().Format(time.DateTime))
			write(3, c.OriginalName)
			write(4, truncate(e.ExamName, 140))
			write(5, string(e.SignatureTypeCode))
			write(6, e.Deadline)
			write(7, requires)
			row++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 30) // protocol
	_ = f.SetColWidth(sheet, "B", "B", 20)
	_ = f.SetColWidth(sheet, "C", "C", 28)
	_ = f.SetColWidth(sheet, "D", "D", 60) // exam
	_ = f.SetColWidth(sheet, "E", "G", 18)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"consultations", len(recs),
		"rows", row-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
