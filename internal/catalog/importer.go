// Package catalog loads the procedure catalog from its ';' separated CSV export.
package catalog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/exams-tracker/internal/cache"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/deadline"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

const bom = "\uFEFF"

// absurdDate matches values such as "+275760-09-13" that some exports emit.
var absurdDate = regexp.MustCompile(`^\+?\d{5,}`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
}

// Store receives the parsed procedures.
type Store interface {
	BulkInsert(ctx context.Context, procs []*entity.Procedure) (int, error)
}

// Report summarizes one import.
type Report struct {
	Rows     int `json:"rows"`
	Rejected int `json:"rejected"`
	Inserted int `json:"inserted"`
}

type Importer struct {
	store  Store
	cache  cache.Client
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewImporter builds an importer. c may be nil when no lookup cache is in use.
func NewImporter(store Store, c cache.Client, logger *slog.Logger) (*Importer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := compileSchema(rowSchema)
	if err != nil {
		return nil, err
	}
	return &Importer{store: store, cache: c, schema: schema, logger: logger}, nil
}

func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open catalog: %w", common.ErrInvalidInput, err)
	}
	defer f.Close()
	im.logger.Info("importing catalog", "path", path)
	return im.Import(ctx, f)
}

// Import reads the CSV, validates each row and inserts the valid ones.
// Rows already present (same code and terminology) are skipped by the store.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		im.logger.Warn("catalog file is empty")
		return &Report{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", common.ErrInvalidInput, err)
	}
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, bom)
		}
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	report := &Report{}
	var procs []*entity.Procedure
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: read row %d: %w", common.ErrInvalidInput, report.Rows+2, err)
		}
		report.Rows++
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		if err := validateRow(im.schema, row); err != nil {
			report.Rejected++
			im.logger.Warn("catalog row rejected", "line", report.Rows+1, "error", err)
			continue
		}
		procs = append(procs, toProcedure(row))
	}

	if len(procs) == 0 {
		im.logger.Warn("no catalog rows to import", "rows", report.Rows, "rejected", report.Rejected)
		return report, nil
	}
	n, err := im.store.BulkInsert(ctx, procs)
	if err != nil {
		return nil, err
	}
	report.Inserted = n

	if im.cache != nil {
		if err := im.cache.DeleteByPrefix(ctx, deadline.CacheKeyPrefix); err != nil {
			im.logger.Warn("failed to invalidate catalog cache", "error", err)
		}
	}
	im.logger.Info("catalog import finished", "rows", report.Rows, "rejected", report.Rejected, "inserted", report.Inserted)
	return report, nil
}

func toProcedure(row map[string]string) *entity.Procedure {
	p := &entity.Procedure{
		Code:                row["codigo"],
		Terminology:         row["terminologia_eventos"],
		Correlation:         parseBool(row["correlacao"]),
		ProcedureName:       row["procedimento"],
		NormativeResolution: row["resolucao_normativa"],
		EffectiveFrom:       parseDateSafe(row["vigencia"]),
		OD:                  row["od"],
		AMB:                 row["amb"],
		HCO:                 row["hco"],
		HSO:                 row["hso"],
		PAC:                 row["pac"],
		DUT:                 row["dut"],
		Subgroup:            row["subgrupo"],
		Group:               row["grupo"],
		Chapter:             row["capitulo"],
	}
	if s := row["tipo_assinatura"]; s != "" {
		p.SignatureType = &s
	}
	return p
}

func parseBool(s string) *bool {
	var b bool
	switch s {
	case "true":
		b = true
	case "false":
	default:
		return nil
	}
	return &b
}

// parseDateSafe returns nil for empty, unparseable or absurd dates.
func parseDateSafe(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || absurdDate.MatchString(s) {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
