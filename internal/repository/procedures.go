package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

var procedureColumns = []string{
	"id", "code", "terminology", "correlation", "procedure_name", "normative_resolution",
	"effective_from", "od", "amb", "hco", "hso", "pac", "dut", "subgroup", "group_name",
	"chapter", "signature_type",
}

// insertBatchSize keeps bound parameters well under SQLite's limit.
const insertBatchSize = 500

type ProcedureRepository interface {
	// FindByTerminology returns the first procedure, ordered by code, whose
	// terminology contains name case-insensitively.
	FindByTerminology(ctx context.Context, name string) (*entity.Procedure, error)
	// BulkInsert inserts procs, skipping rows whose (code, terminology) already exists.
	BulkInsert(ctx context.Context, procs []*entity.Procedure) (int, error)
	Count(ctx context.Context) (int, error)
}

type procedureRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewProcedureRepository(db *DB, logger *slog.Logger) ProcedureRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &procedureRepository{db: db, logger: logger}
}

func (r *procedureRepository) FindByTerminology(ctx context.Context, name string) (*entity.Procedure, error) {
	q, args := entsql.Dialect(r.db.Dialect).
		Select(procedureColumns...).
		From(entsql.Table(tableProcedures)).
		Where(entsql.ContainsFold("terminology", name)).
		OrderBy("code", "id").
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to query procedures", "name", name, "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
		return nil, fmt.Errorf("procedure %q: %w", name, common.ErrNotFound)
	}
	p, err := scanProcedure(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return p, nil
}

func scanProcedure(rows entsql.Rows) (*entity.Procedure, error) {
	var (
		p                                   entity.Procedure
		id                                  string
		correlation                         sql.NullBool
		effectiveFrom                       sql.NullTime
		procName, resolution                sql.NullString
		od, amb, hco, hso, pac, dut         sql.NullString
		subgroup, group, chapter, signature sql.NullString
	)
	if err := rows.Scan(&id, &p.Code, &p.Terminology, &correlation, &procName, &resolution,
		&effectiveFrom, &od, &amb, &hco, &hso, &pac, &dut, &subgroup, &group, &chapter, &signature); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("procedure id %q: %w", id, err)
	}
	p.ID = parsed
	if correlation.Valid {
		p.Correlation = &correlation.Bool
	}
	if effectiveFrom.Valid {
		t := effectiveFrom.Time.UTC()
		p.EffectiveFrom = &t
	}
	p.ProcedureName = procName.String
	p.NormativeResolution = resolution.String
	p.OD, p.AMB, p.HCO, p.HSO, p.PAC, p.DUT = od.String, amb.String, hco.String, hso.String, pac.String, dut.String
	p.Subgroup, p.Group, p.Chapter = subgroup.String, group.String, chapter.String
	if signature.Valid {
		p.SignatureType = &signature.String
	}
	return &p, nil
}

func (r *procedureRepository) BulkInsert(ctx context.Context, procs []*entity.Procedure) (int, error) {
	if len(procs) == 0 {
		return 0, nil
	}
	tx, err := r.db.Driver.Tx(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}

	inserted := 0
	for start := 0; start < len(procs); start += insertBatchSize {
		end := min(start+insertBatchSize, len(procs))
		ins := entsql.Dialect(r.db.Dialect).
			Insert(tableProcedures).
			Columns(procedureColumns...)
		for _, p := range procs[start:end] {
			if p.ID == uuid.Nil {
				p.ID = uuid.New()
			}
			ins.Values(procedureValues(p)...)
		}
		ins.OnConflict(entsql.DoNothing())
		q, args := ins.Query()

		var res sql.Result
		if err := tx.Exec(ctx, q, args, &res); err != nil {
			_ = tx.Rollback()
			r.logger.Error("failed to insert procedures", "batch_start", start, "error", err)
			return 0, fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	r.logger.Info("procedures inserted", "rows", len(procs), "inserted", inserted)
	return inserted, nil
}

func procedureValues(p *entity.Procedure) []any {
	return []any{
		p.ID.String(), p.Code, p.Terminology, nullBool(p.Correlation), nullString(p.ProcedureName),
		nullString(p.NormativeResolution), nullTime(p.EffectiveFrom), nullString(p.OD), nullString(p.AMB),
		nullString(p.HCO), nullString(p.HSO), nullString(p.PAC), nullString(p.DUT), nullString(p.Subgroup),
		nullString(p.Group), nullString(p.Chapter), nullStringPtr(p.SignatureType),
	}
}

func (r *procedureRepository) Count(ctx context.Context) (int, error) {
	q, args := entsql.Dialect(r.db.Dialect).
		Select(entsql.Count("*")).
		From(entsql.Table(tableProcedures)).
		Query()
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	n := 0
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
	}
	return n, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
