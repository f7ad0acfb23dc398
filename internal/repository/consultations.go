package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

var consultationColumns = []string{
	"id", "protocol", "original_name", "requires_signature", "exam_count", "result_json", "created_at",
}

type ConsultationRepository interface {
	Create(ctx context.Context, c *entity.Consultation) error
	GetByProtocol(ctx context.Context, protocol string) (*entity.Consultation, error)
	// ListBetween returns consultations created in [from, to), oldest first.
	ListBetween(ctx context.Context, from, to time.Time) ([]*entity.Consultation, error)
}

type consultationRepository struct {
	db     *DB
	logger *slog.Logger
	now    func() time.Time
}

func NewConsultationRepository(db *DB, logger *slog.Logger) ConsultationRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &consultationRepository{db: db, logger: logger, now: time.Now}
}

func (r *consultationRepository) Create(ctx context.Context, c *entity.Consultation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	// Second precision in UTC keeps SQLite's textual timestamps ordered.
	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Second)
	result := c.Result
	if len(result) == 0 {
		result = []byte("null")
	}

	q, args := entsql.Dialect(r.db.Dialect).
		Insert(tableConsultations).
		Columns(consultationColumns...).
		Values(c.ID.String(), c.Protocol, c.OriginalName, c.RequiresSignature, c.ExamCount, string(result), c.CreatedAt).
		Query()
	if err := r.db.Driver.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to create consultation", "protocol", c.Protocol, "error", err)
		return fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	r.logger.Debug("consultation created", "id", c.ID, "protocol", c.Protocol)
	return nil
}

func (r *consultationRepository) GetByProtocol(ctx context.Context, protocol string) (*entity.Consultation, error) {
	q, args := entsql.Dialect(r.db.Dialect).
		Select(consultationColumns...).
		From(entsql.Table(tableConsultations)).
		Where(entsql.EQ("protocol", protocol)).
		Limit(1).
		Query()
	list, err := r.query(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("consultation %q: %w", protocol, common.ErrNotFound)
	}
	return list[0], nil
}

func (r *consultationRepository) ListBetween(ctx context.Context, from, to time.Time) ([]*entity.Consultation, error) {
	q, args := entsql.Dialect(r.db.Dialect).
		Select(consultationColumns...).
		From(entsql.Table(tableConsultations)).
		Where(entsql.And(
			entsql.GTE("created_at", from.UTC().Truncate(time.Second)),
			entsql.LT("created_at", to.UTC().Truncate(time.Second)),
		)).
		OrderBy("created_at", "protocol").
		Query()
	return r.query(ctx, q, args)
}

func (r *consultationRepository) query(ctx context.Context, q string, args []any) ([]*entity.Consultation, error) {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to query consultations", "error", err)
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.Consultation
	for rows.Next() {
		var (
			c      entity.Consultation
			id     string
			result string
		)
		if err := rows.Scan(&id, &c.Protocol, &c.OriginalName, &c.RequiresSignature, &c.ExamCount, &result, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("consultation id %q: %w", id, err)
		}
		c.ID = parsed
		c.Result = []byte(result)
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrDatabase, err)
	}
	return out, nil
}
