package repository

import (
	"context"
	"log/slog"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/exams-tracker/internal/common"
)

const (
	tableProcedures    = "procedures"
	tableConsultations = "consultations"
)

// textColumn is unbounded text on every dialect. Plain field.TypeString
// becomes varchar on postgres.
func textColumn(name string, nullable bool) *schema.Column {
	return &schema.Column{
		Name:       name,
		Type:       field.TypeString,
		SchemaType: map[string]string{dialect.Postgres: "text"},
		Nullable:   nullable,
	}
}

// Tables returns the schema managed by Migrate.
func Tables() []*schema.Table {
	procedures := schema.NewTable(tableProcedures).
		AddPrimary(textColumn("id", false)).
		AddColumn(textColumn("code", false)).
		AddColumn(textColumn("terminology", false)).
		AddColumn(&schema.Column{Name: "correlation", Type: field.TypeBool, Nullable: true}).
		AddColumn(textColumn("procedure_name", true)).
		AddColumn(textColumn("normative_resolution", true)).
		AddColumn(&schema.Column{Name: "effective_from", Type: field.TypeTime, Nullable: true}).
		AddColumn(textColumn("od", true)).
		AddColumn(textColumn("amb", true)).
		AddColumn(textColumn("hco", true)).
		AddColumn(textColumn("hso", true)).
		AddColumn(textColumn("pac", true)).
		AddColumn(textColumn("dut", true)).
		AddColumn(textColumn("subgroup", true)).
		AddColumn(textColumn("group_name", true)).
		AddColumn(textColumn("chapter", true)).
		AddColumn(textColumn("signature_type", true)).
		AddIndex("procedures_code_terminology_key", true, []string{"code", "terminology"})

	originalName := textColumn("original_name", false)
	originalName.Default = ""
	consultations := schema.NewTable(tableConsultations).
		AddPrimary(textColumn("id", false)).
		AddColumn(textColumn("protocol", false)).
		AddColumn(originalName).
		AddColumn(&schema.Column{Name: "requires_signature", Type: field.TypeBool}).
		AddColumn(&schema.Column{Name: "exam_count", Type: field.TypeInt}).
		AddColumn(textColumn("result_json", false)).
		AddColumn(&schema.Column{Name: "created_at", Type: field.TypeTime}).
		AddIndex("consultations_protocol_key", true, []string{"protocol"}).
		AddIndex("consultations_created_at_idx", false, []string{"created_at"})

	return []*schema.Table{procedures, consultations}
}

// Migrate creates or extends the tables and indexes through ent's migration
// engine. It only appends, so running it on every start is safe.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(db.Driver, schema.WithForeignKeys(false))
	if err != nil {
		return common.WrapError(err, "migrate")
	}
	if err := m.Create(ctx, Tables()...); err != nil {
		logger.Error("schema migration failed", "error", err)
		return common.WrapError(err, "migrate")
	}
	logger.Info("database schema ready", "dialect", db.Dialect)
	return nil
}
