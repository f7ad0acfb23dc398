package export

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/core/deadline"
	"github.com/joseph-ayodele/exams-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

type fakeLister struct {
	recs     []*entity.Consultation
	from, to time.Time
}

func (f *fakeLister) ListBetween(_ context.Context, from, to time.Time) ([]*entity.Consultation, error) {
	f.from, f.to = from, to
	return f.recs, nil
}

func resultJSON(t *testing.T, exams ...deadline.ExamResolution) []byte {
	t.Helper()
	b, err := json.Marshal(pipeline.Result{Exams: exams, RequiresSignature: deadline.RequiresSignature(exams)})
	require.NoError(t, err)
	return b
}

func TestExportConsultationsXLSX(t *testing.T) {
	created := time.Date(2026, 5, 2, 14, 30, 0, 0, time.UTC)
	lister := &fakeLister{recs: []*entity.Consultation{
		{
			Protocol:          "UNIAGENDE-20260502-abcdef12",
			OriginalName:      "pedido.pdf",
			RequiresSignature: true,
			CreatedAt:         created,
			Result: resultJSON(t,
				deadline.ExamResolution{ExamName: "HEMOGRAMA COMPLETO", SignatureTypeCode: constants.ClassNone, Deadline: constants.DeadlineNone},
				deadline.ExamResolution{ExamName: "RESSONANCIA", SignatureTypeCode: constants.ClassSpecial, Deadline: constants.DeadlineSpecial, RequiresSignature: true},
			),
		},
		{
			Protocol:     "UNIAGENDE-20260502-00000000",
			OriginalName: "vazio.png",
			CreatedAt:    created,
			Result:       resultJSON(t),
		},
	}}
	svc := NewService(lister, nil)

	from := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 2, 1, 0, 0, 0, time.UTC)
	b, err := svc.ExportConsultationsXLSX(context.Background(), &from, &to)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), lister.from)
	assert.Equal(t, time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC), lister.to)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Protocol", rows[0][0])
	assert.Equal(t, []string{"UNIAGENDE-20260502-abcdef12", "2026-05-02 14:30:00", "pedido.pdf", "HEMOGRAMA COMPLETO", "NONE", "0 days", "yes"}, rows[1])
	assert.Equal(t, "10 days", rows[2][5])
	assert.Equal(t, "UNIAGENDE-20260502-00000000", rows[3][0])
	assert.Equal(t, "no", rows[3][len(rows[3])-1])
}

func TestExportDefaultsAndValidation(t *testing.T) {
	lister := &fakeLister{}
	svc := NewService(lister, nil)
	svc.now = func() time.Time { return time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC) }

	_, err := svc.ExportConsultationsXLSX(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0).UTC(), lister.from)
	assert.Equal(t, time.Date(2026, 6, 11, 0, 0, 0, 0, time.UTC), lister.to)

	from := time.Date(2026, 6, 12, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.ExportConsultationsXLSX(context.Background(), &from, &to)
	require.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "ção…", truncate("çãoxyz", 4))
}
