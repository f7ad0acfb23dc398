package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exams-tracker/internal/cache"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

type fakeStore struct {
	got []*entity.Procedure
	err error
}

func (f *fakeStore) BulkInsert(_ context.Context, procs []*entity.Procedure) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.got = append(f.got, procs...)
	return len(procs), nil
}

const sampleCSV = "\uFEFFcodigo;terminologia_eventos;correlacao;procedimento;vigencia;grupo;tipo_assinatura\n" +
	"40304361;HEMOGRAMA COM CONTAGEM DE PLAQUETAS;true;Hemograma;2021-04-01;Exames;S/A\n" +
	"40302040;GLICOSE;false;Glicose;+275760-09-13;Exames;A\n" +
	";SEM CODIGO;;;;;\n" +
	"40399999;EXAME SEM TIPO;;;01/02/2020;;\n"

func TestImport(t *testing.T) {
	store := &fakeStore{}
	im, err := NewImporter(store, nil, nil)
	require.NoError(t, err)

	report, err := im.Import(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, Report{Rows: 4, Rejected: 1, Inserted: 3}, *report)
	require.Len(t, store.got, 3)

	first := store.got[0]
	assert.Equal(t, "40304361", first.Code)
	assert.Equal(t, "HEMOGRAMA COM CONTAGEM DE PLAQUETAS", first.Terminology)
	require.NotNil(t, first.Correlation)
	assert.True(t, *first.Correlation)
	require.NotNil(t, first.EffectiveFrom)
	assert.Equal(t, time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC), *first.EffectiveFrom)
	assert.Equal(t, "S/A", first.SignatureCode())

	second := store.got[1]
	require.NotNil(t, second.Correlation)
	assert.False(t, *second.Correlation)
	assert.Nil(t, second.EffectiveFrom, "absurd dates become null")

	third := store.got[2]
	assert.Nil(t, third.Correlation)
	assert.Nil(t, third.SignatureType)
	require.NotNil(t, third.EffectiveFrom)
	assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), *third.EffectiveFrom)
}

func TestImportInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryClient(10)
	require.NoError(t, c.Set(ctx, "catalog:glicose", []byte("null"), time.Minute))
	require.NoError(t, c.Set(ctx, "other", []byte("1"), time.Minute))

	im, err := NewImporter(&fakeStore{}, c, nil)
	require.NoError(t, err)
	_, err = im.Import(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	_, err = c.Get(ctx, "catalog:glicose")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
	_, err = c.Get(ctx, "other")
	assert.NoError(t, err)
}

func TestImportEdgeCases(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		im, err := NewImporter(&fakeStore{}, nil, nil)
		require.NoError(t, err)
		report, err := im.Import(context.Background(), strings.NewReader(""))
		require.NoError(t, err)
		assert.Zero(t, report.Rows)
	})

	t.Run("header only", func(t *testing.T) {
		store := &fakeStore{}
		im, err := NewImporter(store, nil, nil)
		require.NoError(t, err)
		report, err := im.Import(context.Background(), strings.NewReader("codigo;terminologia_eventos\n"))
		require.NoError(t, err)
		assert.Zero(t, report.Inserted)
		assert.Empty(t, store.got)
	})

	t.Run("store failure", func(t *testing.T) {
		boom := errors.New("boom")
		im, err := NewImporter(&fakeStore{err: boom}, nil, nil)
		require.NoError(t, err)
		_, err = im.Import(context.Background(), strings.NewReader(sampleCSV))
		require.ErrorIs(t, err, boom)
	})

	t.Run("missing file", func(t *testing.T) {
		im, err := NewImporter(&fakeStore{}, nil, nil)
		require.NoError(t, err)
		_, err = im.ImportFile(context.Background(), "/nonexistent/proc.csv")
		require.Error(t, err)
	})
}

func TestParseDateSafe(t *testing.T) {
	assert.Nil(t, parseDateSafe(""))
	assert.Nil(t, parseDateSafe("not a date"))
	assert.Nil(t, parseDateSafe("99999-01-01"))
	require.NotNil(t, parseDateSafe("2022-10-03T00:00:00Z"))
}
