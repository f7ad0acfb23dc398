package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exams-tracker/internal/cache"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := common.DefaultConfig()
	cfg.Database.DSN = "file:" + filepath.Join(dir, "exams.db") + "?_pragma=busy_timeout(5000)"
	cfg.Upload.Dir = filepath.Join(dir, "uploads")
	return cfg
}

func TestNewAssemblesComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Backend = "memory"

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Intake)
	assert.NotNil(t, a.Export)
	assert.IsType(t, &cache.MemoryClient{}, a.Cache)
	require.NoError(t, a.HealthCheck(context.Background()))

	im, err := a.Importer()
	require.NoError(t, err)
	assert.NotNil(t, im)
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.OCR.Engine = "abbyy"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Equal(t, "CONFIG_ERROR", common.ErrorCode(err))
}

func TestNewRejectsBadParserPattern(t *testing.T) {
	cfg := testConfig(t)
	cfg.Parser.Anchor = "("

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewCache(t *testing.T) {
	c, err := NewCache(context.Background(), common.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = NewCache(context.Background(), common.CacheConfig{Backend: "memcached"})
	require.Error(t, err)
}
