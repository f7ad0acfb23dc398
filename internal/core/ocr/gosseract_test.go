//go:build gosseract

package ocr

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGosseractDefaults(t *testing.T) {
	rec, err := NewRecognizer("gosseract", RecognizerConfig{}, nil, nil)
	require.NoError(t, err)
	g, ok := rec.(*Gosseract)
	require.True(t, ok)
	assert.Equal(t, "por", g.cfg.Lang)
	assert.Equal(t, 1, g.cfg.OEM)
	assert.Equal(t, 3, g.cfg.PSM)
}

func TestEngineModeConfig(t *testing.T) {
	path, err := engineModeConfig(1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tessedit_ocr_engine_mode 1\n", string(b))
}

func TestGosseractReadsImageBeforeRecognizing(t *testing.T) {
	g := &Gosseract{cfg: RecognizerConfig{}.withDefaults()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.RecognizeText(ctx, filepath.Join(t.TempDir(), "absent.png"))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = g.RecognizeText(context.Background(), filepath.Join(t.TempDir(), "absent.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
