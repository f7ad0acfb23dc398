//go:build gosseract

package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/otiai10/gosseract/v2"
)

func init() {
	RegisterEngine("gosseract", func(cfg RecognizerConfig, _ Runner, logger *slog.Logger) (Recognizer, error) {
		if logger == nil {
			logger = slog.Default()
		}
		return &Gosseract{cfg: cfg.withDefaults(), logger: logger}, nil
	})
}

// Gosseract runs libtesseract in-process. Tessdata comes from TessdataDir or,
// when empty, the TESSDATA_PREFIX environment variable.
type Gosseract struct {
	cfg    RecognizerConfig
	logger *slog.Logger
}

// RecognizeText loads the image before returning control to the caller's
// context, so a cancelled run can delete the file while recognition finishes
// in the background.
func (g *Gosseract) RecognizeText(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("gosseract image: %w", err)
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := g.recognize(img)
		done <- result{text, err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

func (g *Gosseract) recognize(img []byte) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(g.cfg.Lang); err != nil {
		return "", fmt.Errorf("gosseract language: %w", err)
	}
	if g.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(g.cfg.TessdataDir); err != nil {
			return "", fmt.Errorf("gosseract tessdata: %w", err)
		}
	}
	if g.cfg.OEM >= 0 {
		// The engine mode is init-only; libtesseract reads it from a config file.
		conf, err := engineModeConfig(g.cfg.OEM)
		if err != nil {
			return "", err
		}
		defer os.Remove(conf)
		if err := client.SetConfigFile(conf); err != nil {
			return "", fmt.Errorf("gosseract oem: %w", err)
		}
	}
	if g.cfg.PSM >= 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(g.cfg.PSM)); err != nil {
			return "", fmt.Errorf("gosseract psm: %w", err)
		}
	}
	if err := client.SetImageFromBytes(img); err != nil {
		return "", fmt.Errorf("gosseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("gosseract: %w", err)
	}
	g.logger.Debug("gosseract ok", "bytes", len(text))
	return text, nil
}

func engineModeConfig(oem int) (string, error) {
	f, err := os.CreateTemp("", "gosseract-oem-*.conf")
	if err != nil {
		return "", fmt.Errorf("gosseract oem config: %w", err)
	}
	_, werr := f.WriteString("tessedit_ocr_engine_mode " + strconv.Itoa(oem) + "\n")
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("gosseract oem config: %w", err)
	}
	return f.Name(), nil
}
