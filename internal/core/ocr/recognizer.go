package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Recognizer turns a raster image into plain text.
type Recognizer interface {
	RecognizeText(ctx context.Context, imagePath string) (string, error)
}

type RecognizerConfig struct {
	Bin         string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "por"
	OEM         int    // 0 -> 1 (LSTM); negative omits --oem
	PSM         int    // 0 -> 3 (automatic segmentation); negative omits --psm
	TessdataDir string
}

const (
	defaultOEM = 1
	defaultPSM = 3
)

// withDefaults fills the zero values. PSM 0 is orientation detection only and
// yields no text, so zero is never passed through.
func (c RecognizerConfig) withDefaults() RecognizerConfig {
	if c.Lang == "" {
		c.Lang = "por"
	}
	if c.OEM == 0 {
		c.OEM = defaultOEM
	}
	if c.PSM == 0 {
		c.PSM = defaultPSM
	}
	return c
}

// EngineFactory builds a Recognizer for a named engine.
type EngineFactory func(cfg RecognizerConfig, runner Runner, logger *slog.Logger) (Recognizer, error)

var (
	enginesMu sync.RWMutex
	engines   = map[string]EngineFactory{
		"tesseract": func(cfg RecognizerConfig, runner Runner, logger *slog.Logger) (Recognizer, error) {
			return NewTesseract(cfg, runner, logger), nil
		},
	}
)

// RegisterEngine makes an engine selectable by name. Later registrations win.
func RegisterEngine(name string, f EngineFactory) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = f
}

// Engines lists the registered engine names.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for n := range engines {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func NewRecognizer(engine string, cfg RecognizerConfig, runner Runner, logger *slog.Logger) (Recognizer, error) {
	enginesMu.RLock()
	f, ok := engines[engine]
	enginesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ocr engine %q is not available (have: %s)", engine, strings.Join(Engines(), ", "))
	}
	return f(cfg, runner, logger)
}

// Tesseract shells out to the tesseract CLI and reads text from stdout.
type Tesseract struct {
	cfg    RecognizerConfig
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg RecognizerConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(0)
	}
	cfg = cfg.withDefaults()
	if cfg.Bin == "" {
		cfg.Bin = "tesseract"
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

// Args returns the command arguments used for imagePath.
func (t *Tesseract) Args(imagePath string) []string {
	args := []string{imagePath, "stdout", "-l", t.cfg.Lang}
	if t.cfg.OEM >= 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.PSM >= 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return args
}

func (t *Tesseract) RecognizeText(ctx context.Context, imagePath string) (string, error) {
	out, errb, err := t.runner.Run(ctx, t.cfg.Bin, t.logger, t.Args(imagePath)...)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", filepath.Base(imagePath), err, truncate(strings.TrimSpace(string(errb)), 1<<10))
	}
	return string(out), nil
}
