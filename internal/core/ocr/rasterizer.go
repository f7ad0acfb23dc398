package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rasterizer renders the first page of a paginated document to an image.
type Rasterizer interface {
	// ExpectedOutput is the path FirstPageToRaster normally produces for pdfPath.
	// Callers track it before rendering so partial output is cleaned up on failure.
	ExpectedOutput(pdfPath string) string
	FirstPageToRaster(ctx context.Context, pdfPath string) (string, error)
}

// PageCounter reports the page count of a PDF. Used for diagnostics only.
type PageCounter func(path string) (int, error)

type PdftoppmConfig struct {
	Bin string // binary name or absolute path; if empty -> "pdftoppm"
	DPI int    // default 300
}

// Pdftoppm rasterizes with poppler's pdftoppm next to the input file.
type Pdftoppm struct {
	cfg        PdftoppmConfig
	runner     Runner
	logger     *slog.Logger
	countPages PageCounter
}

func NewPdftoppm(cfg PdftoppmConfig, runner Runner, logger *slog.Logger) *Pdftoppm {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(0)
	}
	if cfg.Bin == "" {
		cfg.Bin = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Pdftoppm{cfg: cfg, runner: runner, logger: logger, countPages: api.PageCountFile}
}

// WithPageCounter replaces the pdfcpu page counter; nil disables the check.
func (p *Pdftoppm) WithPageCounter(c PageCounter) *Pdftoppm {
	p.countPages = c
	return p
}

func (p *Pdftoppm) outputPrefix(pdfPath string) string {
	base := filepath.Base(pdfPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(pdfPath), "converted-"+stem)
}

func (p *Pdftoppm) ExpectedOutput(pdfPath string) string {
	return p.outputPrefix(pdfPath) + "-1.png"
}

// FirstPageToRaster runs
//
//	pdftoppm -png -r <dpi> -f 1 -l 1 <in> <dir>/converted-<stem>
//
// and returns the rendered PNG. pdftoppm zero-pads the page suffix for long
// documents, so a single "<prefix>-*.png" match is accepted too.
func (p *Pdftoppm) FirstPageToRaster(ctx context.Context, pdfPath string) (string, error) {
	p.logPageCount(pdfPath)

	prefix := p.outputPrefix(pdfPath)
	args := []string{"-png", "-r", strconv.Itoa(p.cfg.DPI), "-f", "1", "-l", "1", pdfPath, prefix}
	if _, errb, err := p.runner.Run(ctx, p.cfg.Bin, p.logger, args...); err != nil {
		p.removePartials(prefix)
		return "", fmt.Errorf("pdftoppm %s: %w: %s", pdfPath, err, truncate(strings.TrimSpace(string(errb)), 1<<10))
	}

	out := p.ExpectedOutput(pdfPath)
	if st, err := os.Stat(out); err == nil && !st.IsDir() {
		return out, nil
	}
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return "", fmt.Errorf("pdftoppm output lookup: %w", err)
	}
	if len(matches) == 0 {
		return "", errors.New("pdftoppm produced no output")
	}
	sort.Strings(matches)
	p.logger.Debug("pdftoppm output has padded page suffix", "path", matches[0])
	return matches[0], nil
}

func (p *Pdftoppm) logPageCount(pdfPath string) {
	if p.countPages == nil {
		return
	}
	n, err := p.countPages(pdfPath)
	if err != nil {
		p.logger.Debug("page count unavailable", "path", pdfPath, "error", err)
		return
	}
	if n > 1 {
		p.logger.Info("extra pages ignored", "path", pdfPath, "pages", n)
	}
}

func (p *Pdftoppm) removePartials(prefix string) {
	matches, _ := filepath.Glob(prefix + "-*.png")
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove partial raster", "path", m, "error", err)
		}
	}
}
