package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
	"github.com/joseph-ayodele/exams-tracker/internal/core/deadline"
	"github.com/joseph-ayodele/exams-tracker/internal/core/exams"
	"github.com/joseph-ayodele/exams-tracker/internal/core/ocr"
	"github.com/joseph-ayodele/exams-tracker/internal/entity"
)

const sampleText = "Exames Laboratoriais\nHemograma completo\nRessonância magnética - crânio\nExame raro\n\nDR SILVA\nCRM 1234"

type pdftoppmRunner struct {
	fail    bool
	partial bool
}

func (r pdftoppmRunner) Run(_ context.Context, _ string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	prefix := args[len(args)-1]
	if r.fail {
		if r.partial {
			_ = os.WriteFile(prefix+"-1.png", []byte("half"), 0o600)
		}
		return nil, []byte("I/O Error: Couldn't open file"), errors.New("exit status 1")
	}
	return nil, nil, os.WriteFile(prefix+"-1.png", []byte("png"), 0o600)
}

type fakeRecognizer struct {
	mu    sync.Mutex
	text  string
	err   error
	paths []string
}

func (f *fakeRecognizer) RecognizeText(_ context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("image missing during recognition: %w", err)
	}
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	return f.text, f.err
}

type mapCatalog map[string]string

func (m mapCatalog) FindByTerminology(_ context.Context, name string) (*entity.Procedure, error) {
	for term, code := range m {
		if strings.Contains(strings.ToLower(term), strings.ToLower(name)) {
			c := code
			return &entity.Procedure{Terminology: term, SignatureType: &c}, nil
		}
	}
	return nil, common.ErrNotFound
}

type recordingObserver struct {
	mu     sync.Mutex
	runs   []string
	stages []string
	exams  []int
}

func (o *recordingObserver) ObserveRun(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, outcome)
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) ObserveExams(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exams = append(o.exams, n)
}

func newPipeline(runner ocr.Runner, rec ocr.Recognizer) *Pipeline {
	raster := ocr.NewPdftoppm(ocr.PdftoppmConfig{}, runner, nil).WithPageCounter(nil)
	cat := mapCatalog{
		"Hemograma completo":              "S/A",
		"Ressonância magnética de crânio": "A",
	}
	return New(NewNormalizer(raster, nil), rec, exams.Default(), deadline.NewResolver(cat, deadline.Config{}, nil), nil)
}

func writeUpload(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("upload"), 0o600))
	return p
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_RasterPassthrough(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "3f1c.png")
	rec := &fakeRecognizer{text: sampleText}
	obs := &recordingObserver{}
	p := newPipeline(pdftoppmRunner{}, rec).WithObserver(obs)

	res, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "image/png", OriginalName: "pedido.png"})
	require.NoError(t, err)

	assert.Equal(t, []string{upload}, rec.paths, "raster input is read in place")
	require.Len(t, res.Exams, 3)
	assert.Equal(t, constants.ClassNone, res.Exams[0].SignatureTypeCode)
	assert.Equal(t, "Ressonância magnética - crânio", res.Exams[1].ExamName)
	assert.Equal(t, "5 days", res.Exams[1].Deadline)
	assert.Equal(t, constants.ClassNotFound, res.Exams[2].SignatureTypeCode)
	assert.True(t, res.RequiresSignature)

	assert.Empty(t, dirEntries(t, dir), "upload removed and nothing else created")
	assert.Equal(t, []string{"completed"}, obs.runs)
	assert.Equal(t, []int{3}, obs.exams)
	assert.Equal(t, []string{"NORMALIZING", "EXTRACTING", "PARSING", "RESOLVING"}, obs.stages)
}

func TestRun_PDFRasterizedAndCleanedUp(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "ab12")
	rec := &fakeRecognizer{text: sampleText}
	p := newPipeline(pdftoppmRunner{}, rec)

	res, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "application/pdf"})
	require.NoError(t, err)
	assert.Len(t, res.Exams, 3)

	require.Len(t, rec.paths, 1)
	assert.Equal(t, filepath.Join(dir, "converted-ab12-1.png"), rec.paths[0])
	assert.Empty(t, dirEntries(t, dir))
}

func TestRun_ConversionFailure(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "bad.pdf")
	rec := &fakeRecognizer{text: sampleText}
	obs := &recordingObserver{}
	p := newPipeline(pdftoppmRunner{fail: true, partial: true}, rec).WithObserver(obs)

	res, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "application/pdf"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrConversion)
	assert.Equal(t, common.CodeConversion, common.ErrorCode(err))
	assert.NotContains(t, common.PublicMessage(err), dir)

	assert.Empty(t, rec.paths, "extraction never starts")
	assert.Empty(t, dirEntries(t, dir))
	assert.Equal(t, []string{"failed_normalizing"}, obs.runs)
}

func TestRun_OCRFailureAfterConversion(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "scan.pdf")
	rec := &fakeRecognizer{err: errors.New("tesseract: exit status 1")}
	p := newPipeline(pdftoppmRunner{}, rec)

	_, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "application/pdf"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOCR)
	assert.Equal(t, common.CodeOCR, common.ErrorCode(err))
	assert.Empty(t, dirEntries(t, dir), "upload and raster both removed")
}

func TestRun_OCRFailureOnImage(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "photo.jpg")
	p := newPipeline(pdftoppmRunner{}, &fakeRecognizer{err: errors.New("boom")})

	_, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "image/jpeg"})
	assert.ErrorIs(t, err, common.ErrOCR)
	assert.Empty(t, dirEntries(t, dir))
}

func TestRun_NoExamBlock(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "x.png")
	p := newPipeline(pdftoppmRunner{}, &fakeRecognizer{text: "Receituário\nDipirona 500mg\n\nDR SILVA"})

	res, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "image/png"})
	require.NoError(t, err)
	assert.Empty(t, res.Exams)
	assert.NotNil(t, res.Exams)
	assert.False(t, res.RequiresSignature)
	assert.Empty(t, dirEntries(t, dir))
}

func TestRun_UnknownMediaTypePassesThrough(t *testing.T) {
	dir := t.TempDir()
	upload := writeUpload(t, dir, "blob")
	rec := &fakeRecognizer{text: sampleText}
	p := newPipeline(pdftoppmRunner{}, rec)

	_, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: "application/octet-stream"})
	require.NoError(t, err)
	assert.Equal(t, []string{upload}, rec.paths)
	assert.Empty(t, dirEntries(t, dir))
}

func TestRun_ConcurrentRunsAreIsolated(t *testing.T) {
	dir := t.TempDir()
	rec := &fakeRecognizer{text: sampleText}
	p := newPipeline(pdftoppmRunner{}, rec)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		mt, name := "image/png", fmt.Sprintf("img-%d.png", i)
		if i%2 == 0 {
			mt, name = "application/pdf", fmt.Sprintf("doc-%d.pdf", i)
		}
		upload := writeUpload(t, dir, name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.Run(context.Background(), Document{StoredPath: upload, MediaType: mt})
			if err == nil && len(res.Exams) != 3 {
				err = fmt.Errorf("%s: got %d exams", upload, len(res.Exams))
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, rec.paths, 16)
	assert.Empty(t, dirEntries(t, dir))
}

func TestProtocolGenerator(t *testing.T) {
	at := time.Date(2025, 1, 31, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	g := NewProtocolGenerator("").WithClock(func() time.Time { return at })

	a, b := g.Next(), g.Next()
	assert.Regexp(t, `^UNIAGENDE-20250201-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)

	g = NewProtocolGenerator("CLINIC")
	assert.True(t, strings.HasPrefix(g.Next(), "CLINIC-"))
}
