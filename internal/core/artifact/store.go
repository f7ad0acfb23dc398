package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/exams-tracker/constants"
	"github.com/joseph-ayodele/exams-tracker/internal/common"
)

// ErrTooLarge is returned by Save when the upload exceeds the configured limit.
var ErrTooLarge = common.NewAppError("UPLOAD_TOO_LARGE", "uploaded document is too large", common.ErrInvalidInput)

// Store owns the directory where uploads and derived artifacts live for the
// duration of a run. Names are random so concurrent runs never collide.
type Store struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func NewStore(dir string, maxBytes int64, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

func (s *Store) Dir() string { return s.dir }

// Save writes r under a fresh name that keeps a known extension of originalName.
func (s *Store) Save(r io.Reader, originalName string) (string, error) {
	path := s.newPath(originalName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}

	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && s.maxBytes > 0 && n > s.maxBytes {
		copyErr = ErrTooLarge
	}
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.logger.Debug("artifact saved", "path", path, "bytes", n)
	return path, nil
}

// Import copies an existing file into the store so the run can delete its copy
// without touching the caller's original.
func (s *Store) Import(srcPath string) (string, error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()
	return s.Save(in, filepath.Base(srcPath))
}

func (s *Store) newPath(originalName string) string {
	name := uuid.NewString()
	if ext := constants.NormalizeExt(filepath.Ext(originalName)); constants.MediaTypeForExt(ext) != "" {
		name += "." + ext
	}
	return filepath.Join(s.dir, name)
}

// NewSession starts tracking artifacts for a single run.
func (s *Store) NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = s.logger
	}
	return NewSession(logger)
}

func NewSession(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{logger: logger}
}

// Session is the set of files a run must delete when it ends, whatever the outcome.
type Session struct {
	mu       sync.Mutex
	paths    []string
	released bool
	logger   *slog.Logger
}

// Track schedules path for deletion. Empty and already tracked paths are ignored.
func (s *Session) Track(path string) {
	if path == "" {
		return
	}
	path = filepath.Clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.paths, path) {
		return
	}
	s.paths = append(s.paths, path)
}

// Paths returns a copy of the tracked paths.
func (s *Session) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Release deletes every tracked file once. Missing files are not an error;
// other failures are logged and swallowed.
func (s *Session) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	paths := s.paths
	s.paths = nil
	s.mu.Unlock()

	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			s.logger.Debug("artifact removed", "path", p)
		case errors.Is(err, fs.ErrNotExist):
		default:
			s.logger.Warn("failed to remove artifact", "path", p, "error", err)
		}
	}
}
