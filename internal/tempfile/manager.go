// Package tempfile manages transient local files created during a pipeline run.
package tempfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/book-expert/logger"
)

const filePattern = "translation-*"

// ErrScopeClosed is returned when acquiring from a scope that was already closed.
var ErrScopeClosed = errors.New("temp scope already closed")

// Stats counts handles created and released by a Manager.
type Stats struct {
	Acquired int64
	Released int64
}

// Outstanding is the number of handles not yet released.
func (s Stats) Outstanding() int64 {
	return s.Acquired - s.Released
}

// Manager creates temp files in one directory and tracks their lifecycle.
type Manager struct {
	dir      string
	log      *logger.Logger
	remove   func(name string) error
	acquired atomic.Int64
	released atomic.Int64
}

// NewManager creates a manager. An empty dir means os.TempDir().
func NewManager(dir string, log *logger.Logger) *Manager {
	return &Manager{
		dir:    dir,
		log:    log,
		remove: os.Remove,
	}
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Acquired: m.acquired.Load(),
		Released: m.released.Load(),
	}
}

// NewScope opens a scope whose handles are all released by Close.
func (m *Manager) NewScope() *Scope {
	return &Scope{manager: m}
}

// Handle is one acquired temp file.
type Handle struct {
	path     string
	released bool
}

// Path returns the local file path.
func (h *Handle) Path() string {
	return h.path
}

// Scope owns the handles acquired during a single run.
type Scope struct {
	manager *Manager
	mu      sync.Mutex
	handles []*Handle
	closed  bool
}

// Acquire creates a new empty file whose name ends with suffixHint.
func (s *Scope) Acquire(suffixHint string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrScopeClosed
	}

	file, err := os.CreateTemp(s.manager.dir, filePattern+normalizeSuffix(suffixHint))
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	handle := &Handle{path: file.Name(), released: false}

	s.handles = append(s.handles, handle)
	s.manager.acquired.Add(1)

	closeErr := file.Close()
	if closeErr != nil {
		s.releaseLocked(handle)

		return nil, fmt.Errorf("failed to close temp file '%s': %w", handle.path, closeErr)
	}

	return handle, nil
}

// Release deletes the handle's file. Releasing twice is a no-op.
func (s *Scope) Release(handle *Handle) {
	if handle == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(handle)
}

// Close releases every handle still held and rejects further acquisitions.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, handle := range s.handles {
		s.releaseLocked(handle)
	}

	s.handles = nil
	s.closed = true
}

// releaseLocked never returns an error: a cleanup failure must not replace the run's outcome.
func (s *Scope) releaseLocked(handle *Handle) {
	if handle.released {
		return
	}

	handle.released = true
	s.manager.released.Add(1)

	err := s.manager.remove(handle.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.manager.log.Warn("Failed to remove temp file '%s': %v", handle.path, err)
	}
}

func normalizeSuffix(suffixHint string) string {
	suffix := strings.TrimSpace(suffixHint)
	if suffix == "" {
		return ""
	}

	suffix = strings.NewReplacer("/", "_", "\\", "_", "*", "_").Replace(suffix)
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}

	return suffix
}
