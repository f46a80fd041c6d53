// Package logstore persists captured step output for later diagnosis.
// Output is kept regardless of the step's outcome.
package logstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes one log file per executed step under BaseDir/runID/.
type Store struct {
	baseDir string
}

// New creates a log store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Save writes a step's captured output and returns the file path.
func (s *Store) Save(runID, job, step string, output []byte) (string, error) {
	dir := filepath.Join(s.baseDir, sanitize(runID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", sanitize(job), sanitize(step)))
	if err := os.WriteFile(path, output, 0o644); err != nil {
		return "", fmt.Errorf("writing log: %w", err)
	}
	return path, nil
}

// Read returns the contents of one step log, refusing paths outside BaseDir.
func (s *Store) Read(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(abs, base+string(filepath.Separator)) {
		return nil, fmt.Errorf("log path %q escapes the log dir", path)
	}
	return os.ReadFile(abs)
}

// sanitize keeps file names safe for step names like "cargo fmt --all -- --check".
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "step"
	}
	return b.String()
}
