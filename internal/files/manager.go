package files

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// TempPrefix marks in-flight temporary files. Discovery skips them.
const TempPrefix = ".tmp-"

// Manager provides file management operations relative to a root directory
type Manager struct {
	root string
}

// NewManager creates a new file manager rooted at root
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the manager's base directory
func (m *Manager) Root() string {
	return m.root
}

// FileExists checks if a file exists at the given path
func (m *Manager) FileExists(path string) bool {
	fullPath := m.resolvePath(path)
	_, err := os.Stat(fullPath)
	exists := err == nil

	slog.Debug("FileExists check",
		slog.String("path", path),
		slog.String("full_path", fullPath),
		slog.Bool("exists", exists))

	return exists
}

// EnsureDirectory creates a directory and its parents if missing
func (m *Manager) EnsureDirectory(path string) error {
	fullPath := m.resolvePath(path)
	if err := os.MkdirAll(fullPath, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", fullPath, err)
	}
	return nil
}

// ReadFile reads the entire content of a file
func (m *Manager) ReadFile(path string) ([]byte, error) {
	fullPath := m.resolvePath(path)

	slog.Debug("Reading file",
		slog.String("path", path),
		slog.String("full_path", fullPath))

	return os.ReadFile(fullPath)
}

// WriteFileAtomic replaces the file at path with data. The parent directory
// is created on demand. On error the previous content, if any, is untouched.
func (m *Manager) WriteFileAtomic(path string, data []byte) (err error) {
	fullPath := m.resolvePath(path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("rename into %s: %w", fullPath, err)
	}

	slog.Debug("Wrote file",
		slog.String("path", path),
		slog.String("full_path", fullPath),
		slog.Int("size_bytes", len(data)))
	return nil
}

// Exists is like FileExists but distinguishes "absent" from I/O failures.
func (m *Manager) Exists(path string) (bool, error) {
	_, err := os.Stat(m.resolvePath(path))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// CleanPath returns a clean, absolute path
func (m *Manager) CleanPath(path string) string {
	return filepath.Clean(m.resolvePath(path))
}

// GetRelativePath returns the path relative to the root
func (m *Manager) GetRelativePath(fullPath string) (string, error) {
	return filepath.Rel(m.root, fullPath)
}

func (m *Manager) resolvePath(path string) string {
	if filepath.IsAbs(path) || m.root == "" {
		return path
	}
	return filepath.Join(m.root, path)
}
