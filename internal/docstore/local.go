package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Local persists documents on disk under a base directory.
type Local struct {
	baseDir string
}

// NewLocal ensures the base directory exists and returns a handle.
func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		baseDir = "./od_uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// Put writes the document and returns its path relative to the base dir.
func (s *Local) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("invalid document name")
	}
	tmp, err := os.CreateTemp(s.baseDir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.baseDir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store upload file: %w", err)
	}
	return name, nil
}

// Delete removes a stored document.
func (s *Local) Delete(_ context.Context, ref string) error {
	err := os.Remove(s.Path(ref))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}

// Path resolves a stored reference to its location on disk.
func (s *Local) Path(ref string) string {
	return filepath.Join(s.baseDir, filepath.Base(ref))
}
