package textstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FS stores each report's text as a file in one directory.
type FS struct {
	dir string
}

func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FS{dir: dir}, nil
}

func (s *FS) Save(_ context.Context, reportID, text string) (string, error) {
	key := KeyFor(reportID)
	if err := validateKey(key); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(text); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write report text: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("failed to store report text: %w", err)
	}
	return key, nil
}

func (s *FS) Load(_ context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read report text: %w", err)
	}
	return string(raw), nil
}

func (s *FS) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete report text: %w", err)
	}
	return nil
}
