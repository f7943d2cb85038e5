package matchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileStore keeps the graph as a JSON object in a single file. Saves go to a
// temporary file in the same directory which then replaces the original.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create match index directory: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(_ context.Context) (Graph, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Graph{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		log.Warn().Err(err).Str("path", s.path).Msg("Match index file is corrupt, starting empty")
		return Graph{}, nil
	}
	return g.Clean(), nil
}

func (s *FileStore) Save(_ context.Context, g Graph) error {
	data, err := json.MarshalIndent(g.Clean(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode match index: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace match index: %w", err)
	}
	return nil
}
