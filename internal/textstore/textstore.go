// Package textstore keeps the extracted plain text of reports.
package textstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
)

var ErrNotFound = errors.New("report text not found")

// Store saves report text under a key derived from the report ID.
type Store interface {
	Save(ctx context.Context, reportID, text string) (key string, err error)
	Load(ctx context.Context, key string) (string, error)
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
}

// KeyFor returns the storage key of a report's text.
func KeyFor(reportID string) string {
	return reportID + ".txt"
}

func validateKey(key string) error {
	if key == "" || key != filepath.Base(key) || key == "." || key == ".." {
		return fmt.Errorf("invalid text key %q", key)
	}
	return nil
}
