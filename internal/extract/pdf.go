// Package extract turns uploaded report files into plain text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

var ErrNoText = errors.New("no extractable text")

// Extractor returns the plain text of a PDF document.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// PDF extracts text in-process, page by page.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

func (PDF) Extract(ctx context.Context, data []byte) (text string, err error) {
	// the parser panics on some malformed documents
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		if content = strings.TrimSpace(content); content != "" {
			pages = append(pages, content)
		}
	}

	if len(pages) == 0 {
		return "", ErrNoText
	}
	return strings.Join(pages, "\n"), nil
}
