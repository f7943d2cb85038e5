package plagiarism

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	maxPreviewLength  = 180
	maxPreviewMatches = 5
	diffTimeout       = time.Second

	labelMatch   = "Match"
	labelAdded   = "Added"
	labelContext = "Context"
)

// BuildDiffSegments diffs source against target and merges small edits into
// readable segments. Segments with neither flag set are common to both texts.
func BuildDiffSegments(sourceText, targetText string) []models.DiffSegment {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = diffTimeout

	diffs := dmp.DiffMain(sourceText, targetText, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	segments := make([]models.DiffSegment, 0, len(diffs))
	for _, d := range diffs {
		segments = append(segments, models.DiffSegment{
			Added:   d.Type == diffmatchpatch.DiffInsert,
			Removed: d.Type == diffmatchpatch.DiffDelete,
			Value:   d.Text,
		})
	}
	return segments
}

// BuildMatchPreview renders up to five common fragments, each at most 180
// characters. Without common fragments it labels the first non-empty segments
// of any kind instead.
func BuildMatchPreview(segments []models.DiffSegment) string {
	lines := make([]string, 0, maxPreviewMatches)
	for _, segment := range segments {
		if segment.Added || segment.Removed {
			continue
		}
		value := compressWhitespace(segment.Value)
		if value == "" {
			continue
		}
		lines = append(lines, previewLine(labelMatch, value))
		if len(lines) == maxPreviewMatches {
			break
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n")
	}

	for _, segment := range segments {
		value := compressWhitespace(segment.Value)
		if value == "" {
			continue
		}
		lines = append(lines, previewLine(segmentLabel(segment), value))
		if len(lines) == maxPreviewMatches {
			break
		}
	}
	return strings.Join(lines, "\n")
}

func segmentLabel(segment models.DiffSegment) string {
	switch {
	case segment.Added:
		return labelAdded
	case segment.Removed:
		return labelContext
	default:
		return labelMatch
	}
}

func previewLine(label, value string) string {
	return fmt.Sprintf("%s: \"%s\"", label, truncate(value))
}

func compressWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func truncate(value string) string {
	runes := []rune(value)
	if len(runes) <= maxPreviewLength {
		return value
	}
	return strings.TrimRightFunc(string(runes[:maxPreviewLength-1]), unicode.IsSpace) + "…"
}
