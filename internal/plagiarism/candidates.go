package plagiarism

import (
	"slices"

	"github.com/RishiKendai/labcheck/internal/models"
)

// PrioritizeCandidates orders corpus reports for scanning: reports that have
// been part of a match come first, most recently prioritized first, followed
// by the rest newest first. The input slice is not modified.
func PrioritizeCandidates(reports []models.Report) []models.Report {
	ordered := slices.Clone(reports)
	slices.SortStableFunc(ordered, compareCandidates)
	return ordered
}

func compareCandidates(a, b models.Report) int {
	switch {
	case a.PriorityIndexedAt != nil && b.PriorityIndexedAt == nil:
		return -1
	case a.PriorityIndexedAt == nil && b.PriorityIndexedAt != nil:
		return 1
	case a.PriorityIndexedAt != nil && b.PriorityIndexedAt != nil:
		if c := b.PriorityIndexedAt.Compare(*a.PriorityIndexedAt); c != 0 {
			return c
		}
	}
	return b.CreatedAt.Compare(a.CreatedAt)
}
