package plagiarism

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RishiKendai/labcheck/internal/models"
)

func TestPrioritizeCandidates(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := base.Add(d)
		return &v
	}

	reports := []models.Report{
		{ID: "newest-plain", CreatedAt: base.Add(72 * time.Hour)},
		{ID: "old-priority", CreatedAt: base, PriorityIndexedAt: at(time.Hour)},
		{ID: "older-plain", CreatedAt: base.Add(24 * time.Hour)},
		{ID: "recent-priority", CreatedAt: base.Add(-time.Hour), PriorityIndexedAt: at(5 * time.Hour)},
		{ID: "tie-priority-newer", CreatedAt: base.Add(2 * time.Hour), PriorityIndexedAt: at(time.Hour)},
	}

	got := PrioritizeCandidates(reports)

	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	want := []string{"recent-priority", "tie-priority-newer", "old-priority", "newest-plain", "older-plain"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Errorf("PrioritizeCandidates() order mismatch (-want +got):\n%s", diff)
	}

	if reports[0].ID != "newest-plain" {
		t.Error("PrioritizeCandidates() modified its input")
	}
}

func TestPrioritizeCandidatesPriorityBeatsCreation(t *testing.T) {
	now := time.Now().UTC()
	stamp := now.Add(-365 * 24 * time.Hour)

	x := models.Report{ID: "x", CreatedAt: now.Add(-400 * 24 * time.Hour), PriorityIndexedAt: &stamp}
	y := models.Report{ID: "y", CreatedAt: now}

	got := PrioritizeCandidates([]models.Report{y, x})
	if got[0].ID != "x" {
		t.Errorf("first candidate = %s, want x", got[0].ID)
	}
}
