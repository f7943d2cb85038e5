package models

import (
	"time"
)

type CheckStatus string

const (
	CheckQueued     CheckStatus = "queued"
	CheckProcessing CheckStatus = "processing"
	CheckCompleted  CheckStatus = "completed"
	CheckFailed     CheckStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s CheckStatus) IsTerminal() bool {
	return s == CheckCompleted || s == CheckFailed
}

func (s CheckStatus) Valid() bool {
	switch s {
	case CheckQueued, CheckProcessing, CheckCompleted, CheckFailed:
		return true
	}
	return false
}

// MatchResult is one compared report, embedded in a Check.
type MatchResult struct {
	ReportID    string  `bson:"reportId" json:"reportId"`
	ReportName  string  `bson:"reportName" json:"reportName"`
	Similarity  float64 `bson:"similarity" json:"similarity"` // 0..100
	DiffPreview string  `bson:"diffPreview" json:"diffPreview"`
}

// Check is one similarity run for a report.
type Check struct {
	ID          string        `bson:"_id" json:"id"`
	ReportID    string        `bson:"reportId" json:"reportId"`
	Status      CheckStatus   `bson:"status" json:"status"`
	Similarity  *float64      `bson:"similarity" json:"similarity"`
	Matches     []MatchResult `bson:"matches" json:"matches"`
	CreatedAt   time.Time     `bson:"createdAt" json:"createdAt"`
	CompletedAt *time.Time    `bson:"completedAt" json:"completedAt"`
}

// CheckUpdate carries the fields to change on a Check; nil fields are left as-is.
type CheckUpdate struct {
	Status      *CheckStatus
	Similarity  *float64
	Matches     []MatchResult
	CompletedAt *time.Time
}

// CheckSummary is the compact form listed next to a report.
type CheckSummary struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Similarity  *float64    `json:"similarity"`
	CreatedAt   time.Time   `json:"createdAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

func (c *Check) Summary() CheckSummary {
	return CheckSummary{
		ID:          c.ID,
		Status:      c.Status,
		Similarity:  c.Similarity,
		CreatedAt:   c.CreatedAt,
		CompletedAt: c.CompletedAt,
	}
}

// SubmitResponse is returned with 202 Accepted when a check is queued.
type SubmitResponse struct {
	ReportID string      `json:"reportId"`
	CheckID  string      `json:"checkId"`
	Status   CheckStatus `json:"status"`
}

// CheckResult is a check together with the report it was run for.
type CheckResult struct {
	Check
	Report *Report `json:"report,omitempty"`
}
