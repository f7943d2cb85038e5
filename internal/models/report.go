package models

import "time"

// Report is an uploaded or synchronized lab report.
type Report struct {
	ID                string     `bson:"_id" json:"id"`
	OriginalName      string     `bson:"originalName" json:"originalName"`
	TextKey           string     `bson:"textKey" json:"-"`
	CloudLink         *string    `bson:"cloudLink" json:"cloudLink"`
	Eligible          bool       `bson:"eligible" json:"eligible"`
	PriorityIndexedAt *time.Time `bson:"priorityIndexedAt" json:"priorityIndexedAt"`
	CreatedAt         time.Time  `bson:"createdAt" json:"createdAt"`
}

// ReportUpdate carries the fields to change on a Report; nil fields are left as-is.
// An empty CloudLink clears the link.
type ReportUpdate struct {
	OriginalName *string `json:"originalName"`
	CloudLink    *string `json:"cloudLink"`
	Eligible     *bool   `json:"eligible"`
}

// ReportListItem is one row of the report listing.
type ReportListItem struct {
	ID           string        `json:"id"`
	OriginalName string        `json:"originalName"`
	Eligible     bool          `json:"eligible"`
	CreatedAt    time.Time     `json:"createdAt"`
	LatestCheck  *CheckSummary `json:"latestCheck"`
}

// DiffSegment is one run of a diff between two texts. Segments with neither
// flag set are common to both texts.
type DiffSegment struct {
	Added   bool   `json:"added"`
	Removed bool   `json:"removed"`
	Value   string `json:"value"`
}
