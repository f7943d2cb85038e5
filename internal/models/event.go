package models

// ReportEvent is a report published on the ingestion stream by the cloud
// synchronization pipeline, with its text already extracted.
type ReportEvent struct {
	Name      string `json:"name"`
	Text      string `json:"text"`
	CloudLink string `json:"cloudLink"`
}
