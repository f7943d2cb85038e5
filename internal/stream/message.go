package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RishiKendai/labcheck/internal/models"
)

// StreamMessage is a raw stream entry with its string fields.
type StreamMessage struct {
	ID     string
	Fields map[string]string
}

// ParseReportEvent reads a report event either from a single JSON "payload"
// field or from flat "name", "text" and "cloudLink" fields.
func ParseReportEvent(msg *StreamMessage) (*models.ReportEvent, error) {
	var event models.ReportEvent

	if payload, ok := msg.Fields["payload"]; ok {
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("invalid payload in message %s: %w", msg.ID, err)
		}
	} else {
		event = models.ReportEvent{
			Name:      msg.Fields["name"],
			Text:      msg.Fields["text"],
			CloudLink: msg.Fields["cloudLink"],
		}
	}

	event.Name = strings.TrimSpace(event.Name)
	event.CloudLink = strings.TrimSpace(event.CloudLink)

	if event.Name == "" {
		return nil, fmt.Errorf("message %s has no report name", msg.ID)
	}
	if strings.TrimSpace(event.Text) == "" {
		return nil, fmt.Errorf("message %s has no report text", msg.ID)
	}
	return &event, nil
}
