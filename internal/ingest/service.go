// Package ingest turns uploads and synchronized files into stored reports and
// schedules their similarity checks.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/RishiKendai/labcheck/internal/extract"
	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/RishiKendai/labcheck/internal/repository"
	"github.com/RishiKendai/labcheck/internal/textstore"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedType = errors.New("unsupported file type, expected PDF or plain text")
	ErrEmptyText       = errors.New("report contains no extractable text")
	ErrMissingName     = errors.New("report name is required")
)

type CheckQueuer interface {
	QueueCheck(ctx context.Context, reportID string) (*models.Check, error)
}

type IndexCleaner interface {
	Remove(ctx context.Context, reportID string) error
	Reset(ctx context.Context) error
}

// Outcome describes what ingesting a synchronized report did.
type Outcome string

const (
	OutcomeImported  Outcome = "imported"
	OutcomeActivated Outcome = "activated"
	OutcomeSkipped   Outcome = "skipped"
)

type Service struct {
	extractor extract.Extractor
	texts     textstore.Store
	store     repository.Store
	checks    CheckQueuer
	index     IndexCleaner
}

func NewService(
	extractor extract.Extractor,
	texts textstore.Store,
	store repository.Store,
	checks CheckQueuer,
	index IndexCleaner,
) *Service {
	return &Service{
		extractor: extractor,
		texts:     texts,
		store:     store,
		checks:    checks,
		index:     index,
	}
}

// IngestUpload extracts the text of an uploaded file, stores it as a new
// report and queues a check for it. Uploads are not part of the comparison
// corpus until marked eligible.
func (s *Service) IngestUpload(ctx context.Context, name, contentType string, data []byte) (*models.Report, *models.Check, error) {
	text, err := s.extractText(ctx, name, contentType, data)
	if err != nil {
		return nil, nil, err
	}
	return s.IngestText(ctx, name, text, "", false)
}

// IngestText stores already extracted text as a new report and queues a check for it.
func (s *Service) IngestText(ctx context.Context, name, text, cloudLink string, eligible bool) (*models.Report, *models.Check, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil, ErrMissingName
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, ErrEmptyText
	}

	var link *string
	if cloudLink != "" {
		normalized, err := NormalizeCloudLink(cloudLink)
		if err != nil {
			return nil, nil, err
		}
		link = &normalized
	}

	id := uuid.NewString()
	key, err := s.texts.Save(ctx, id, text)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to store report text: %w", err)
	}

	report := &models.Report{
		ID:           id,
		OriginalName: name,
		TextKey:      key,
		CloudLink:    link,
		Eligible:     eligible,
	}
	if err := s.store.CreateReport(ctx, report); err != nil {
		if delErr := s.texts.Delete(ctx, key); delErr != nil {
			log.Warn().Err(delErr).Str("textKey", key).Msg("Failed to remove orphaned report text")
		}
		return nil, nil, fmt.Errorf("failed to store report: %w", err)
	}

	check, err := s.checks.QueueCheck(ctx, report.ID)
	if err != nil {
		return report, nil, fmt.Errorf("failed to queue check: %w", err)
	}

	log.Info().
		Str("reportId", report.ID).
		Str("name", report.OriginalName).
		Bool("eligible", report.Eligible).
		Msg("Report ingested")

	return report, check, nil
}

// IngestEvent handles a report published by the cloud synchronization
// pipeline. A report already synchronized from the same link under the same
// name is activated instead of imported twice.
func (s *Service) IngestEvent(ctx context.Context, event *models.ReportEvent) (Outcome, error) {
	if event.CloudLink != "" {
		link, err := NormalizeCloudLink(event.CloudLink)
		if err != nil {
			return "", err
		}
		existing, err := s.store.FindReportByCloudLink(ctx, link, strings.TrimSpace(event.Name))
		switch {
		case err == nil && existing.Eligible:
			return OutcomeSkipped, nil
		case err == nil:
			eligible := true
			if _, err := s.store.UpdateReport(ctx, existing.ID, models.ReportUpdate{Eligible: &eligible}); err != nil {
				return "", fmt.Errorf("failed to activate report: %w", err)
			}
			return OutcomeActivated, nil
		case !errors.Is(err, repository.ErrNotFound):
			return "", fmt.Errorf("failed to look up report: %w", err)
		}
	}

	if _, _, err := s.IngestText(ctx, event.Name, event.Text, event.CloudLink, true); err != nil {
		return "", err
	}
	return OutcomeImported, nil
}

// DeleteReport removes a report with its checks, text and match index links.
func (s *Service) DeleteReport(ctx context.Context, id string) error {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteReport(ctx, id); err != nil {
		return err
	}

	if err := s.texts.Delete(ctx, report.TextKey); err != nil {
		log.Warn().Err(err).Str("reportId", id).Msg("Failed to delete report text")
	}
	if err := s.index.Remove(ctx, id); err != nil {
		log.Warn().Err(err).Str("reportId", id).Msg("Failed to remove report from match index")
	}

	log.Info().Str("reportId", id).Msg("Report deleted")
	return nil
}

// DeleteAll empties the corpus and resets the match index.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	reports, err := s.store.ListReports(ctx)
	if err != nil {
		return 0, err
	}
	deleted, err := s.store.DeleteAllReports(ctx)
	if err != nil {
		return 0, err
	}

	for _, report := range reports {
		if err := s.texts.Delete(ctx, report.TextKey); err != nil {
			log.Warn().Err(err).Str("reportId", report.ID).Msg("Failed to delete report text")
		}
	}
	if err := s.index.Reset(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to reset match index")
	}

	log.Info().Int64("deleted", deleted).Msg("All reports deleted")
	return deleted, nil
}

func (s *Service) extractText(ctx context.Context, name, contentType string, data []byte) (string, error) {
	switch detectKind(name, contentType, data) {
	case kindPDF:
		text, err := s.extractor.Extract(ctx, data)
		if errors.Is(err, extract.ErrNoText) {
			return "", ErrEmptyText
		}
		if err != nil {
			return "", fmt.Errorf("failed to extract text: %w", err)
		}
		return text, nil
	case kindText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupportedType)
		}
		return string(data), nil
	default:
		return "", ErrUnsupportedType
	}
}

type fileKind int

const (
	kindUnknown fileKind = iota
	kindPDF
	kindText
)

func detectKind(name, contentType string, data []byte) fileKind {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return kindPDF
	case mediaType == "application/pdf" || ext == ".pdf":
		return kindPDF
	case mediaType == "text/plain" || ext == ".txt":
		return kindText
	}
	return kindUnknown
}
