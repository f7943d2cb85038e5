// Package repository persists reports and checks.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/RishiKendai/labcheck/internal/models"
)

var ErrNotFound = errors.New("not found")

// Store is the record store for reports and their checks. List methods
// return reports newest first; ListChecksByStatus returns checks oldest first.
type Store interface {
	CreateReport(ctx context.Context, report *models.Report) error
	GetReport(ctx context.Context, id string) (*models.Report, error)
	FindReportByCloudLink(ctx context.Context, cloudLink, name string) (*models.Report, error)
	ListReports(ctx context.Context) ([]models.Report, error)
	ListEligibleReports(ctx context.Context) ([]models.Report, error)
	UpdateReport(ctx context.Context, id string, update models.ReportUpdate) (*models.Report, error)
	// DeleteReport removes the report and all of its checks.
	DeleteReport(ctx context.Context, id string) error
	DeleteAllReports(ctx context.Context) (int64, error)
	MarkPriority(ctx context.Context, ids []string, at time.Time) error

	CreateCheck(ctx context.Context, check *models.Check) error
	UpdateCheck(ctx context.Context, id string, update models.CheckUpdate) error
	GetCheck(ctx context.Context, id string) (*models.Check, error)
	ListChecksByReport(ctx context.Context, reportID string) ([]models.Check, error)
	LatestCheckForReport(ctx context.Context, reportID string) (*models.Check, error)
	ListChecksByStatus(ctx context.Context, status models.CheckStatus) ([]models.Check, error)

	Close() error
}
