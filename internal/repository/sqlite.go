package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/RishiKendai/labcheck/migrations"
)

// fixed width so stored timestamps sort lexicographically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	reportColumns = `id, original_name, text_key, cloud_link, eligible, priority_indexed_at, created_at`
	checkColumns  = `id, report_id, status, similarity, matches, created_at, completed_at`
)

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateReport inserts a report, filling CreatedAt when unset.
func (s *SQLite) CreateReport(ctx context.Context, report *models.Report) error {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.OriginalName, report.TextKey, report.CloudLink,
		boolToInt(report.Eligible), formatTimePtr(report.PriorityIndexedAt), formatTime(report.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

func (s *SQLite) GetReport(ctx context.Context, id string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)
	return scanReport(row)
}

// FindReportByCloudLink returns the newest report synchronized from cloudLink under name.
func (s *SQLite) FindReportByCloudLink(ctx context.Context, cloudLink, name string) (*models.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE cloud_link = ? AND original_name = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`, cloudLink, name)
	return scanReport(row)
}

func (s *SQLite) ListReports(ctx context.Context) ([]models.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanReports(rows)
}

func (s *SQLite) ListEligibleReports(ctx context.Context) ([]models.Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE eligible = 1 ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible reports: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanReports(rows)
}

// UpdateReport applies the non-nil fields of update and returns the stored report.
func (s *SQLite) UpdateReport(ctx context.Context, id string, update models.ReportUpdate) (*models.Report, error) {
	var (
		fields []string
		args   []any
	)
	if update.OriginalName != nil {
		fields = append(fields, "original_name = ?")
		args = append(args, *update.OriginalName)
	}
	if update.CloudLink != nil {
		fields = append(fields, "cloud_link = ?")
		args = append(args, nullIfEmpty(*update.CloudLink))
	}
	if update.Eligible != nil {
		fields = append(fields, "eligible = ?")
		args = append(args, boolToInt(*update.Eligible))
	}

	if len(fields) > 0 {
		args = append(args, id)
		res, err := s.db.ExecContext(ctx,
			`UPDATE reports SET `+strings.Join(fields, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update report: %w", err)
		}
		if err := expectAffected(res); err != nil {
			return nil, err
		}
	}
	return s.GetReport(ctx, id)
}

func (s *SQLite) DeleteReport(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE report_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete checks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete report: %w", err)
	}
	if err := expectAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) DeleteAllReports(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checks`); err != nil {
		return 0, fmt.Errorf("failed to delete checks: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM reports`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return deleted, tx.Commit()
}

// MarkPriority stamps every listed report with at. Unknown IDs are ignored.
func (s *SQLite) MarkPriority(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(at))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE reports SET priority_indexed_at = ? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to mark priority: %w", err)
	}
	return nil
}

// CreateCheck inserts a check, filling CreatedAt when unset.
func (s *SQLite) CreateCheck(ctx context.Context, check *models.Check) error {
	if check.CreatedAt.IsZero() {
		check.CreatedAt = time.Now().UTC()
	}
	matches, err := encodeMatches(check.Matches)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checks (`+checkColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		check.ID, check.ReportID, string(check.Status), check.Similarity, matches,
		formatTime(check.CreatedAt), formatTimePtr(check.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert check: %w", err)
	}
	return nil
}

// UpdateCheck applies the non-nil fields of update in a single statement.
func (s *SQLite) UpdateCheck(ctx context.Context, id string, update models.CheckUpdate) error {
	var (
		fields []string
		args   []any
	)
	if update.Status != nil {
		fields = append(fields, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Similarity != nil {
		fields = append(fields, "similarity = ?")
		args = append(args, *update.Similarity)
	}
	if update.Matches != nil {
		matches, err := encodeMatches(update.Matches)
		if err != nil {
			return err
		}
		fields = append(fields, "matches = ?")
		args = append(args, matches)
	}
	if update.CompletedAt != nil {
		fields = append(fields, "completed_at = ?")
		args = append(args, formatTime(*update.CompletedAt))
	}
	if len(fields) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE checks SET `+strings.Join(fields, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update check: %w", err)
	}
	return expectAffected(res)
}

func (s *SQLite) GetCheck(ctx context.Context, id string) (*models.Check, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkColumns+` FROM checks WHERE id = ?`, id)
	return scanCheck(row)
}

func (s *SQLite) ListChecksByReport(ctx context.Context, reportID string) ([]models.Check, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE report_id = ? ORDER BY created_at DESC, rowid DESC`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChecks(rows)
}

func (s *SQLite) LatestCheckForReport(ctx context.Context, reportID string) (*models.Check, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE report_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, reportID)
	return scanCheck(row)
}

func (s *SQLite) ListChecksByStatus(ctx context.Context, status models.CheckStatus) ([]models.Check, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+checkColumns+` FROM checks WHERE status = ? ORDER BY created_at, rowid`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query checks: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanChecks(rows)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatTime(*t)
	return &v
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeMatches(matches []models.MatchResult) (string, error) {
	if matches == nil {
		matches = []models.MatchResult{}
	}
	raw, err := json.Marshal(matches)
	if err != nil {
		return "", fmt.Errorf("failed to encode matches: %w", err)
	}
	return string(raw), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanReport(row scannable) (*models.Report, error) {
	var (
		r         models.Report
		cloudLink sql.NullString
		eligible  int
		priority  sql.NullString
		created   sql.NullString
	)
	err := row.Scan(&r.ID, &r.OriginalName, &r.TextKey, &cloudLink, &eligible, &priority, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}
	if cloudLink.Valid {
		r.CloudLink = &cloudLink.String
	}
	r.Eligible = eligible == 1
	r.PriorityIndexedAt = parseTime(priority)
	if t := parseTime(created); t != nil {
		r.CreatedAt = *t
	}
	return &r, nil
}

func scanReports(rows *sql.Rows) ([]models.Report, error) {
	reports := make([]models.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func scanCheck(row scannable) (*models.Check, error) {
	var (
		c          models.Check
		status     string
		similarity sql.NullFloat64
		matches    string
		created    sql.NullString
		completed  sql.NullString
	)
	err := row.Scan(&c.ID, &c.ReportID, &status, &similarity, &matches, &created, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan check: %w", err)
	}
	c.Status = models.CheckStatus(status)
	if similarity.Valid {
		c.Similarity = &similarity.Float64
	}
	c.Matches = []models.MatchResult{}
	if matches != "" {
		if err := json.Unmarshal([]byte(matches), &c.Matches); err != nil {
			return nil, fmt.Errorf("failed to decode matches of check %s: %w", c.ID, err)
		}
	}
	if t := parseTime(created); t != nil {
		c.CreatedAt = *t
	}
	c.CompletedAt = parseTime(completed)
	return &c, nil
}

func scanChecks(rows *sql.Rows) ([]models.Check, error) {
	checks := make([]models.Check, 0)
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, *c)
	}
	return checks, rows.Err()
}
