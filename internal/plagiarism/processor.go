package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/labcheck/internal/metrics"
	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/RishiKendai/labcheck/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// terminal writes get their own budget so an expired job can still be closed out
const finalizeTimeout = 10 * time.Second

var errReportMissing = errors.New("report no longer exists")

type ReportSource interface {
	GetReport(ctx context.Context, id string) (*models.Report, error)
	ListEligibleReports(ctx context.Context) ([]models.Report, error)
	MarkPriority(ctx context.Context, ids []string, at time.Time) error
}

type CheckStore interface {
	CreateCheck(ctx context.Context, check *models.Check) error
	UpdateCheck(ctx context.Context, id string, update models.CheckUpdate) error
	GetCheck(ctx context.Context, id string) (*models.Check, error)
	// ListChecksByStatus returns checks oldest first.
	ListChecksByStatus(ctx context.Context, status models.CheckStatus) ([]models.Check, error)
}

type TextReader interface {
	Load(ctx context.Context, key string) (string, error)
}

type MatchIndex interface {
	Get(ctx context.Context, reportID string) ([]string, error)
	Update(ctx context.Context, reportID string, matchedIDs []string) error
}

type StatusPublisher interface {
	Publish(ctx context.Context, checkID string, status models.CheckStatus) error
}

type ProcessorOption func(*Processor)

// WithStatusPublisher mirrors every status transition to pub.
func WithStatusPublisher(pub StatusPublisher) ProcessorOption {
	return func(p *Processor) { p.status = pub }
}

// WithJobTimeout bounds a single check; an expired check is marked failed.
func WithJobTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.jobTimeout = d }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// Processor owns the check lifecycle: queued, processing, then completed or failed.
type Processor struct {
	queue   *Queue
	reports ReportSource
	checks  CheckStore
	texts   TextReader
	index   MatchIndex
	status  StatusPublisher

	jobTimeout time.Duration
	now        func() time.Time

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

func NewProcessor(
	queue *Queue,
	reports ReportSource,
	checks CheckStore,
	texts TextReader,
	index MatchIndex,
	opts ...ProcessorOption,
) *Processor {
	p := &Processor{
		queue:   queue,
		reports: reports,
		checks:  checks,
		texts:   texts,
		index:   index,
		now:     time.Now,
		waiters: make(map[string][]chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// checkJob adapts one queued check to the Queue.
type checkJob struct {
	processor *Processor
	checkID   string
	reportID  string
}

func (j *checkJob) Execute(ctx context.Context) error {
	return j.processor.processJob(ctx, j.checkID, j.reportID)
}

// QueueCheck records a queued check for reportID and schedules it. The
// returned check is in the queued state; processing happens in the background.
func (p *Processor) QueueCheck(ctx context.Context, reportID string) (*models.Check, error) {
	check := &models.Check{
		ID:        uuid.NewString(),
		ReportID:  reportID,
		Status:    models.CheckQueued,
		Matches:   []models.MatchResult{},
		CreatedAt: p.now().UTC(),
	}
	if err := p.checks.CreateCheck(ctx, check); err != nil {
		return nil, fmt.Errorf("failed to create check: %w", err)
	}
	p.publish(ctx, check.ID, models.CheckQueued)

	if err := p.enqueue(check.ID, reportID); err != nil {
		// The record stays queued and is picked up again by Recover on the next start.
		log.Warn().Err(err).Str("checkId", check.ID).Msg("Failed to schedule check")
	}

	log.Info().Str("checkId", check.ID).Str("reportId", reportID).Msg("Check queued")
	return check, nil
}

// Await blocks until the check is completed or failed, or ctx is done.
func (p *Processor) Await(ctx context.Context, checkID string) (*models.Check, error) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.waiters[checkID] = append(p.waiters[checkID], ch)
	p.mu.Unlock()
	defer p.dropWaiter(checkID, ch)

	check, err := p.checks.GetCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if check.Status.IsTerminal() {
		return check, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch:
	}
	return p.checks.GetCheck(ctx, checkID)
}

// Recover resumes work left over by a previous run: queued checks are
// scheduled again in creation order and checks caught mid-processing are
// marked failed.
func (p *Processor) Recover(ctx context.Context) error {
	stuck, err := p.checks.ListChecksByStatus(ctx, models.CheckProcessing)
	if err != nil {
		return fmt.Errorf("failed to list processing checks: %w", err)
	}
	for _, check := range stuck {
		p.fail(ctx, check.ID, "interrupted by restart")
		p.wake(check.ID)
	}

	queued, err := p.checks.ListChecksByStatus(ctx, models.CheckQueued)
	if err != nil {
		return fmt.Errorf("failed to list queued checks: %w", err)
	}
	for _, check := range queued {
		if err := p.enqueue(check.ID, check.ReportID); err != nil {
			return fmt.Errorf("failed to requeue check %s: %w", check.ID, err)
		}
	}

	log.Info().
		Int("failed", len(stuck)).
		Int("requeued", len(queued)).
		Msg("Check recovery finished")
	return nil
}

func (p *Processor) enqueue(checkID, reportID string) error {
	return p.queue.Submit(&checkJob{processor: p, checkID: checkID, reportID: reportID})
}

func (p *Processor) processJob(ctx context.Context, checkID, reportID string) error {
	start := time.Now()
	defer func() {
		metrics.CheckDuration.Observe(time.Since(start).Seconds())
		p.wake(checkID)
	}()

	if p.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.jobTimeout)
		defer cancel()
	}

	processing := models.CheckProcessing
	err := p.checks.UpdateCheck(ctx, checkID, models.CheckUpdate{Status: &processing})
	if errors.Is(err, repository.ErrNotFound) {
		// the check went away with its report while it waited in the queue
		log.Debug().Str("checkId", checkID).Str("reportId", reportID).Msg("Check no longer exists, dropping job")
		return nil
	}
	if err != nil {
		p.fail(ctx, checkID, "could not start")
		return fmt.Errorf("failed to mark check %s processing: %w", checkID, err)
	}
	p.publish(ctx, checkID, models.CheckProcessing)

	matches, err := p.compare(ctx, reportID)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timed out"
		}
		p.fail(ctx, checkID, reason)
		if errors.Is(err, errReportMissing) {
			return nil
		}
		return fmt.Errorf("check %s failed: %w", checkID, err)
	}

	return p.complete(ctx, checkID, reportID, matches)
}

// compare scores the subject report against index-linked reports first and
// then the eligible corpus, and returns the results best first.
func (p *Processor) compare(ctx context.Context, reportID string) ([]models.MatchResult, error) {
	subject, err := p.reports.GetReport(ctx, reportID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errReportMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load report: %w", err)
	}

	subjectText := p.readText(ctx, subject)
	if strings.TrimSpace(subjectText) == "" {
		log.Warn().Str("reportId", reportID).Msg("Report has no readable text, nothing to compare")
		return []models.MatchResult{}, nil
	}

	considered := map[string]struct{}{reportID: {}}
	matches := make([]models.MatchResult, 0)

	evaluate := func(candidates []models.Report) error {
		for i := range candidates {
			if err := ctx.Err(); err != nil {
				return err
			}
			candidate := &candidates[i]
			if _, seen := considered[candidate.ID]; seen {
				continue
			}
			considered[candidate.ID] = struct{}{}

			candidateText := p.readText(ctx, candidate)
			if strings.TrimSpace(candidateText) == "" {
				continue
			}

			score := PlagiarismSimilarity(subjectText, candidateText)
			preview := BuildMatchPreview(BuildDiffSegments(candidateText, subjectText))
			metrics.CandidatesCompared.Inc()

			matches = append(matches, models.MatchResult{
				ReportID:    candidate.ID,
				ReportName:  candidate.OriginalName,
				Similarity:  ScorePercent(score),
				DiffPreview: preview,
			})
		}
		return nil
	}

	if err := evaluate(p.indexedCandidates(ctx, reportID)); err != nil {
		return nil, err
	}

	corpus, err := p.reports.ListEligibleReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible reports: %w", err)
	}
	if err := evaluate(PrioritizeCandidates(corpus)); err != nil {
		return nil, err
	}

	slices.SortStableFunc(matches, func(a, b models.MatchResult) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})
	return matches, nil
}

// indexedCandidates resolves the reports already linked to reportID. Reports
// that no longer exist are skipped.
func (p *Processor) indexedCandidates(ctx context.Context, reportID string) []models.Report {
	linked, err := p.index.Get(ctx, reportID)
	if err != nil {
		log.Warn().Err(err).Str("reportId", reportID).Msg("Failed to read match index, scanning corpus only")
		return nil
	}

	candidates := make([]models.Report, 0, len(linked))
	for _, id := range linked {
		if id == reportID {
			continue
		}
		report, err := p.reports.GetReport(ctx, id)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				log.Debug().Err(err).Str("reportId", id).Msg("Failed to load indexed report")
			}
			continue
		}
		candidates = append(candidates, *report)
	}
	return candidates
}

// readText treats any read failure as a report without text.
func (p *Processor) readText(ctx context.Context, report *models.Report) string {
	text, err := p.texts.Load(ctx, report.TextKey)
	if err != nil {
		log.Debug().Err(err).Str("reportId", report.ID).Msg("Report text unreadable")
		return ""
	}
	return text
}

func (p *Processor) complete(ctx context.Context, checkID, reportID string, matches []models.MatchResult) error {
	completedAt := p.now().UTC()
	similarity := 0.0
	if len(matches) > 0 {
		similarity = matches[0].Similarity
	}

	ctx, cancel := finalizeContext(ctx)
	defer cancel()

	completed := models.CheckCompleted
	err := p.checks.UpdateCheck(ctx, checkID, models.CheckUpdate{
		Status:      &completed,
		Similarity:  &similarity,
		Matches:     matches,
		CompletedAt: &completedAt,
	})
	if err != nil {
		p.fail(ctx, checkID, "could not store results")
		return fmt.Errorf("failed to store results of check %s: %w", checkID, err)
	}
	p.publish(ctx, checkID, models.CheckCompleted)
	metrics.ChecksTotal.WithLabelValues(string(models.CheckCompleted)).Inc()

	log.Info().
		Str("checkId", checkID).
		Str("reportId", reportID).
		Int("matches", len(matches)).
		Float64("similarity", similarity).
		Msg("Check completed")

	if len(matches) == 0 {
		return nil
	}

	matchedIDs := make([]string, 0, len(matches))
	for _, m := range matches {
		matchedIDs = append(matchedIDs, m.ReportID)
	}

	// Bookkeeping below is best-effort; the check is already completed.
	if err := p.index.Update(ctx, reportID, matchedIDs); err != nil {
		log.Warn().Err(err).Str("reportId", reportID).Msg("Failed to update match index")
	}
	if err := p.reports.MarkPriority(ctx, append([]string{reportID}, matchedIDs...), completedAt); err != nil {
		log.Warn().Err(err).Str("reportId", reportID).Msg("Failed to mark report priority")
	}
	return nil
}

func (p *Processor) fail(ctx context.Context, checkID, reason string) {
	ctx, cancel := finalizeContext(ctx)
	defer cancel()

	failed := models.CheckFailed
	zero := 0.0
	completedAt := p.now().UTC()
	err := p.checks.UpdateCheck(ctx, checkID, models.CheckUpdate{
		Status:      &failed,
		Similarity:  &zero,
		Matches:     []models.MatchResult{},
		CompletedAt: &completedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("checkId", checkID).Msg("Failed to mark check failed")
		return
	}
	p.publish(ctx, checkID, models.CheckFailed)
	metrics.ChecksTotal.WithLabelValues(string(models.CheckFailed)).Inc()

	log.Warn().Str("checkId", checkID).Str("reason", reason).Msg("Check failed")
}

func (p *Processor) publish(ctx context.Context, checkID string, status models.CheckStatus) {
	if p.status == nil {
		return
	}
	if err := p.status.Publish(ctx, checkID, status); err != nil {
		log.Debug().Err(err).Str("checkId", checkID).Msg("Failed to publish check status")
	}
}

func (p *Processor) wake(checkID string) {
	p.mu.Lock()
	waiters := p.waiters[checkID]
	delete(p.waiters, checkID)
	p.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
}

func (p *Processor) dropWaiter(checkID string, ch chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	waiters := slices.DeleteFunc(p.waiters[checkID], func(w chan struct{}) bool { return w == ch })
	if len(waiters) == 0 {
		delete(p.waiters, checkID)
	} else {
		p.waiters[checkID] = waiters
	}
}

// finalizeContext detaches terminal writes from a cancelled or expired job context.
func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
}
