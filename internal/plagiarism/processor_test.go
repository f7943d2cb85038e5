package plagiarism

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/RishiKendai/labcheck/internal/matchindex"
	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/RishiKendai/labcheck/internal/repository"
	"github.com/RishiKendai/labcheck/internal/textstore"
)

const labText = "Лабораторная работа 3. Архитектура сети SDH: базовые топологии кольцо, линейная цепь и звезда. " +
	"Измерены задержки при переключении на резервный путь."

type testEnv struct {
	store *repository.SQLite
	texts *textstore.FS
	index *matchindex.Index
	queue *Queue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := repository.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	texts, err := textstore.NewFS(filepath.Join(dir, "texts"))
	if err != nil {
		t.Fatalf("NewFS() error = %v", err)
	}
	fileStore, err := matchindex.NewFileStore(filepath.Join(dir, "matches.json"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	queue := NewQueue(context.Background(), 0)
	t.Cleanup(queue.Close)

	return &testEnv{
		store: store,
		texts: texts,
		index: matchindex.New(fileStore),
		queue: queue,
	}
}

func (e *testEnv) processor(opts ...ProcessorOption) *Processor {
	return NewProcessor(e.queue, e.store, e.store, e.texts, e.index, opts...)
}

func (e *testEnv) addReport(t *testing.T, id, text string, eligible bool, created time.Time) {
	t.Helper()

	ctx := context.Background()
	key, err := e.texts.Save(ctx, id, text)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	err = e.store.CreateReport(ctx, &models.Report{
		ID:           id,
		OriginalName: id + ".pdf",
		TextKey:      key,
		Eligible:     eligible,
		CreatedAt:    created,
	})
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
}

func runCheck(t *testing.T, p *Processor, reportID string) *models.Check {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	queued, err := p.QueueCheck(ctx, reportID)
	if err != nil {
		t.Fatalf("QueueCheck() error = %v", err)
	}
	if queued.Status != models.CheckQueued {
		t.Errorf("QueueCheck() status = %s, want %s", queued.Status, models.CheckQueued)
	}

	check, err := p.Await(ctx, queued.ID)
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	return check
}

func matchIDs(matches []models.MatchResult) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ReportID)
	}
	return ids
}

func TestProcessorDuplicateReport(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.addReport(t, "source", labText, true, now.Add(-time.Hour))
	env.addReport(t, "copy", labText, false, now)

	check := runCheck(t, env.processor(), "copy")

	if check.Status != models.CheckCompleted {
		t.Fatalf("status = %s, want %s", check.Status, models.CheckCompleted)
	}
	if check.Similarity == nil || *check.Similarity != 100 {
		t.Errorf("similarity = %v, want 100", check.Similarity)
	}
	if diff := cmp.Diff([]string{"source"}, matchIDs(check.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
	if check.Matches[0].ReportName != "source.pdf" {
		t.Errorf("match name = %q, want source.pdf", check.Matches[0].ReportName)
	}
	if check.Matches[0].DiffPreview == "" {
		t.Error("match has no diff preview")
	}
	if check.CompletedAt == nil {
		t.Error("completedAt not set")
	}

	ctx := context.Background()
	for id, want := range map[string][]string{"copy": {"source"}, "source": {"copy"}} {
		got, err := env.index.Get(ctx, id)
		if err != nil {
			t.Fatalf("index Get(%s) error = %v", id, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("index links of %s mismatch (-want +got):\n%s", id, diff)
		}
	}

	source, err := env.store.GetReport(ctx, "source")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if source.PriorityIndexedAt == nil {
		t.Error("matched report was not marked as priority")
	}
}

func TestProcessorDeletedReport(t *testing.T) {
	env := newTestEnv(t)
	env.addReport(t, "other", labText, true, time.Now().UTC())

	check := runCheck(t, env.processor(), "gone")

	if check.Status != models.CheckFailed {
		t.Fatalf("status = %s, want %s", check.Status, models.CheckFailed)
	}
	if check.Similarity == nil || *check.Similarity != 0 {
		t.Errorf("similarity = %v, want 0", check.Similarity)
	}
	if len(check.Matches) != 0 {
		t.Errorf("matches = %v, want none", check.Matches)
	}
}

func TestProcessorOrdersMatchesBySimilarity(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.addReport(t, "unrelated", "Quarterly budget spreadsheet for the marketing department", true, now.Add(-3*time.Hour))
	env.addReport(t, "exact", labText, true, now.Add(-2*time.Hour))
	env.addReport(t, "partial", "Лабораторная работа 3. Архитектура сети SDH: кольцо.", true, now.Add(-time.Hour))
	env.addReport(t, "subject", labText, false, now)

	check := runCheck(t, env.processor(), "subject")

	if check.Status != models.CheckCompleted {
		t.Fatalf("status = %s, want %s", check.Status, models.CheckCompleted)
	}
	if diff := cmp.Diff([]string{"exact", "partial", "unrelated"}, matchIDs(check.Matches)); diff != "" {
		t.Errorf("match order mismatch (-want +got):\n%s", diff)
	}
	if got := *check.Similarity; got != check.Matches[0].Similarity {
		t.Errorf("similarity = %v, want top match %v", got, check.Matches[0].Similarity)
	}
}

func TestProcessorUsesIndexedCandidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	env.addReport(t, "linked", labText, false, now.Add(-time.Hour))
	env.addReport(t, "subject", labText, false, now)

	if err := env.index.Update(ctx, "subject", []string{"linked", "missing"}); err != nil {
		t.Fatalf("index Update() error = %v", err)
	}

	check := runCheck(t, env.processor(), "subject")

	if diff := cmp.Diff([]string{"linked"}, matchIDs(check.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}

	// The refreshed links drop the report that no longer exists.
	got, err := env.index.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("index Get() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale report still linked to %v", got)
	}
}

func TestProcessorEmptySubjectText(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.addReport(t, "source", labText, true, now.Add(-time.Hour))
	env.addReport(t, "blank", "  \n\t ", false, now)

	check := runCheck(t, env.processor(), "blank")

	if check.Status != models.CheckCompleted {
		t.Fatalf("status = %s, want %s", check.Status, models.CheckCompleted)
	}
	if len(check.Matches) != 0 {
		t.Errorf("matches = %v, want none", check.Matches)
	}
	if check.Similarity == nil || *check.Similarity != 0 {
		t.Errorf("similarity = %v, want 0", check.Similarity)
	}
}

func TestProcessorJobTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.addReport(t, "subject", labText, false, time.Now().UTC())

	check := runCheck(t, env.processor(WithJobTimeout(time.Nanosecond)), "subject")

	if check.Status != models.CheckFailed {
		t.Errorf("status = %s, want %s", check.Status, models.CheckFailed)
	}
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []models.CheckStatus
}

func (r *recordingPublisher) Publish(_ context.Context, _ string, status models.CheckStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
	return nil
}

func TestProcessorPublishesTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.addReport(t, "subject", labText, false, time.Now().UTC())

	pub := &recordingPublisher{}
	runCheck(t, env.processor(WithStatusPublisher(pub)), "subject")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	want := []models.CheckStatus{models.CheckQueued, models.CheckProcessing, models.CheckCompleted}
	if diff := cmp.Diff(want, pub.statuses); diff != "" {
		t.Errorf("published statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessorRecover(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	now := time.Now().UTC()
	env.addReport(t, "source", labText, true, now.Add(-time.Hour))
	env.addReport(t, "copy", labText, false, now)

	stuck := &models.Check{ID: "stuck", ReportID: "copy", Status: models.CheckProcessing, CreatedAt: now.Add(-2 * time.Minute)}
	pending := &models.Check{ID: "pending", ReportID: "copy", Status: models.CheckQueued, CreatedAt: now.Add(-time.Minute)}
	for _, c := range []*models.Check{stuck, pending} {
		if err := env.store.CreateCheck(ctx, c); err != nil {
			t.Fatalf("CreateCheck() error = %v", err)
		}
	}

	p := env.processor()
	if err := p.Recover(ctx); err != nil {
		t.Fatalf("Recover() error = %v", err)
	}

	got, err := p.Await(ctx, "stuck")
	if err != nil {
		t.Fatalf("Await(stuck) error = %v", err)
	}
	if got.Status != models.CheckFailed {
		t.Errorf("stuck check status = %s, want %s", got.Status, models.CheckFailed)
	}

	got, err = p.Await(ctx, "pending")
	if err != nil {
		t.Fatalf("Await(pending) error = %v", err)
	}
	if got.Status != models.CheckCompleted {
		t.Errorf("pending check status = %s, want %s", got.Status, models.CheckCompleted)
	}
	if diff := cmp.Diff([]string{"source"}, matchIDs(got.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestAwaitHonorsContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.store.CreateCheck(ctx, &models.Check{ID: "idle", ReportID: "r", Status: models.CheckQueued}); err != nil {
		t.Fatalf("CreateCheck() error = %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if _, err := env.processor().Await(waitCtx, "idle"); err == nil {
		t.Error("Await() returned without error for a check that never runs")
	}
}

func TestProcessorTierOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	env.addReport(t, "corpus", labText, true, now.Add(-3*time.Hour))
	env.addReport(t, "linked", labText, false, now.Add(-2*time.Hour))
	env.addReport(t, "pending-upload", labText, false, now.Add(-time.Hour))
	env.addReport(t, "subject", labText, false, now)

	if err := env.index.Update(ctx, "subject", []string{"linked"}); err != nil {
		t.Fatalf("index Update() error = %v", err)
	}

	check := runCheck(t, env.processor(), "subject")

	// Equal scores keep linked reports ahead of the corpus scan, and
	// ineligible reports outside the index are never compared.
	if diff := cmp.Diff([]string{"linked", "corpus"}, matchIDs(check.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

type failingIndex struct {
	MatchIndex
}

func (failingIndex) Update(context.Context, string, []string) error {
	return errors.New("index unavailable")
}

type failingPriority struct {
	*repository.SQLite
}

func (failingPriority) MarkPriority(context.Context, []string, time.Time) error {
	return errors.New("priority unavailable")
}

func TestProcessorBookkeepingFailures(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.addReport(t, "source", labText, true, now.Add(-time.Hour))
	env.addReport(t, "copy", labText, false, now)

	p := NewProcessor(env.queue, failingPriority{env.store}, env.store, env.texts, failingIndex{env.index})
	check := runCheck(t, p, "copy")

	if check.Status != models.CheckCompleted {
		t.Fatalf("status = %s, want %s", check.Status, models.CheckCompleted)
	}
	if check.Similarity == nil || *check.Similarity != 100 {
		t.Errorf("similarity = %v, want 100", check.Similarity)
	}
	if diff := cmp.Diff([]string{"source"}, matchIDs(check.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

type flakyTexts struct {
	TextReader
	broken string
}

func (f flakyTexts) Load(ctx context.Context, key string) (string, error) {
	if key == f.broken {
		return "", errors.New("read failed")
	}
	return f.TextReader.Load(ctx, key)
}

func TestProcessorSkipsUnreadableCandidate(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.addReport(t, "good", labText, true, now.Add(-2*time.Hour))
	env.addReport(t, "broken", labText, true, now.Add(-time.Hour))
	env.addReport(t, "subject", labText, false, now)

	texts := flakyTexts{TextReader: env.texts, broken: textstore.KeyFor("broken")}
	p := NewProcessor(env.queue, env.store, env.store, texts, env.index)
	check := runCheck(t, p, "subject")

	if check.Status != models.CheckCompleted {
		t.Fatalf("status = %s, want %s", check.Status, models.CheckCompleted)
	}
	if diff := cmp.Diff([]string{"good"}, matchIDs(check.Matches)); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessorDropsDeletedCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addReport(t, "subject", labText, false, time.Now().UTC())

	if err := env.store.CreateCheck(ctx, &models.Check{ID: "orphan", ReportID: "subject", Status: models.CheckQueued}); err != nil {
		t.Fatalf("CreateCheck() error = %v", err)
	}
	if err := env.store.DeleteReport(ctx, "subject"); err != nil {
		t.Fatalf("DeleteReport() error = %v", err)
	}

	if err := env.processor().processJob(ctx, "orphan", "subject"); err != nil {
		t.Errorf("processJob() error = %v, want nil for a deleted check", err)
	}
	if _, err := env.store.GetCheck(ctx, "orphan"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("GetCheck() error = %v, want %v", err, repository.ErrNotFound)
	}
}
