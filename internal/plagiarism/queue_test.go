package plagiarism

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type funcJob func(ctx context.Context) error

func (f funcJob) Execute(ctx context.Context) error { return f(ctx) }

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := NewQueue(context.Background(), 0)
	defer q.Close()

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	release := make(chan struct{})

	// Hold the worker so every job below is pending at once.
	wg.Add(1)
	if err := q.Submit(funcJob(func(context.Context) error {
		defer wg.Done()
		<-release
		return nil
	})); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	for i := range 5 {
		wg.Add(1)
		if err := q.Submit(funcJob(func(context.Context) error {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}

	close(release)
	waitTimeout(t, &wg)

	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, order); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueRunsOneJobAtATime(t *testing.T) {
	q := NewQueue(context.Background(), 0)
	defer q.Close()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		_ = q.Submit(funcJob(func(context.Context) error {
			defer wg.Done()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return nil
		}))
	}
	waitTimeout(t, &wg)

	if maxSeen != 1 {
		t.Errorf("max concurrent jobs = %d, want 1", maxSeen)
	}
}

func TestQueueSurvivesFailingJobs(t *testing.T) {
	q := NewQueue(context.Background(), 0)
	defer q.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	_ = q.Submit(funcJob(func(context.Context) error {
		defer wg.Done()
		panic("boom")
	}))
	_ = q.Submit(funcJob(func(context.Context) error {
		defer wg.Done()
		return errors.New("failed")
	}))

	ran := false
	_ = q.Submit(funcJob(func(context.Context) error {
		defer wg.Done()
		ran = true
		return nil
	}))
	waitTimeout(t, &wg)

	if !ran {
		t.Error("job after a panic and an error did not run")
	}
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(context.Background(), 0)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_ = q.Submit(funcJob(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))
	<-started

	dropped := false
	_ = q.Submit(funcJob(func(context.Context) error {
		dropped = true
		return nil
	}))
	if got := q.Pending(); got != 1 {
		t.Errorf("Pending() = %d, want 1", got)
	}
	if !q.Running() {
		t.Error("Running() = false while a job executes")
	}

	q.Close()

	select {
	case <-cancelled:
	default:
		t.Error("running job was not cancelled by Close")
	}
	if dropped {
		t.Error("pending job ran after Close")
	}
	if err := q.Submit(funcJob(func(context.Context) error { return nil })); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Submit() after Close error = %v, want %v", err, ErrQueueClosed)
	}
	q.Close()
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}
