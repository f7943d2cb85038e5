package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrQueueClosed = errors.New("check queue is closed")

type Job interface {
	Execute(ctx context.Context) error
}

// Queue runs jobs one at a time in submission order on a single worker.
// Submit never blocks; pending jobs are held in an unbounded slice.
type Queue struct {
	mu      sync.Mutex
	jobs    []Job
	running bool
	closed  bool

	notify chan struct{}
	yield  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// creates the queue and starts its worker
func NewQueue(ctx context.Context, yield time.Duration) *Queue {
	queueCtx, cancel := context.WithCancel(ctx)

	q := &Queue{
		notify: make(chan struct{}, 1),
		yield:  yield,
		ctx:    queueCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	log.Info().Dur("yield", yield).Msg("Check queue initialized")

	go q.worker()

	return q
}

// appends a job and wakes the worker
func (q *Queue) Submit(job Job) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of jobs waiting to run.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Running reports whether a job is executing right now.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// stops the worker after the current job; pending jobs are dropped
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := len(q.jobs)
	q.jobs = nil
	q.mu.Unlock()

	q.cancel()
	<-q.done

	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("Check queue closed with pending jobs")
	}
}

func (q *Queue) worker() {
	defer close(q.done)

	for {
		job, more := q.next()
		if job == nil {
			select {
			case <-q.ctx.Done():
				return
			case <-q.notify:
				continue
			}
		}

		q.run(job)

		q.mu.Lock()
		q.running = false
		q.mu.Unlock()

		if q.ctx.Err() != nil {
			return
		}
		if more && q.yield > 0 {
			timer := time.NewTimer(q.yield)
			select {
			case <-q.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// pops the head of the queue and reports whether more jobs remain behind it
func (q *Queue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	job := q.jobs[0]
	q.jobs[0] = nil
	q.jobs = q.jobs[1:]
	q.running = true
	return job, len(q.jobs) > 0
}

func (q *Queue) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Check job panicked")
		}
	}()

	if err := job.Execute(q.ctx); err != nil {
		log.Error().Err(err).Msg("Worker failed to execute job")
	}
}
