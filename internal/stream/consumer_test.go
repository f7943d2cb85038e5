package stream

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/RishiKendai/labcheck/internal/ingest"
	"github.com/RishiKendai/labcheck/internal/metrics"
	"github.com/RishiKendai/labcheck/internal/models"
	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	"github.com/redis/go-redis/v9"
)

// commandRecorder answers every command locally and remembers its name.
type commandRecorder struct {
	mu    sync.Mutex
	names []string
}

func (r *commandRecorder) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("dial disabled")
	}
}

func (r *commandRecorder) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		r.mu.Lock()
		r.names = append(r.names, cmd.Name())
		r.mu.Unlock()
		return nil
	}
}

func (r *commandRecorder) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		return nil
	}
}

func (r *commandRecorder) commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

type handlerFunc func(ctx context.Context, event *models.ReportEvent) (ingest.Outcome, error)

func (f handlerFunc) IngestEvent(ctx context.Context, event *models.ReportEvent) (ingest.Outcome, error) {
	return f(ctx, event)
}

func counterValue(t *testing.T, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.StreamEvents.WithLabelValues(outcome).Write(&m); err != nil {
		t.Fatalf("read counter %q: %v", outcome, err)
	}
	return m.GetCounter().GetValue()
}

func newTestConsumer(t *testing.T, handler EventHandler) (*Consumer, *commandRecorder) {
	t.Helper()
	rec := &commandRecorder{}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(rec)
	t.Cleanup(func() { client.Close() })

	retry := NewRetryHandler(client, "test:dlq")
	// long enough that a cancelled context always wins the backoff select
	retry.baseDelay = time.Hour
	retry.maxDelay = time.Hour

	return NewConsumer(client, "test:reports", "test-group", "test-consumer", handler, retry, time.Hour), rec
}

func TestConsumerHandle(t *testing.T) {
	validEntry := map[string]interface{}{"name": "lab-1", "text": "some report text"}

	tests := []struct {
		name         string
		values       map[string]interface{}
		handler      func(cancel context.CancelFunc) handlerFunc
		wantCommands []string
		wantCounts   map[string]float64
	}{
		{
			name:   "imported",
			values: validEntry,
			handler: func(context.CancelFunc) handlerFunc {
				return func(context.Context, *models.ReportEvent) (ingest.Outcome, error) {
					return ingest.OutcomeImported, nil
				}
			},
			wantCommands: []string{"xack"},
			wantCounts:   map[string]float64{"imported": 1, "dead_letter": 0},
		},
		{
			name:   "malformed entry",
			values: map[string]interface{}{"payload": "{not json"},
			handler: func(context.CancelFunc) handlerFunc {
				return func(context.Context, *models.ReportEvent) (ingest.Outcome, error) {
					t.Error("handler called for malformed entry")
					return "", nil
				}
			},
			wantCommands: []string{"xack"},
			wantCounts:   map[string]float64{"invalid": 1, "dead_letter": 0},
		},
		{
			name:   "permanent failure is dead-lettered",
			values: validEntry,
			handler: func(context.CancelFunc) handlerFunc {
				return func(context.Context, *models.ReportEvent) (ingest.Outcome, error) {
					return "", ingest.ErrEmptyText
				}
			},
			wantCommands: []string{"xadd", "xack"},
			wantCounts:   map[string]float64{"dead_letter": 1},
		},
		{
			name:   "shutdown leaves entry pending",
			values: validEntry,
			handler: func(cancel context.CancelFunc) handlerFunc {
				return func(context.Context, *models.ReportEvent) (ingest.Outcome, error) {
					cancel()
					return "", errors.New("mongo unavailable")
				}
			},
			wantCommands: nil,
			wantCounts:   map[string]float64{"dead_letter": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			c, rec := newTestConsumer(t, tt.handler(cancel))

			before := make(map[string]float64, len(tt.wantCounts))
			for outcome := range tt.wantCounts {
				before[outcome] = counterValue(t, outcome)
			}

			c.handle(ctx, &redis.XMessage{ID: "1700000000000-0", Values: tt.values})

			if diff := cmp.Diff(tt.wantCommands, rec.commands()); diff != "" {
				t.Errorf("redis commands mismatch (-want +got):\n%s", diff)
			}
			for outcome, want := range tt.wantCounts {
				if got := counterValue(t, outcome) - before[outcome]; got != want {
					t.Errorf("%s events = %v, want %v", outcome, got, want)
				}
			}
		})
	}
}
