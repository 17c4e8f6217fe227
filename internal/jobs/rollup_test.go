package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"glowsalon/backend/internal/domain"
)

type recordingRoller struct {
	mu   sync.Mutex
	days []string
	err  error
}

func (r *recordingRoller) RollupDay(_ context.Context, day time.Time) (domain.RollupResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	date := day.Format("2006-01-02")
	r.days = append(r.days, date)
	return domain.RollupResponse{Date: date}, r.err
}

func (r *recordingRoller) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.days...)
}

func TestRunOnceRollsUpYesterdayAndToday(t *testing.T) {
	roller := &recordingRoller{}
	runner := NewRollupRunner(roller, nil, "main-salon", time.Minute, nil)
	runner.now = func() time.Time { return time.Date(2025, 3, 1, 0, 5, 0, 0, time.UTC) }

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	got := roller.calls()
	if len(got) != 2 || got[0] != "2025-02-28" || got[1] != "2025-03-01" {
		t.Fatalf("unexpected rollup days: %v", got)
	}
}

func TestRunOnceStopsOnError(t *testing.T) {
	roller := &recordingRoller{err: errors.New("db down")}
	runner := NewRollupRunner(roller, nil, "main-salon", time.Minute, nil)

	if err := runner.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected rollup error to surface")
	}
	if len(roller.calls()) != 1 {
		t.Fatalf("expected the runner to stop after the first failure, got %v", roller.calls())
	}
}

func TestRunStopsWithContext(t *testing.T) {
	roller := &recordingRoller{}
	runner := NewRollupRunner(roller, nil, "main-salon", 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(roller.calls()) < 4 {
		select {
		case <-deadline:
			t.Fatalf("runner did not tick, calls=%v", roller.calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
}
