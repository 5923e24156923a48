package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingRefresher struct {
	calls atomic.Int64
	block chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context) error {
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIntervalRefresh(t *testing.T) {
	refresher := &countingRefresher{}
	service, err := New(refresher, time.Second, "", time.Minute, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	service.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		service.Start(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for refresher.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("refresher called %d times, want at least 2", refresher.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestOverlappingRefreshSkipped(t *testing.T) {
	refresher := &countingRefresher{block: make(chan struct{})}
	service, err := New(refresher, time.Minute, "", time.Minute, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		service.refresh(ctx)
	}()
	// Wait until the first refresh holds the lock, then a second tick
	// must return without invoking the refresher again.
	deadline := time.After(2 * time.Second)
	for refresher.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("first refresh never started")
		case <-time.After(time.Millisecond):
		}
	}
	service.refresh(ctx)
	if got := refresher.calls.Load(); got != 1 {
		t.Fatalf("refresher called %d times, want 1", got)
	}
	close(refresher.block)
	wg.Wait()
}

func TestCronScheduleParsing(t *testing.T) {
	if _, err := New(&countingRefresher{}, time.Minute, "*/5 * * * *", time.Minute, discardLogger()); err != nil {
		t.Fatalf("valid cron rejected: %v", err)
	}
	if _, err := New(&countingRefresher{}, time.Minute, "@hourly", time.Minute, discardLogger()); err != nil {
		t.Fatalf("descriptor rejected: %v", err)
	}
	if _, err := New(&countingRefresher{}, time.Minute, "not a schedule", time.Minute, discardLogger()); err == nil {
		t.Fatal("invalid cron accepted")
	}
}
