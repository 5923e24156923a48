package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"clientdesk/internal/store"
)

type recordingWriter struct {
	mu     sync.Mutex
	events []store.AppendAuditEventInput
}

func (w *recordingWriter) AppendAuditEvent(ctx context.Context, input store.AppendAuditEventInput) (store.AuditEvent, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, input)
	return store.AuditEvent{ID: "audit_test"}, nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.events)
}

func TestRecorderWritesEvents(t *testing.T) {
	writer := &recordingWriter{}
	recorder := NewRecorder(writer, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		recorder.Run(ctx)
	}()

	recorder.Record(store.AppendAuditEventInput{Connector: "telegram", ExternalID: "1", Action: "lookup"})
	recorder.Record(store.AppendAuditEventInput{Connector: "telegram", ExternalID: "2", Action: "command"})

	deadline := time.After(2 * time.Second)
	for writer.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("writer saw %d events, want 2", writer.count())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestRecorderFlushesOnShutdown(t *testing.T) {
	writer := &recordingWriter{}
	recorder := NewRecorder(writer, 16, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Enqueue before the writer loop ever runs, then run with a canceled
	// context: the shutdown flush must still drain the buffer.
	recorder.Record(store.AppendAuditEventInput{Connector: "telegram", ExternalID: "1", Action: "lookup"})
	recorder.Record(store.AppendAuditEventInput{Connector: "telegram", ExternalID: "2", Action: "lookup"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Run(ctx)

	if got := writer.count(); got != 2 {
		t.Fatalf("writer saw %d events after flush, want 2", got)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	writer := &recordingWriter{}
	recorder := NewRecorder(writer, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))

	recorder.Record(store.AppendAuditEventInput{Connector: "telegram", ExternalID: "1", Action: "lookup"})
	recorder.Record(store.AppendAuditEventInput{Connector: "telegram", ExternalID: "2", Action: "lookup"})

	if recorder.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", recorder.Dropped())
	}
}
