// Package audit records connector activity without ever blocking the
// message path. Events go into a buffered channel and a background writer
// drains them into the store; when the buffer is full the event is dropped
// and counted.
package audit

import (
	"context"
	"log/slog"
	"sync/atomic"

	"clientdesk/internal/store"
)

// EventWriter is the slice of the store the recorder needs.
type EventWriter interface {
	AppendAuditEvent(ctx context.Context, input store.AppendAuditEventInput) (store.AuditEvent, error)
}

type Recorder struct {
	writer  EventWriter
	logger  *slog.Logger
	events  chan store.AppendAuditEventInput
	dropped atomic.Int64
}

func NewRecorder(writer EventWriter, bufferSize int, logger *slog.Logger) *Recorder {
	if bufferSize < 1 {
		bufferSize = 256
	}
	return &Recorder{
		writer: writer,
		logger: logger.With("component", "audit"),
		events: make(chan store.AppendAuditEventInput, bufferSize),
	}
}

// Record enqueues an event. It never blocks; events beyond the buffer are
// dropped.
func (r *Recorder) Record(input store.AppendAuditEventInput) {
	select {
	case r.events <- input:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Run drains the event channel until ctx is canceled, then flushes whatever
// is still buffered.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case input := <-r.events:
			r.write(input)
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case input := <-r.events:
			r.write(input)
		default:
			return
		}
	}
}

func (r *Recorder) write(input store.AppendAuditEventInput) {
	// The parent context is likely canceled during flush; writes get their
	// own lifetime.
	if _, err := r.writer.AppendAuditEvent(context.Background(), input); err != nil {
		r.logger.Warn("audit event write failed", "error", err, "action", input.Action)
	}
}
