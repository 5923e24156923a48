package lookup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"clientdesk/internal/sheets"
)

// SheetSource provides the sheet reads the engine needs: the header row and
// the full identifying column for rebuilds, single rows for resolution.
type SheetSource interface {
	HeaderRow(ctx context.Context) ([]string, error)
	Column(ctx context.Context, index int) ([]string, error)
	RowFetcher
}

// Outcome classifies a lookup result.
type Outcome int

const (
	// OutcomeNoKey means the message carried no usable identifier.
	OutcomeNoKey Outcome = iota
	// OutcomeDuplicate means the same sender repeated the same key in the
	// same conversation within the dedupe window.
	OutcomeDuplicate
	// OutcomeFound means a record was resolved.
	OutcomeFound
	// OutcomeNotFound means the key is not in the index, even after a
	// suffix match and a fresh rebuild.
	OutcomeNotFound
	// OutcomeError means the lookup could not complete, typically because
	// the sheet is unreachable or the credential was rejected.
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoKey:
		return "no_key"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFound:
		return "found"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Query is one addressed message to look up.
type Query struct {
	Conversation string
	Sender       string
	Text         string
}

// Result is the tagged outcome of a lookup.
type Result struct {
	Outcome Outcome
	Key     string
	Record  Record
	// SuffixMatched is set when the key matched a stored identifier by
	// suffix rather than exactly.
	SuffixMatched bool
	Err           error
}

// Stats is a point-in-time view of the engine for status commands.
type Stats struct {
	IndexSize  int
	BuiltAt    time.Time
	Stale      bool
	KeyHeader  string
	Headers    int
	CachedRows int
	Degraded   bool
	Unresolved bool
}

// Options configures an Engine.
type Options struct {
	Keywords     []string
	IndexTTL     time.Duration
	MinDigits    int
	DedupeWindow time.Duration
	Logger       *slog.Logger
}

// tableState pairs a schema with the index built from it. The two are
// swapped as one value so a reader never resolves rows against a schema
// from a different rebuild than the index it matched in.
type tableState struct {
	schema Schema
	index  *Index
}

// Engine ties together key extraction, the index, the schema, and row
// resolution. The index and schema are swapped atomically so lookups never
// block behind a rebuild, and concurrent rebuild requests collapse into one.
type Engine struct {
	source    SheetSource
	resolver  *RowResolver
	snapshots SnapshotStore
	logger    *slog.Logger

	keywords     []string
	indexTTL     time.Duration
	minDigits    int
	dedupeWindow time.Duration

	state atomic.Pointer[tableState]

	// degraded is set when the sheet credential is rejected; lookups keep
	// serving the last good index but report errors once there is none.
	degraded atomic.Bool
	// unresolved is set when the sheet has no header row; lookups report
	// not-found until a refresh sees headers again.
	unresolved atomic.Bool

	rebuilds singleflight.Group

	dedupeMu sync.Mutex
	dedupe   map[string]time.Time

	now func() time.Time
}

func NewEngine(source SheetSource, resolver *RowResolver, snapshots SnapshotStore, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.IndexTTL <= 0 {
		opts.IndexTTL = 10 * time.Minute
	}
	if opts.MinDigits < 1 {
		opts.MinDigits = 1
	}
	return &Engine{
		source:       source,
		resolver:     resolver,
		snapshots:    snapshots,
		logger:       logger.With("component", "lookup"),
		keywords:     opts.Keywords,
		indexTTL:     opts.IndexTTL,
		minDigits:    opts.MinDigits,
		dedupeWindow: opts.DedupeWindow,
		dedupe:       make(map[string]time.Time),
		now:          time.Now,
	}
}

// Warm prepares the engine for serving: it adopts a persisted snapshot when
// one exists and is younger than the index TTL, otherwise it builds the
// index from the sheet. A cold start with a fresh snapshot touches the sheet
// API not at all.
func (e *Engine) Warm(ctx context.Context) error {
	var expired *Snapshot
	if e.snapshots != nil {
		snap, err := e.snapshots.Load()
		switch {
		case err == nil && e.now().Sub(snap.BuiltAt) < e.indexTTL:
			e.adopt(snap)
			e.logger.Info("index restored from snapshot",
				"keys", len(snap.Entries),
				"built_at", snap.BuiltAt)
			return nil
		case err == nil:
			e.logger.Info("snapshot older than index ttl, rebuilding", "built_at", snap.BuiltAt)
			expired = &snap
		case !errors.Is(err, ErrNoSnapshot):
			e.logger.Warn("snapshot load failed, rebuilding", "error", err)
		}
	}
	err := e.Refresh(ctx)
	if err != nil && expired != nil {
		// An expired index still beats none at all while the sheet is
		// unreachable.
		e.adopt(*expired)
		if errors.Is(err, sheets.ErrAuth) {
			e.degraded.Store(true)
		}
		e.logger.Warn("rebuild failed, serving expired snapshot",
			"error", err, "built_at", expired.BuiltAt)
	}
	return err
}

// Refresh rebuilds the index from the sheet and persists a snapshot.
// Concurrent callers share a single rebuild.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.rebuilds.Do("rebuild", func() (any, error) {
		return nil, e.rebuild(ctx)
	})
	return err
}

func (e *Engine) rebuild(ctx context.Context) error {
	headers, err := e.source.HeaderRow(ctx)
	if err != nil {
		return e.classifyRebuildError(err)
	}
	schema, err := DiscoverSchema(headers, e.keywords)
	if err != nil {
		if errors.Is(err, ErrSchemaUnresolved) {
			e.unresolved.Store(true)
			e.logger.Warn("sheet has no header row, lookups disabled until one appears")
		}
		return err
	}
	values, err := e.source.Column(ctx, schema.KeyColumn)
	if err != nil {
		return e.classifyRebuildError(err)
	}
	builtAt := e.now()
	index := BuildIndex(values, builtAt)
	e.state.Store(&tableState{schema: schema, index: index})
	e.resolver.Reset()
	e.degraded.Store(false)
	e.unresolved.Store(false)
	e.logger.Info("index rebuilt",
		"keys", index.Len(),
		"key_column", schema.KeyHeader(),
		"rows_scanned", len(values))
	if e.snapshots != nil {
		snap := Snapshot{
			BuiltAt:   builtAt,
			KeyColumn: schema.KeyColumn,
			Headers:   schema.Headers,
			Entries:   index.Entries(),
		}
		if err := e.snapshots.Save(snap); err != nil {
			e.logger.Warn("snapshot save failed", "error", err)
		}
	}
	return nil
}

func (e *Engine) classifyRebuildError(err error) error {
	if errors.Is(err, sheets.ErrAuth) {
		e.degraded.Store(true)
		e.logger.Error("sheet credential rejected, serving last good index", "error", err)
	}
	return err
}

// AdoptSnapshot swaps in an externally produced snapshot, typically written
// by a sibling process sharing the snapshot file. Snapshots older than the
// current index are ignored.
func (e *Engine) AdoptSnapshot(snap Snapshot) bool {
	if current := e.state.Load(); current != nil && !snap.BuiltAt.After(current.index.BuiltAt()) {
		return false
	}
	e.adopt(snap)
	e.logger.Info("adopted external snapshot",
		"keys", len(snap.Entries),
		"built_at", snap.BuiltAt)
	return true
}

func (e *Engine) adopt(snap Snapshot) {
	e.state.Store(&tableState{
		schema: Schema{Headers: snap.Headers, KeyColumn: snap.KeyColumn},
		index:  indexFromEntries(snap.Entries, snap.BuiltAt),
	})
	e.resolver.Reset()
	e.degraded.Store(false)
	e.unresolved.Store(false)
}

// Lookup runs one addressed message through the full pipeline: extract a
// candidate key, dedupe, consult the index (with suffix fallback and one
// synchronous rebuild on any miss), and resolve the row. Only answered
// lookups arm the dedupe window, so a failed resolve can be retried at once.
func (e *Engine) Lookup(ctx context.Context, query Query) Result {
	candidate := ExtractCandidate(query.Text, e.minDigits)
	if candidate == "" {
		return Result{Outcome: OutcomeNoKey}
	}
	key := Normalize(candidate)
	if key == "" {
		return Result{Outcome: OutcomeNoKey}
	}
	if e.isDuplicate(query, key) {
		return Result{Outcome: OutcomeDuplicate, Key: key}
	}

	refreshed := false
	state := e.state.Load()
	if state == nil {
		if err := e.Refresh(ctx); err != nil {
			if errors.Is(err, ErrSchemaUnresolved) {
				e.markSeen(query, key)
				return Result{Outcome: OutcomeNotFound, Key: key}
			}
			return Result{Outcome: OutcomeError, Key: key, Err: err}
		}
		refreshed = true
		state = e.state.Load()
	}
	if e.unresolved.Load() {
		e.markSeen(query, key)
		return Result{Outcome: OutcomeNotFound, Key: key}
	}

	row, suffix, ok := e.find(state.index, key)
	if !ok && !refreshed && !e.degraded.Load() {
		// The key may have been added since the last rebuild.
		if err := e.Refresh(ctx); err != nil {
			e.logger.Warn("rebuild on miss failed", "error", err)
		} else {
			state = e.state.Load()
			row, suffix, ok = e.find(state.index, key)
		}
	}
	if !ok {
		e.markSeen(query, key)
		return Result{Outcome: OutcomeNotFound, Key: key}
	}

	record, err := e.resolver.Resolve(ctx, state.schema, row)
	if err != nil {
		if errors.Is(err, sheets.ErrAuth) {
			e.degraded.Store(true)
		}
		return Result{Outcome: OutcomeError, Key: key, Err: err}
	}
	e.markSeen(query, key)
	return Result{Outcome: OutcomeFound, Key: key, Record: record, SuffixMatched: suffix}
}

func (e *Engine) find(index *Index, key string) (row int, suffix, ok bool) {
	if row, ok := index.Lookup(key); ok {
		return row, false, true
	}
	if row, ok := index.SuffixMatch(key); ok {
		return row, true, true
	}
	return 0, false, false
}

func (e *Engine) isDuplicate(query Query, key string) bool {
	if e.dedupeWindow <= 0 {
		return false
	}
	e.dedupeMu.Lock()
	defer e.dedupeMu.Unlock()
	now := e.now()
	id := query.Conversation + "\x00" + query.Sender + "\x00" + key
	if seen, ok := e.dedupe[id]; ok && now.Sub(seen) < e.dedupeWindow {
		return true
	}
	// Opportunistic sweep keeps the map from growing with dead entries.
	for k, seen := range e.dedupe {
		if now.Sub(seen) >= e.dedupeWindow {
			delete(e.dedupe, k)
		}
	}
	return false
}

func (e *Engine) markSeen(query Query, key string) {
	if e.dedupeWindow <= 0 {
		return
	}
	e.dedupeMu.Lock()
	defer e.dedupeMu.Unlock()
	id := query.Conversation + "\x00" + query.Sender + "\x00" + key
	e.dedupe[id] = e.now()
}

// Stats reports the engine's current state.
func (e *Engine) Stats() Stats {
	stats := Stats{
		Degraded:   e.degraded.Load(),
		Unresolved: e.unresolved.Load(),
		CachedRows: e.resolver.CacheLen(),
	}
	if state := e.state.Load(); state != nil {
		stats.IndexSize = state.index.Len()
		stats.BuiltAt = state.index.BuiltAt()
		stats.Stale = state.index.Stale(e.indexTTL, e.now())
		stats.KeyHeader = state.schema.KeyHeader()
		stats.Headers = len(state.schema.Headers)
	}
	return stats
}

// Ready reports whether the engine holds a usable index.
func (e *Engine) Ready() bool {
	return e.state.Load() != nil && !e.unresolved.Load()
}
