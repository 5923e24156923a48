package lookup

import (
	"strings"
	"time"
)

// Index is an immutable snapshot mapping normalized search keys to 1-based
// row numbers in the backing sheet. A new Index is built on every refresh and
// swapped in atomically; it is never mutated after construction.
type Index struct {
	entries map[string]int
	builtAt time.Time
}

// BuildIndex constructs an index from the identifying column's cell values,
// where values[i] belongs to row i+2 (row 1 is the header row). Cells that
// normalize to an empty key are skipped; duplicate keys resolve to the later
// row (last seen wins).
func BuildIndex(values []string, builtAt time.Time) *Index {
	entries := make(map[string]int, len(values))
	for i, value := range values {
		key := Normalize(value)
		if key == "" {
			continue
		}
		entries[key] = i + 2
	}
	return &Index{entries: entries, builtAt: builtAt}
}

// indexFromEntries restores an index from a persisted snapshot.
func indexFromEntries(entries map[string]int, builtAt time.Time) *Index {
	copied := make(map[string]int, len(entries))
	for key, row := range entries {
		copied[key] = row
	}
	return &Index{entries: copied, builtAt: builtAt}
}

// Lookup returns the row number stored for key.
func (ix *Index) Lookup(key string) (int, bool) {
	row, ok := ix.entries[key]
	return row, ok
}

// SuffixMatch finds the stored key with the longest length that ends in key,
// covering the case where the sheet stores a country-code prefix the user
// omitted. The match must be unique: two stored keys of equal best length are
// ambiguous and yield no match.
func (ix *Index) SuffixMatch(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	bestLen := 0
	bestRow := 0
	ambiguous := false
	for stored, row := range ix.entries {
		if len(stored) <= len(key) || !strings.HasSuffix(stored, key) {
			continue
		}
		switch {
		case len(stored) > bestLen:
			bestLen = len(stored)
			bestRow = row
			ambiguous = false
		case len(stored) == bestLen:
			ambiguous = true
		}
	}
	if bestLen == 0 || ambiguous {
		return 0, false
	}
	return bestRow, true
}

// Len returns the number of unique keys.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// BuiltAt returns the index build timestamp.
func (ix *Index) BuiltAt() time.Time {
	return ix.builtAt
}

// Stale reports whether the index is older than ttl at the given instant.
func (ix *Index) Stale(ttl time.Duration, now time.Time) bool {
	return now.Sub(ix.builtAt) > ttl
}

// Entries returns a copy of the key-to-row mapping for snapshotting.
func (ix *Index) Entries() map[string]int {
	copied := make(map[string]int, len(ix.entries))
	for key, row := range ix.entries {
		copied[key] = row
	}
	return copied
}
