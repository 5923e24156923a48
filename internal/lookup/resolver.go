package lookup

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RowFetcher retrieves a single sheet row by its 1-based row number.
type RowFetcher interface {
	Row(ctx context.Context, rowNumber int) ([]string, error)
}

// Field is one header/value pair of a resolved record, in sheet column order.
type Field struct {
	Name  string
	Value string
}

// Record is a fully resolved client row.
type Record struct {
	RowNumber int
	Fields    []Field
}

// String renders the record as "Header: Value" lines, matching how replies
// present it in chat.
func (r Record) String() string {
	var b strings.Builder
	for i, field := range r.Fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(field.Name)
		b.WriteString(": ")
		b.WriteString(field.Value)
	}
	return b.String()
}

// RowResolver fetches individual rows on demand and caches the resulting
// records, so repeat lookups for the same client cost nothing upstream. The
// cache is cleared whenever the index is rebuilt, since row contents may
// have changed.
type RowResolver struct {
	fetcher RowFetcher
	cache   *lru.Cache[int, Record]
}

func NewRowResolver(fetcher RowFetcher, cacheSize int) (*RowResolver, error) {
	if cacheSize < 1 {
		cacheSize = 1
	}
	cache, err := lru.New[int, Record](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create row cache: %w", err)
	}
	return &RowResolver{fetcher: fetcher, cache: cache}, nil
}

// Resolve returns the record for rowNumber, zipping the row's cells with the
// schema headers. Cells beyond the header width and empty cells are omitted;
// headers beyond the row width resolve to nothing rather than a blank field.
func (r *RowResolver) Resolve(ctx context.Context, schema Schema, rowNumber int) (Record, error) {
	if record, ok := r.cache.Get(rowNumber); ok {
		return record, nil
	}
	cells, err := r.fetcher.Row(ctx, rowNumber)
	if err != nil {
		return Record{}, fmt.Errorf("fetch row %d: %w", rowNumber, err)
	}
	record := Record{RowNumber: rowNumber}
	for i, header := range schema.Headers {
		if i >= len(cells) {
			break
		}
		value := strings.TrimSpace(cells[i])
		if value == "" {
			continue
		}
		name := strings.TrimSpace(header)
		if name == "" {
			name = fmt.Sprintf("Column %d", i+1)
		}
		record.Fields = append(record.Fields, Field{Name: name, Value: value})
	}
	r.cache.Add(rowNumber, record)
	return record, nil
}

// Reset drops all cached records.
func (r *RowResolver) Reset() {
	r.cache.Purge()
}

// CacheLen returns the number of cached records.
func (r *RowResolver) CacheLen() int {
	return r.cache.Len()
}
