package lookup

import (
	"errors"
	"strings"
)

// ErrSchemaUnresolved is returned when the sheet has no header row, leaving
// no way to locate the identifying column. Lookups against an unresolved
// schema report not-found instead of failing.
var ErrSchemaUnresolved = errors.New("lookup: header row is empty")

// Schema is the ordered header row plus the index of the identifying column.
// It is immutable once discovered and recomputed wholesale on every refresh.
type Schema struct {
	Headers   []string
	KeyColumn int
}

// KeyHeader returns the name of the identifying column.
func (s Schema) KeyHeader() string {
	if s.KeyColumn < 0 || s.KeyColumn >= len(s.Headers) {
		return ""
	}
	return s.Headers[s.KeyColumn]
}

// DiscoverSchema scans headers in order and picks the first whose
// lower-trimmed name contains any of the keywords as the identifying column.
// When nothing matches, the first column is used.
func DiscoverSchema(headers []string, keywords []string) (Schema, error) {
	if len(headers) == 0 {
		return Schema{}, ErrSchemaUnresolved
	}
	for i, header := range headers {
		name := strings.ToLower(strings.TrimSpace(header))
		for _, keyword := range keywords {
			if keyword != "" && strings.Contains(name, keyword) {
				return Schema{Headers: headers, KeyColumn: i}, nil
			}
		}
	}
	return Schema{Headers: headers, KeyColumn: 0}, nil
}
