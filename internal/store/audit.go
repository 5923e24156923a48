package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AuditEvent struct {
	ID         string
	Connector  string
	ExternalID string
	Actor      string
	Action     string
	ClientKey  string
	Outcome    string
	Detail     string
	CreatedAt  time.Time
}

type AppendAuditEventInput struct {
	Connector  string
	ExternalID string
	Actor      string
	Action     string
	ClientKey  string
	Outcome    string
	Detail     string
}

type ListAuditEventsInput struct {
	Connector  string
	ExternalID string
	Action     string
	ClientKey  string
	Limit      int
}

// AuditStats aggregates lookup activity for the stats command.
type AuditStats struct {
	Total      int
	ByOutcome  map[string]int
	UniqueKeys int
	Since      time.Time
}

func (s *Store) AppendAuditEvent(ctx context.Context, input AppendAuditEventInput) (AuditEvent, error) {
	record := AuditEvent{
		ID:         "audit_" + uuid.NewString(),
		Connector:  strings.ToLower(strings.TrimSpace(input.Connector)),
		ExternalID: strings.TrimSpace(input.ExternalID),
		Actor:      strings.TrimSpace(input.Actor),
		Action:     strings.ToLower(strings.TrimSpace(input.Action)),
		ClientKey:  strings.TrimSpace(input.ClientKey),
		Outcome:    strings.ToLower(strings.TrimSpace(input.Outcome)),
		Detail:     strings.TrimSpace(input.Detail),
		CreatedAt:  time.Now().UTC(),
	}
	if record.Connector == "" || record.ExternalID == "" || record.Action == "" {
		return AuditEvent{}, fmt.Errorf("missing required audit event fields")
	}

	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO audit_events (
			id, connector, external_id, actor, action, client_key, outcome, detail, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.Connector,
		record.ExternalID,
		nullIfEmpty(record.Actor),
		record.Action,
		nullIfEmpty(record.ClientKey),
		nullIfEmpty(record.Outcome),
		nullIfEmpty(record.Detail),
		record.CreatedAt.Unix(),
	); err != nil {
		return AuditEvent{}, fmt.Errorf("insert audit event: %w", err)
	}
	return record, nil
}

func (s *Store) ListAuditEvents(ctx context.Context, input ListAuditEventsInput) ([]AuditEvent, error) {
	limit := input.Limit
	if limit < 1 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	whereParts := []string{"1=1"}
	args := make([]any, 0, 5)

	if connector := strings.ToLower(strings.TrimSpace(input.Connector)); connector != "" {
		whereParts = append(whereParts, "connector = ?")
		args = append(args, connector)
	}
	if externalID := strings.TrimSpace(input.ExternalID); externalID != "" {
		whereParts = append(whereParts, "external_id = ?")
		args = append(args, externalID)
	}
	if action := strings.ToLower(strings.TrimSpace(input.Action)); action != "" {
		whereParts = append(whereParts, "action = ?")
		args = append(args, action)
	}
	if clientKey := strings.TrimSpace(input.ClientKey); clientKey != "" {
		whereParts = append(whereParts, "client_key = ?")
		args = append(args, clientKey)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, connector, external_id, COALESCE(actor, ''), action, COALESCE(client_key, ''), COALESCE(outcome, ''), COALESCE(detail, ''), created_at_unix
		 FROM audit_events
		 WHERE `+strings.Join(whereParts, " AND ")+`
		 ORDER BY created_at_unix DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]AuditEvent, 0, limit)
	for rows.Next() {
		var event AuditEvent
		var createdAtUnix int64
		if err := rows.Scan(
			&event.ID,
			&event.Connector,
			&event.ExternalID,
			&event.Actor,
			&event.Action,
			&event.ClientKey,
			&event.Outcome,
			&event.Detail,
			&createdAtUnix,
		); err != nil {
			return nil, err
		}
		if createdAtUnix > 0 {
			event.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// LookupStats aggregates lookup audit events recorded since the given time.
func (s *Store) LookupStats(ctx context.Context, since time.Time) (AuditStats, error) {
	stats := AuditStats{ByOutcome: make(map[string]int), Since: since.UTC()}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT COALESCE(outcome, ''), COUNT(*)
		 FROM audit_events
		 WHERE action = 'lookup' AND created_at_unix >= ?
		 GROUP BY outcome`,
		since.UTC().Unix(),
	)
	if err != nil {
		return AuditStats{}, fmt.Errorf("query lookup stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return AuditStats{}, err
		}
		stats.ByOutcome[outcome] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return AuditStats{}, err
	}

	err = s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(DISTINCT client_key)
		 FROM audit_events
		 WHERE action = 'lookup' AND client_key IS NOT NULL AND created_at_unix >= ?`,
		since.UTC().Unix(),
	).Scan(&stats.UniqueKeys)
	if err != nil {
		return AuditStats{}, fmt.Errorf("query unique keys: %w", err)
	}
	return stats, nil
}
