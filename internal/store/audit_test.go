package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "clientdesk_test.sqlite")
	sqlStore, err := New(dbPath)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = sqlStore.Close() })
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		t.Fatalf("migrate test store: %v", err)
	}
	return sqlStore
}

func TestAppendAndListAuditEvents(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	created, err := sqlStore.AppendAuditEvent(ctx, AppendAuditEventInput{
		Connector:  "telegram",
		ExternalID: "42",
		Actor:      "u1",
		Action:     "lookup",
		ClientKey:  "79161234567",
		Outcome:    "found",
		Detail:     "row 2",
	})
	if err != nil {
		t.Fatalf("append audit event: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated audit event id")
	}

	if _, err := sqlStore.AppendAuditEvent(ctx, AppendAuditEventInput{
		Connector:  "telegram",
		ExternalID: "43",
		Action:     "command",
		Detail:     "/status",
	}); err != nil {
		t.Fatalf("append second event: %v", err)
	}

	events, err := sqlStore.ListAuditEvents(ctx, ListAuditEventsInput{
		Connector: "telegram",
		Action:    "lookup",
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("list audit events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 lookup event, got %d", len(events))
	}
	if events[0].ClientKey != "79161234567" || events[0].Outcome != "found" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestAppendAuditEventRequiredFields(t *testing.T) {
	sqlStore := newTestStore(t)
	if _, err := sqlStore.AppendAuditEvent(context.Background(), AppendAuditEventInput{
		Connector: "telegram",
		Action:    "lookup",
	}); err == nil {
		t.Fatal("expected error for missing external id")
	}
}

func TestLookupStats(t *testing.T) {
	sqlStore := newTestStore(t)
	ctx := context.Background()

	inputs := []AppendAuditEventInput{
		{Connector: "telegram", ExternalID: "1", Action: "lookup", ClientKey: "111", Outcome: "found"},
		{Connector: "telegram", ExternalID: "1", Action: "lookup", ClientKey: "111", Outcome: "found"},
		{Connector: "telegram", ExternalID: "2", Action: "lookup", ClientKey: "222", Outcome: "not_found"},
		{Connector: "telegram", ExternalID: "2", Action: "command"},
	}
	for _, input := range inputs {
		if _, err := sqlStore.AppendAuditEvent(ctx, input); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	stats, err := sqlStore.LookupStats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("lookup stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("Total = %d, want 3", stats.Total)
	}
	if stats.ByOutcome["found"] != 2 || stats.ByOutcome["not_found"] != 1 {
		t.Fatalf("ByOutcome = %v", stats.ByOutcome)
	}
	if stats.UniqueKeys != 2 {
		t.Fatalf("UniqueKeys = %d, want 2", stats.UniqueKeys)
	}

	empty, err := sqlStore.LookupStats(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("lookup stats future: %v", err)
	}
	if empty.Total != 0 {
		t.Fatalf("future Total = %d, want 0", empty.Total)
	}
}
