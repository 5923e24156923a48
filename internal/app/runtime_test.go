package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"clientdesk/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return config.Config{
		Environment:       "test",
		HTTPAddr:          "127.0.0.1:0",
		DataDir:           dataDir,
		DBPath:            filepath.Join(dataDir, "meta.sqlite"),
		SnapshotPath:      filepath.Join(dataDir, "index-snapshot.json"),
		ChatLogRoot:       filepath.Join(dataDir, "chatlogs"),
		SheetName:         "Sheet1",
		SheetsAPI:         "http://127.0.0.1:1",
		ColumnKeywordsCSV: "client,number",
		TelegramAPI:       "http://127.0.0.1:1",
		TelegramPoll:      1,
		IndexTTLSec:       600,
		RowCacheSize:      16,
		MinClientDigits:   3,
		DedupeWindowSec:   30,
		LookupTimeoutSec:  5,
		RefreshTimeoutSec: 5,
	}
}

func TestNewRuntimeWithoutCredentials(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runtime, err := New(testConfig(t), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer runtime.Close()
}

func TestRuntimeRunStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runtime, err := New(testConfig(t), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer runtime.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runtime.Run(ctx)
	}()
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop after cancel")
	}
}
