// Package watcher adopts index snapshots written by a sibling process
// sharing the snapshot file, so one deployment's rebuild serves both.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"clientdesk/internal/lookup"
)

// Adopter receives externally produced snapshots.
type Adopter interface {
	AdoptSnapshot(snap lookup.Snapshot) bool
}

type Service struct {
	path    string
	store   lookup.SnapshotStore
	adopter Adopter
	logger  *slog.Logger
	watcher *fsnotify.Watcher
}

func New(path string, store lookup.SnapshotStore, adopter Adopter, logger *slog.Logger) (*Service, error) {
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Service{
		path:    path,
		store:   store,
		adopter: adopter,
		logger:  logger.With("component", "snapshot_watcher"),
		watcher: fileWatcher,
	}, nil
}

func (s *Service) Start(ctx context.Context) error {
	defer s.watcher.Close()

	// Watch the directory, not the file: snapshot writers publish via
	// rename, which replaces the watched inode.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := s.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch snapshot dir %s: %w", dir, err)
	}
	s.logger.Info("snapshot watcher started", "path", s.path)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("snapshot watcher stopped")
			return nil
		case event := <-s.watcher.Events:
			s.handleEvent(event)
		case err := <-s.watcher.Errors:
			if err != nil {
				s.logger.Error("snapshot watcher error", "error", err)
			}
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(s.path) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	snap, err := s.store.Load()
	if err != nil {
		if !errors.Is(err, lookup.ErrNoSnapshot) {
			s.logger.Warn("snapshot reload failed", "error", err)
		}
		return
	}
	if s.adopter.AdoptSnapshot(snap) {
		s.logger.Info("snapshot change adopted", "keys", len(snap.Entries), "built_at", snap.BuiltAt)
	}
}
