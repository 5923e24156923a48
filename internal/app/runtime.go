package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"clientdesk/internal/audit"
	"clientdesk/internal/config"
	"clientdesk/internal/connectors"
	"clientdesk/internal/connectors/telegram"
	"clientdesk/internal/credential"
	"clientdesk/internal/httpapi"
	"clientdesk/internal/lookup"
	"clientdesk/internal/scheduler"
	"clientdesk/internal/sheets"
	"clientdesk/internal/store"
	"clientdesk/internal/watcher"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	engine     *lookup.Engine
	recorder   *audit.Recorder
	httpServer *http.Server
	watcher    *watcher.Service
	scheduler  *scheduler.Service
	connectors []connectors.Connector
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	for _, dir := range []string{filepath.Dir(cfg.DBPath), filepath.Dir(cfg.SnapshotPath), cfg.ChatLogRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	migrateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlStore.AutoMigrate(migrateCtx); err != nil {
		sqlStore.Close()
		return nil, err
	}

	creds, err := credential.Resolve(cfg.SheetsToken, cfg.SheetsTokenFile)
	if err != nil {
		// The runtime still starts: a persisted snapshot can serve
		// lookups while the credential is being provisioned.
		logger.Warn("no sheet credential configured, starting degraded", "error", err)
		creds = credential.Static("")
	}
	sheetClient := sheets.New(cfg.SheetsAPI, cfg.SpreadsheetID, cfg.SheetName, creds, logger.With("component", "sheets"))

	resolver, err := lookup.NewRowResolver(sheetClient, cfg.RowCacheSize)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}
	snapshots := lookup.NewFileSnapshotStore(cfg.SnapshotPath)
	engine := lookup.NewEngine(sheetClient, resolver, snapshots, lookup.Options{
		Keywords:     cfg.ColumnKeywords(),
		IndexTTL:     time.Duration(cfg.IndexTTLSec) * time.Second,
		MinDigits:    cfg.MinClientDigits,
		DedupeWindow: time.Duration(cfg.DedupeWindowSec) * time.Second,
		Logger:       logger,
	})

	recorder := audit.NewRecorder(sqlStore, 256, logger)

	schedulerService, err := scheduler.New(
		engine,
		time.Duration(cfg.IndexTTLSec)*time.Second,
		cfg.RefreshCron,
		time.Duration(cfg.RefreshTimeoutSec)*time.Second,
		logger,
	)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	watchService, err := watcher.New(cfg.SnapshotPath, snapshots, engine, logger)
	if err != nil {
		sqlStore.Close()
		return nil, err
	}

	handler := httpapi.NewRouter(httpapi.Dependencies{
		Config: cfg,
		Store:  sqlStore,
		Engine: engine,
		Logger: logger.With("component", "api"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	connectorList := []connectors.Connector{
		telegram.New(
			cfg.TelegramToken,
			cfg.TelegramAPI,
			cfg.ChatLogRoot,
			cfg.TelegramPoll,
			engine,
			sqlStore,
			recorder,
			logger.With("connector", "telegram"),
			telegram.WithAuthorizedUsers(cfg.AuthorizedUsers()),
			telegram.WithLookupTimeout(time.Duration(cfg.LookupTimeoutSec)*time.Second),
		),
	}

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		store:      sqlStore,
		engine:     engine,
		recorder:   recorder,
		httpServer: httpServer,
		watcher:    watchService,
		scheduler:  schedulerService,
		connectors: connectorList,
	}, nil
}

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("clientdesk runtime starting", "addr", r.cfg.HTTPAddr, "environment", r.cfg.Environment)
	r.recorder.Record(store.AppendAuditEventInput{
		Connector:  "system",
		ExternalID: "runtime",
		Actor:      "clientdesk",
		Action:     "startup",
		Detail:     r.cfg.Environment,
	})

	warmCtx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.RefreshTimeoutSec)*time.Second)
	if err := r.engine.Warm(warmCtx); err != nil {
		r.logger.Warn("initial index build failed, serving degraded until refresh succeeds", "error", err)
	}
	cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := r.recorder.Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		return r.watcher.Start(groupCtx)
	})
	group.Go(func() error {
		return r.scheduler.Start(groupCtx)
	})
	for _, conn := range r.connectors {
		connector := conn
		group.Go(func() error {
			return connector.Start(groupCtx)
		})
	}
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	runErr := group.Wait()

	// The recorder has already flushed, so the shutdown event goes to the
	// store directly.
	recordCtx, recordCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer recordCancel()
	if _, err := r.store.AppendAuditEvent(recordCtx, store.AppendAuditEventInput{
		Connector:  "system",
		ExternalID: "runtime",
		Actor:      "clientdesk",
		Action:     "shutdown",
		Detail:     r.cfg.Environment,
	}); err != nil {
		r.logger.Warn("record shutdown event", "error", err)
	}

	return runErr
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
