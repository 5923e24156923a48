// Package scheduler keeps the lookup index fresh in the background, either
// on a fixed interval derived from the index TTL or on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var refreshCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Refresher rebuilds the index from the sheet.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Service struct {
	refresher Refresher
	logger    *slog.Logger
	interval  time.Duration
	schedule  cron.Schedule
	timeout   time.Duration

	// running guards against overlapping refreshes when a slow rebuild
	// outlasts the tick interval.
	running sync.Mutex
}

// New builds the service. cronExpr, when non-empty, takes precedence over
// interval and must be a five-field cron expression or a @descriptor.
func New(refresher Refresher, interval time.Duration, cronExpr string, timeout time.Duration, logger *slog.Logger) (*Service, error) {
	if interval < time.Second {
		interval = 10 * time.Minute
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	service := &Service{
		refresher: refresher,
		logger:    logger.With("component", "scheduler"),
		interval:  interval,
		timeout:   timeout,
	}
	if expr := strings.Join(strings.Fields(cronExpr), " "); expr != "" {
		schedule, err := refreshCronParser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("parse refresh schedule %q: %w", cronExpr, err)
		}
		service.schedule = schedule
	}
	return service, nil
}

func (s *Service) Start(ctx context.Context) error {
	if s.schedule != nil {
		s.logger.Info("refresh scheduler started", "mode", "cron")
		return s.runCron(ctx)
	}
	s.logger.Info("refresh scheduler started", "mode", "interval", "interval", s.interval.String())
	return s.runInterval(ctx)
}

func (s *Service) runInterval(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopped")
			return nil
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) runCron(ctx context.Context) error {
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("refresh scheduler stopped")
			return nil
		case <-timer.C:
			s.refresh(ctx)
		}
	}
}

func (s *Service) refresh(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("refresh still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	refreshCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.refresher.Refresh(refreshCtx); err != nil {
		s.logger.Warn("scheduled refresh failed", "error", err)
	}
}
