// Package jobs runs the storefront's periodic maintenance tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/repository"
	"storefront/internal/session"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Cron specs, with a leading seconds field.
const (
	PurgeRefreshTokensSpec = "0 0 * * * *"
	PurgeSessionsSpec      = "0 */10 * * * *"
	LowStockReportSpec     = "0 0 8 * * *"

	jobTimeout        = 2 * time.Minute
	lowStockThreshold = 5
	lowStockLimit     = 50
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

type Scheduler struct {
	cron     *cron.Cron
	tokens   repository.RefreshTokenRepository
	sessions session.Store
	products repository.ProductRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewScheduler(
	tokens repository.RefreshTokenRepository,
	sessions session.Store,
	products repository.ProductRepository,
	logger *zap.Logger,
) *Scheduler {
	cl := cronLogger{sugar: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		tokens:   tokens,
		sessions: sessions,
		products: products,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register adds every job to the schedule without starting it.
func (s *Scheduler) Register() error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"purge_refresh_tokens", PurgeRefreshTokensSpec, s.PurgeRefreshTokens},
		{"purge_sessions", PurgeSessionsSpec, s.PurgeSessions},
		{"low_stock_report", LowStockReportSpec, s.ReportLowStock},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, s.wrap(job.name, job.run)); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}
	return nil
}

func (s *Scheduler) wrap(name string, run func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		if err := run(ctx); err != nil {
			s.logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}

// Start registers the jobs and starts dispatching in the background.
func (s *Scheduler) Start() error {
	if err := s.Register(); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Job scheduler started", zap.Int("jobs", len(s.cron.Entries())))
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("Job scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

func (s *Scheduler) PurgeRefreshTokens(ctx context.Context) error {
	deleted, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("Purged refresh tokens", zap.Int64("deleted", deleted))
	}
	return nil
}

func (s *Scheduler) PurgeSessions(ctx context.Context) error {
	deleted, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return err
	}
	if deleted > 0 {
		s.logger.Info("Purged expired sessions", zap.Int("deleted", deleted))
	}
	return nil
}

func (s *Scheduler) ReportLowStock(ctx context.Context) error {
	products, err := s.products.LowStock(ctx, lowStockThreshold, lowStockLimit)
	if err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}

	slugs := make([]string, len(products))
	for i, p := range products {
		slugs[i] = fmt.Sprintf("%s=%d", p.Slug, p.Stock)
	}
	s.logger.Warn("Products running low on stock",
		zap.Int("count", len(products)),
		zap.Strings("products", slugs),
	)
	return nil
}
