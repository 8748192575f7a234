package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// ArchiveService periodically moves journal rows older than the retention
// window to cold storage.
type ArchiveService struct {
	archiver  domain.Archiver
	retention time.Duration
	lock      domain.LockManager
	lockTTL   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiveService creates an ArchiveService.
func NewArchiveService(archiver domain.Archiver, retention time.Duration, logger *slog.Logger) *ArchiveService {
	return &ArchiveService{
		archiver:  archiver,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// WithLock makes each run hold "lock:archive" for at most ttl, so only one
// process archives a shared journal at a time.
func (a *ArchiveService) WithLock(l domain.LockManager, ttl time.Duration) *ArchiveService {
	a.lock = l
	a.lockTTL = ttl
	return a
}

// Run performs one archive pass and returns the number of trades and bars
// exported. A run skipped because another process holds the lock returns
// zero counts and no error.
func (a *ArchiveService) Run(ctx context.Context) (trades, bars int64, err error) {
	if a.lock != nil {
		unlock, lerr := a.lock.Acquire(ctx, "archive", a.lockTTL)
		if errors.Is(lerr, domain.ErrLockHeld) {
			a.logger.Info("archive run skipped, lock held elsewhere", slog.String("reason", lerr.Error()))
			return 0, 0, nil
		}
		if lerr != nil {
			return 0, 0, fmt.Errorf("archive: acquire lock: %w", lerr)
		}
		defer unlock()
	}

	cutoff := a.now().Add(-a.retention)
	a.logger.Info("starting archive run", slog.Time("cutoff", cutoff))

	trades, err = a.archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("archive: trades before %v: %w", cutoff, err)
	}
	bars, err = a.archiver.ArchiveBars(ctx, cutoff)
	if err != nil {
		return trades, 0, fmt.Errorf("archive: bars before %v: %w", cutoff, err)
	}

	a.logger.Info("archive run complete",
		slog.Int64("trades_archived", trades),
		slog.Int64("bars_archived", bars),
	)
	return trades, bars, nil
}

// RunLoop archives on a fixed interval until ctx is cancelled.
func (a *ArchiveService) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
