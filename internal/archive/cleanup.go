package archive

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CleanupService periodically deletes archive_records rows older than a
// configured retention window, grounded on the teacher's
// postgres.CleanupService. Unlike the teacher's multi-table version this
// touches a single table, so no transaction is needed.
type CleanupService struct {
	Pool          PgxPool
	RetentionDays int
}

// NewCleanupService builds a CleanupService, defaulting to 90 days of
// retention when retentionDays is unset.
func NewCleanupService(pool PgxPool, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupService{Pool: pool, RetentionDays: retentionDays}
}

// CleanupOldData deletes archive_records rows with created_at older than
// the retention window.
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	tag, err := s.Pool.Exec(ctx, `DELETE FROM archive_records WHERE created_at < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("op=archive.CleanupOldData: %w", err)
	}

	slog.Info("archive cleanup completed",
		slog.Int64("deleted_rows", tag.RowsAffected()),
		slog.Time("cutoff", cutoff),
	)
	return nil
}

// RunPeriodic runs CleanupOldData once immediately and then on every tick
// of interval, until ctx is canceled.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial archive cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("archive cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic archive cleanup failed", slog.Any("error", err))
			}
		}
	}
}
