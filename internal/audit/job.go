package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Cleaner deletes appointments that ended before a cutoff.
type Cleaner interface {
	DeleteReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MonthlyJob archives the previous month on the 1st and then prunes
// appointments older than the retention period.
type MonthlyJob struct {
	exporter  *Exporter
	cleaner   Cleaner
	dir       string
	retention time.Duration
	logger    zerolog.Logger
}

func NewMonthlyJob(exporter *Exporter, cleaner Cleaner, dir string, retention time.Duration, logger zerolog.Logger) *MonthlyJob {
	if retention <= 0 {
		retention = 365 * 24 * time.Hour
	}
	return &MonthlyJob{
		exporter:  exporter,
		cleaner:   cleaner,
		dir:       dir,
		retention: retention,
		logger:    logger.With().Str("component", "audit_job").Logger(),
	}
}

// Run waits for the start of each month and runs the job until ctx is done.
func (j *MonthlyJob) Run(ctx context.Context) {
	for {
		next := nextFirstOfMonth(time.Now().In(j.exporter.loc))
		j.logger.Info().Time("next_run", next).Msg("next audit scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, _, err := j.RunOnce(ctx, time.Now()); err != nil {
			j.logger.Error().Err(err).Msg("monthly audit failed")
		}
	}
}

// RunOnce exports the month before now into the job directory and deletes
// appointments that ended before now minus the retention. Cleanup is skipped
// when the export fails.
func (j *MonthlyJob) RunOnce(ctx context.Context, now time.Time) (string, int64, error) {
	now = now.In(j.exporter.loc)
	previous := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, j.exporter.loc).AddDate(0, -1, 0)

	path, err := j.exportTo(ctx, previous)
	if err != nil {
		return "", 0, err
	}

	cutoff := now.Add(-j.retention)
	deleted, err := j.cleaner.DeleteReservationsBefore(ctx, cutoff)
	if err != nil {
		return path, 0, fmt.Errorf("cleanup: %w", err)
	}

	j.logger.Info().
		Str("file", path).
		Int64("deleted", deleted).
		Time("cutoff", cutoff).
		Msg("monthly audit finished")
	return path, deleted, nil
}

func (j *MonthlyJob) exportTo(ctx context.Context, month time.Time) (string, error) {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	path := filepath.Join(j.dir, FileName(month))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	if err := j.exporter.ExportMonth(ctx, month, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	return path, nil
}

// FileName is the workbook name for month.
func FileName(month time.Time) string {
	return fmt.Sprintf("appointments_%s.xlsx", month.Format("2006-01"))
}

func nextFirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}
