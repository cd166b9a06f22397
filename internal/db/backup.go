package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Backup writes a consistent snapshot of the database to dest using VACUUM INTO.
func (db *DB) Backup(ctx context.Context, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}
	// VACUUM INTO refuses to overwrite.
	_ = os.Remove(dest)

	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}

// BackupFileName returns the snapshot name for the given instant.
func BackupFileName(t time.Time) string {
	return fmt.Sprintf("backup_%s.db", t.Format("20060102_150405"))
}

// CleanupBackups removes backup files in dir older than retention and
// returns how many were deleted.
func CleanupBackups(dir string, retention time.Duration, now time.Time) (int, error) {
	if retention <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), "backup_") || filepath.Ext(file.Name()) != ".db" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(dir, file.Name())); err != nil {
				return removed, fmt.Errorf("remove %s: %w", file.Name(), err)
			}
			removed++
		}
	}
	return removed, nil
}

// BackupLoop snapshots the database every interval until ctx is done and
// prunes snapshots older than retention after each run.
func (db *DB) BackupLoop(ctx context.Context, dir string, interval, retention time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	db.logger.Info().Str("dir", dir).Dur("interval", interval).Msg("backup loop started")

	run := func() {
		dest := filepath.Join(dir, BackupFileName(time.Now()))
		if err := db.Backup(ctx, dest); err != nil {
			db.logger.Error().Err(err).Msg("backup failed")
			return
		}
		db.logger.Info().Str("path", dest).Msg("backup completed")

		removed, err := CleanupBackups(dir, retention, time.Now())
		if err != nil {
			db.logger.Error().Err(err).Msg("backup cleanup failed")
			return
		}
		if removed > 0 {
			db.logger.Info().Int("removed", removed).Msg("old backups removed")
		}
	}

	run()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
