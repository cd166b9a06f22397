package config

import (
	"context"
	"os"
	"time"
)

// WatchSchedule polls schedule.yaml and calls onUpdate with the new config
// whenever the file's modification time moves forward. The file must exist
// and parse when the watch starts; later read or parse errors are skipped
// until the next change.
func WatchSchedule(ctx context.Context, path string, interval time.Duration, onUpdate func(*ScheduleConfig)) error {
	if path == "" {
		path = "configs/schedule.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	if _, err := LoadScheduleConfig(path); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadScheduleConfig(path)
				if err != nil {
					continue
				}
				lastMod = info.ModTime()
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
