package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"agenda/internal/model"
)

// GetWorkingHours returns the schedule for a weekday (0=Sunday).
// A weekday with no row is a non-working day.
func (db *DB) GetWorkingHours(ctx context.Context, weekday time.Weekday) (model.WorkingHours, error) {
	h := model.WorkingHours{DayOfWeek: int(weekday)}
	var updatedAt sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT is_work_day, start_time, end_time, updated_at
		FROM work_schedules
		WHERE day_of_week = ?`,
		int(weekday),
	).Scan(&h.IsWorkDay, &h.StartTime, &h.EndTime, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return h, nil
	}
	if err != nil {
		return h, fmt.Errorf("get working hours: %w", err)
	}
	if updatedAt.Valid {
		h.UpdatedAt = updatedAt.Time
	}
	return h, nil
}

// ListWorkingHours returns all seven weekdays, Sunday first.
func (db *DB) ListWorkingHours(ctx context.Context) ([]model.WorkingHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT day_of_week, is_work_day, start_time, end_time, updated_at
		FROM work_schedules
		ORDER BY day_of_week`)
	if err != nil {
		return nil, fmt.Errorf("list working hours: %w", err)
	}
	defer rows.Close()

	week := make([]model.WorkingHours, 7)
	for day := range week {
		week[day].DayOfWeek = day
	}
	for rows.Next() {
		var h model.WorkingHours
		var updatedAt sql.NullTime
		if err := rows.Scan(&h.DayOfWeek, &h.IsWorkDay, &h.StartTime, &h.EndTime, &updatedAt); err != nil {
			return nil, err
		}
		if updatedAt.Valid {
			h.UpdatedAt = updatedAt.Time
		}
		if h.DayOfWeek >= 0 && h.DayOfWeek < 7 {
			week[h.DayOfWeek] = h
		}
	}
	return week, rows.Err()
}

// SaveWorkingHours upserts the given weekdays in one transaction.
func (db *DB) SaveWorkingHours(ctx context.Context, week []model.WorkingHours) error {
	return db.upsertWorkingHours(ctx, week, false)
}

// SeedWorkingHours inserts weekdays that have no row yet and leaves existing rows alone.
func (db *DB) SeedWorkingHours(ctx context.Context, week []model.WorkingHours) error {
	return db.upsertWorkingHours(ctx, week, true)
}

func (db *DB) upsertWorkingHours(ctx context.Context, week []model.WorkingHours, seedOnly bool) error {
	query := `
		INSERT INTO work_schedules (day_of_week, is_work_day, start_time, end_time, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(day_of_week) DO UPDATE SET
			is_work_day = excluded.is_work_day,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			updated_at = excluded.updated_at`
	if seedOnly {
		query = `
		INSERT OR IGNORE INTO work_schedules (day_of_week, is_work_day, start_time, end_time, updated_at)
		VALUES (?, ?, ?, ?, ?)`
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, h := range week {
		if _, err := tx.ExecContext(ctx, query, h.DayOfWeek, h.IsWorkDay, h.StartTime, h.EndTime, now); err != nil {
			return fmt.Errorf("save working hours for day %d: %w", h.DayOfWeek, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetSettings returns the typed settings, falling back to defaults for missing keys.
func (db *DB) GetSettings(ctx context.Context) (model.Settings, error) {
	s := model.DefaultSettings()

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return s, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return s, err
		}
		switch key {
		case model.SettingSlotInterval:
			// A non-numeric value surfaces as a zero interval and is
			// reported by the resolver as a configuration error.
			n, _ := strconv.Atoi(value)
			s.SlotIntervalMinutes = n
		case model.SettingAllowClientReschedule:
			b, err := strconv.ParseBool(value)
			if err == nil {
				s.AllowClientReschedule = b
			}
		}
	}
	return s, rows.Err()
}

// GetSlotInterval returns the configured slot interval in minutes.
func (db *DB) GetSlotInterval(ctx context.Context) (int, error) {
	s, err := db.GetSettings(ctx)
	if err != nil {
		return 0, err
	}
	return s.SlotIntervalMinutes, nil
}

// SaveSettings writes all typed settings.
func (db *DB) SaveSettings(ctx context.Context, s model.Settings) error {
	if err := db.SetSetting(ctx, model.SettingSlotInterval, strconv.Itoa(s.SlotIntervalMinutes)); err != nil {
		return err
	}
	return db.SetSetting(ctx, model.SettingAllowClientReschedule, strconv.FormatBool(s.AllowClientReschedule))
}

// SeedSettings writes settings whose keys are not stored yet.
func (db *DB) SeedSettings(ctx context.Context, s model.Settings) error {
	now := time.Now().UTC()
	for key, value := range map[string]string{
		model.SettingSlotInterval:          strconv.Itoa(s.SlotIntervalMinutes),
		model.SettingAllowClientReschedule: strconv.FormatBool(s.AllowClientReschedule),
	} {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, now,
		); err != nil {
			return fmt.Errorf("seed setting %s: %w", key, err)
		}
	}
	return nil
}

// SetSetting upserts a single key.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}
