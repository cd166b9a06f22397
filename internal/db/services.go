package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agenda/internal/model"
)

const serviceColumns = `id, name, COALESCE(description, ''), price, duration_minutes, is_active, created_at, updated_at`

func scanService(row rowScanner) (*model.Service, error) {
	var s model.Service
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.DurationMinutes, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// ListServices returns the catalog ordered by name.
func (db *DB) ListServices(ctx context.Context, activeOnly bool) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, *s)
	}
	return services, rows.Err()
}

// GetServicesByIDs returns the services with the given ids in the requested order.
// Unknown ids are skipped.
func (db *DB) GetServicesByIDs(ctx context.Context, ids []int64) ([]model.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("get services: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]model.Service, len(ids))
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		byID[s.ID] = *s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	services := make([]model.Service, 0, len(ids))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			services = append(services, s)
		}
	}
	return services, nil
}

// SaveService creates the service when ID is zero, otherwise updates it.
func (db *DB) SaveService(ctx context.Context, s *model.Service) error {
	now := time.Now().UTC()
	if s.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO services (name, description, price, duration_minutes, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			s.Name, s.Description, s.Price, s.DurationMinutes, s.IsActive, now, now,
		)
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last id: %w", err)
		}
		s.ID = id
		s.CreatedAt = now
		s.UpdatedAt = now
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE services
		SET name = ?, description = ?, price = ?, duration_minutes = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		s.Name, s.Description, s.Price, s.DurationMinutes, s.IsActive, now, s.ID,
	)
	if err != nil {
		return fmt.Errorf("update service: %w", err)
	}
	s.UpdatedAt = now
	return expectOneRow(res)
}

func (db *DB) DeleteService(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	return expectOneRow(res)
}
