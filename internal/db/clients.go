package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"agenda/internal/model"
)

// LookupOrCreateClient returns the client registered with phone, creating it
// with fullName when absent. An existing client's name is left unchanged.
func (db *DB) LookupOrCreateClient(ctx context.Context, fullName, phone string) (*model.Client, error) {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO clients (full_name, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone_number) DO NOTHING`,
		fullName, phone, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return db.GetClientByPhone(ctx, phone)
}

func (db *DB) GetClientByPhone(ctx context.Context, phone string) (*model.Client, error) {
	var c model.Client
	err := db.QueryRowContext(ctx, `
		SELECT id, full_name, phone_number, created_at, updated_at
		FROM clients WHERE phone_number = ?`,
		phone,
	).Scan(&c.ID, &c.FullName, &c.PhoneNumber, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

// ListClients returns clients ordered by name. A non-empty search filters by
// name or phone substring.
func (db *DB) ListClients(ctx context.Context, search string) ([]model.Client, error) {
	query := `SELECT id, full_name, phone_number, created_at, updated_at FROM clients`
	var args []any
	if search = strings.TrimSpace(search); search != "" {
		query += ` WHERE full_name LIKE ? OR phone_number LIKE ?`
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY full_name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []model.Client
	for rows.Next() {
		var c model.Client
		if err := rows.Scan(&c.ID, &c.FullName, &c.PhoneNumber, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// SaveClient creates the client when ID is zero, otherwise updates it.
func (db *DB) SaveClient(ctx context.Context, c *model.Client) error {
	now := time.Now().UTC()
	if c.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO clients (full_name, phone_number, created_at, updated_at)
			VALUES (?, ?, ?, ?)`,
			c.FullName, c.PhoneNumber, now, now,
		)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert client: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("get last id: %w", err)
		}
		c.ID = id
		c.CreatedAt = now
		c.UpdatedAt = now
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE clients SET full_name = ?, phone_number = ?, updated_at = ?
		WHERE id = ?`,
		c.FullName, c.PhoneNumber, now, c.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	c.UpdatedAt = now
	return expectOneRow(res)
}

// DeleteClient removes a client and, through the foreign key, their appointments.
func (db *DB) DeleteClient(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	return expectOneRow(res)
}
