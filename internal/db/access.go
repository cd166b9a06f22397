package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agenda/internal/model"
)

func (db *DB) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, email, COALESCE(invited_by, ''), created_at
		FROM admins ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var admins []model.Admin
	for rows.Next() {
		var a model.Admin
		if err := rows.Scan(&a.ID, &a.Email, &a.InvitedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

func (db *DB) IsAdmin(ctx context.Context, email string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM admins WHERE email = ?`,
		normalizeEmail(email),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check admin: %w", err)
	}
	return n > 0, nil
}

// AddAdmin inserts an admin. Adding an existing email is a no-op.
func (db *DB) AddAdmin(ctx context.Context, email, invitedBy string) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO admins (email, invited_by, created_at)
		VALUES (?, ?, ?)`,
		normalizeEmail(email), invitedBy, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

// DeleteAdmin removes an admin unless it is the only one left, in which case
// it returns ErrLastAdmin.
func (db *DB) DeleteAdmin(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `
		DELETE FROM admins
		WHERE id = ? AND (SELECT COUNT(*) FROM admins) > 1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if exists > 0 {
		return ErrLastAdmin
	}
	return ErrNotFound
}

func (db *DB) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (db *DB) IsPhoneBlocked(ctx context.Context, phone string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM blocked_phones WHERE phone_number = ?`, phone,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check blocked phone: %w", err)
	}
	return n > 0, nil
}

func (db *DB) BlockPhone(ctx context.Context, phone, reason, blockedBy string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO blocked_phones (phone_number, reason, blocked_by, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(phone_number) DO UPDATE SET reason = excluded.reason, blocked_by = excluded.blocked_by`,
		phone, reason, blockedBy, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("block phone: %w", err)
	}
	return nil
}

func (db *DB) UnblockPhone(ctx context.Context, phone string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM blocked_phones WHERE phone_number = ?`, phone)
	if err != nil {
		return fmt.Errorf("unblock phone: %w", err)
	}
	return expectOneRow(res)
}

func (db *DB) ListBlockedPhones(ctx context.Context) ([]model.BlockedPhone, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT phone_number, COALESCE(reason, ''), COALESCE(blocked_by, ''), created_at
		FROM blocked_phones ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list blocked phones: %w", err)
	}
	defer rows.Close()

	var out []model.BlockedPhone
	for rows.Next() {
		var b model.BlockedPhone
		if err := rows.Scan(&b.PhoneNumber, &b.Reason, &b.BlockedBy, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
