package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agenda/internal/model"
)

const reservationColumns = `
	a.id, a.reference, a.client_id, COALESCE(c.full_name, ''), COALESCE(c.phone_number, ''),
	a.start_time, a.end_time, COALESCE(a.notes, ''), a.status, a.is_personal_block,
	a.total_price, a.created_at, a.updated_at`

const reservationFrom = `
	FROM appointments a
	LEFT JOIN clients c ON c.id = a.client_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var r model.Reservation
	var clientID sql.NullInt64
	var status string
	if err := row.Scan(
		&r.ID, &r.Reference, &clientID, &r.ClientName, &r.ClientPhone,
		&r.StartTime, &r.EndTime, &r.Notes, &status, &r.IsPersonalBlock,
		&r.TotalPrice, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if clientID.Valid {
		id := clientID.Int64
		r.ClientID = &id
	}
	r.Status = model.Status(status)
	return &r, nil
}

func (db *DB) queryReservations(ctx context.Context, where string, args ...any) ([]model.Reservation, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+reservationColumns+reservationFrom+" "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListReservations returns reservations intersecting [from, to), ordered by start.
func (db *DB) ListReservations(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	out, err := db.queryReservations(ctx,
		"WHERE a.start_time < ? AND a.end_time > ? ORDER BY a.start_time",
		utc(to), utc(from),
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// ListReservationsStartingIn returns reservations whose start lies in [from, to).
func (db *DB) ListReservationsStartingIn(ctx context.Context, from, to time.Time) ([]model.Reservation, error) {
	out, err := db.queryReservations(ctx,
		"WHERE a.start_time >= ? AND a.start_time < ? ORDER BY a.start_time",
		utc(from), utc(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// ListReservationsByPhone returns a client's appointments, newest first.
func (db *DB) ListReservationsByPhone(ctx context.Context, phone string) ([]model.Reservation, error) {
	out, err := db.queryReservations(ctx,
		"WHERE c.phone_number = ? ORDER BY a.start_time DESC",
		phone,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations by phone: %w", err)
	}
	return out, nil
}

// GetReservation returns a reservation by id.
func (db *DB) GetReservation(ctx context.Context, id int64) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, "SELECT "+reservationColumns+reservationFrom+" WHERE a.id = ?", id)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// GetReservationByReference returns a reservation by its public reference.
func (db *DB) GetReservationByReference(ctx context.Context, reference string) (*model.Reservation, error) {
	row := db.QueryRowContext(ctx, "SELECT "+reservationColumns+reservationFrom+" WHERE a.reference = ?", reference)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

// CreateReservation inserts r unless it overlaps an existing reservation.
// The overlap check and the insert run in one transaction; on overlap it
// returns ErrConflict and nothing is written.
func (db *DB) CreateReservation(ctx context.Context, r *model.Reservation) error {
	return db.CreateReservations(ctx, []*model.Reservation{r})
}

// CreateReservations inserts all reservations atomically. Each one is checked
// against the stored reservations and the ones inserted before it in the batch.
func (db *DB) CreateReservations(ctx context.Context, batch []*model.Reservation) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, r := range batch {
		if err := checkOverlap(ctx, tx, r.StartTime, r.EndTime, 0); err != nil {
			return err
		}
		if err := insertReservation(ctx, tx, r, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func checkOverlap(ctx context.Context, tx *sql.Tx, start, end time.Time, excludeID int64) error {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE start_time < ? AND end_time > ? AND id != ?`,
		utc(end), utc(start), excludeID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if count > 0 {
		return ErrConflict
	}
	return nil
}

func insertReservation(ctx context.Context, tx *sql.Tx, r *model.Reservation, now time.Time) error {
	if r.Reference == "" {
		r.Reference = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.StatusPending
	}
	r.StartTime = utc(r.StartTime)
	r.EndTime = utc(r.EndTime)

	var clientID any
	if r.ClientID != nil {
		clientID = *r.ClientID
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (
			reference, client_id, start_time, end_time, notes, status,
			is_personal_block, total_price, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Reference, clientID, r.StartTime, r.EndTime, r.Notes, string(r.Status),
		r.IsPersonalBlock, r.TotalPrice, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// UpdateReservationTimes moves reservation id to [start, end). The reservation
// itself is excluded from the overlap check. Returns ErrConflict on overlap
// and ErrNotFound when the row is gone.
func (db *DB) UpdateReservationTimes(ctx context.Context, id int64, start, end time.Time) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := checkOverlap(ctx, tx, start, end, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?`,
		utc(start), utc(end), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateReservationStatus sets the status of a client appointment.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, status model.Status) error {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND is_personal_block = 0`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	return expectOneRow(res)
}

// DeleteReservation removes a reservation. Returns ErrNotFound when nothing was deleted.
func (db *DB) DeleteReservation(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	return expectOneRow(res)
}

// DeleteReservationsBefore removes reservations that ended before cutoff.
func (db *DB) DeleteReservationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM appointments WHERE end_time < ?`, utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete old reservations: %w", err)
	}
	return res.RowsAffected()
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
