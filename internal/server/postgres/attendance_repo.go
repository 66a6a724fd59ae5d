package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cechriza/marcaje/internal/model"
	"github.com/cechriza/marcaje/internal/repository"
)

// AttendanceRepo implements repository.ServerAttendanceRepository using PostgreSQL.
type AttendanceRepo struct{ db *DB }

// NewAttendanceRepo constructs an attendance repository.
func NewAttendanceRepo(db *DB) *AttendanceRepo { return &AttendanceRepo{db: db} }

// Record inserts the attendance unless its client id was seen before.
// The unique constraint on client_id is what makes retried client
// deliveries idempotent: a replay returns the original row id.
func (r *AttendanceRepo) Record(ctx context.Context, a *repository.ServerAttendance) (int64, bool, error) {
	const ins = `
INSERT INTO attendances
	(user_id, client_id, ts, latitude, longitude, note, device, battery,
	 signal, network, online, address, kind, photo_path)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (client_id) DO NOTHING
RETURNING id`
	var id int64
	err := r.db.Pool.QueryRow(ctx, ins,
		a.UserID, a.ClientID, a.Timestamp, a.Latitude, a.Longitude, a.Note,
		a.Device, a.Battery, a.Signal, a.Network, a.Online, a.Address,
		string(a.Kind), a.PhotoPath,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}

	// Duplicate client_id: a previous delivery already landed.
	const sel = `SELECT id FROM attendances WHERE client_id=$1`
	if err := r.db.Pool.QueryRow(ctx, sel, a.ClientID).Scan(&id); err != nil {
		return 0, false, err
	}
	return id, false, nil
}

// ListByUser returns a user's attendances newest-first, up to limit.
func (r *AttendanceRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]repository.ServerAttendance, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, client_id, ts, latitude, longitude, note, device,
       battery, signal, network, online, address, kind, photo_path, created_at
FROM attendances
WHERE user_id=$1
ORDER BY ts DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.ServerAttendance
	for rows.Next() {
		var (
			a    repository.ServerAttendance
			ts   time.Time
			kind string
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ClientID, &ts, &a.Latitude,
			&a.Longitude, &a.Note, &a.Device, &a.Battery, &a.Signal, &a.Network,
			&a.Online, &a.Address, &kind, &a.PhotoPath, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Timestamp = ts
		a.Kind = model.Kind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}
