package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

// AttendanceStore implements repository.AttendanceStore on SQLite.
type AttendanceStore struct{ db *DB }

// NewAttendanceStore constructs the on-device attendance store.
func NewAttendanceStore(db *DB) *AttendanceStore { return &AttendanceStore{db: db} }

const attendanceCols = `id, token, ts, latitude, longitude, note, kind, device,
battery, signal, network, online, photo_path, synced, address, retry_count, server_id`

// Insert persists a new record and returns its local id.
func (s *AttendanceStore) Insert(ctx context.Context, a *model.Attendance) (int64, error) {
	const q = `
INSERT INTO attendance
	(token, ts, latitude, longitude, note, kind, device, battery, signal,
	 network, online, photo_path, synced, address, retry_count, server_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`
	res, err := s.db.ExecContext(ctx, q,
		a.Token.String(), a.Timestamp.UnixMilli(), a.Latitude, a.Longitude,
		a.Note, string(a.Kind), a.Device, a.Battery, a.Signal,
		string(a.Network), boolInt(a.Online), a.PhotoPath, boolInt(a.Synced),
		a.Address, a.RetryCount, a.ServerID,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	return id, nil
}

// GetByToken loads a record by its idempotency token.
func (s *AttendanceStore) GetByToken(ctx context.Context, token uuid.UUID) (*model.Attendance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance WHERE token = ?`, token.String())
	return scanAttendance(row)
}

// ListUnsynced returns unsynced records in insertion (oldest-first) order.
func (s *AttendanceStore) ListUnsynced(ctx context.Context) ([]model.Attendance, error) {
	return s.list(ctx, `SELECT `+attendanceCols+` FROM attendance WHERE synced = 0 ORDER BY ts ASC, id ASC`)
}

// MarkSynced sets the sync flag. The statement only ever writes 1, so a
// repeated call is a no-op and the flag can never revert.
func (s *AttendanceStore) MarkSynced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attendance SET synced = 1 WHERE id = ?`, id)
	return err
}

// IncrementRetry bumps the retry counter for a record.
func (s *AttendanceStore) IncrementRetry(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

// UpdateServerID stores the server-assigned identifier.
func (s *AttendanceStore) UpdateServerID(ctx context.Context, id int64, serverID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attendance SET server_id = ? WHERE id = ?`, serverID, id)
	return err
}

// UpdateAddress stores the resolved human-readable address.
func (s *AttendanceStore) UpdateAddress(ctx context.Context, id int64, address string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attendance SET address = ? WHERE id = ?`, address, id)
	return err
}

// ClearPhotoPath removes the local photo reference after server receipt.
func (s *AttendanceStore) ClearPhotoPath(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE attendance SET photo_path = '' WHERE id = ?`, id)
	return err
}

// Last returns the most recent record.
func (s *AttendanceStore) Last(ctx context.Context) (*model.Attendance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+attendanceCols+` FROM attendance ORDER BY ts DESC, id DESC LIMIT 1`)
	return scanAttendance(row)
}

// ListBetween returns records in [start, end] newest-first.
func (s *AttendanceStore) ListBetween(ctx context.Context, start, end time.Time) ([]model.Attendance, error) {
	return s.list(ctx,
		`SELECT `+attendanceCols+` FROM attendance WHERE ts BETWEEN ? AND ? ORDER BY ts DESC, id DESC`,
		start.UnixMilli(), end.UnixMilli())
}

// ListAll returns every record newest-first.
func (s *AttendanceStore) ListAll(ctx context.Context) ([]model.Attendance, error) {
	return s.list(ctx, `SELECT `+attendanceCols+` FROM attendance ORDER BY ts DESC, id DESC`)
}

func (s *AttendanceStore) list(ctx context.Context, q string, args ...any) ([]model.Attendance, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attendance
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (*model.Attendance, error) {
	var (
		a        model.Attendance
		token    string
		ts       int64
		kind     string
		network  string
		online   int
		synced   int
		serverID sql.NullInt64
	)
	err := row.Scan(&a.ID, &token, &ts, &a.Latitude, &a.Longitude, &a.Note, &kind,
		&a.Device, &a.Battery, &a.Signal, &network, &online, &a.PhotoPath,
		&synced, &a.Address, &a.RetryCount, &serverID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	tok, err := uuid.FromString(token)
	if err != nil {
		return nil, err
	}
	a.Token = tok
	a.Timestamp = time.UnixMilli(ts)
	a.Kind = model.Kind(kind)
	a.Network = model.NetworkClass(network)
	a.Online = online != 0
	a.Synced = synced != 0
	if serverID.Valid {
		v := serverID.Int64
		a.ServerID = &v
	}
	return &a, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
