// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/cechriza/marcaje/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AttendanceStore is the on-device, append-only attendance record store.
//
// Insert is the only creation path; every other mutation targets a single
// record by local id. Records are never deleted (the history view depends
// on all past records).
type AttendanceStore interface {
	// Insert persists a new record and returns its local id.
	Insert(ctx context.Context, a *model.Attendance) (int64, error)
	// GetByToken loads a record by its idempotency token.
	GetByToken(ctx context.Context, token uuid.UUID) (*model.Attendance, error)
	// ListUnsynced returns unsynced records in insertion (oldest-first) order.
	ListUnsynced(ctx context.Context) ([]model.Attendance, error)
	// MarkSynced sets the sync flag. Idempotent; the flag never reverts.
	MarkSynced(ctx context.Context, id int64) error
	// IncrementRetry bumps the retry counter for a record.
	IncrementRetry(ctx context.Context, id int64) error
	// UpdateServerID stores the server-assigned identifier.
	UpdateServerID(ctx context.Context, id int64, serverID int64) error
	// UpdateAddress stores the resolved human-readable address.
	UpdateAddress(ctx context.Context, id int64, address string) error
	// ClearPhotoPath removes the local photo reference after server receipt.
	ClearPhotoPath(ctx context.Context, id int64) error

	// Last returns the most recent record, or errs.ErrNotFound.
	Last(ctx context.Context) (*model.Attendance, error)
	// ListBetween returns records in [start, end] newest-first.
	ListBetween(ctx context.Context, start, end time.Time) ([]model.Attendance, error)
	// ListAll returns every record newest-first.
	ListAll(ctx context.Context) ([]model.Attendance, error)
}

// LocationCache stores the last known good position fix for fallback use.
type LocationCache interface {
	// Save records a fix obtained from a successful acquisition.
	Save(ctx context.Context, fix model.Fix) error
	// Last returns the most recently saved fix, or errs.ErrNotFound.
	Last(ctx context.Context) (*model.Fix, error)
}
