package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

func newStore(t *testing.T) *AttendanceStore {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewAttendanceStore(db)
}

func sampleRecord(ts time.Time) *model.Attendance {
	return &model.Attendance{
		Token:     uuid.Must(uuid.NewV4()),
		Timestamp: ts,
		Latitude:  40.416775,
		Longitude: -3.703790,
		Note:      "Inicio de jornada laboral",
		Kind:      model.KindEntry,
		Device:    "Pixel 7",
		Battery:   83,
		Signal:    4,
		Network:   model.NetworkWifi,
		Online:    true,
		PhotoPath: "/tmp/p.jpg",
	}
}

func TestAttendanceStore_InsertAndGetByToken(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	id, err := s.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id == 0 || rec.ID != id {
		t.Fatalf("bad id: got %d, rec.ID=%d", id, rec.ID)
	}

	got, err := s.GetByToken(ctx, rec.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got.Token != rec.Token {
		t.Fatalf("token mismatch: %s vs %s", got.Token, rec.Token)
	}
	if !got.Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", got.Timestamp, rec.Timestamp)
	}
	if got.Synced || got.RetryCount != 0 || got.ServerID != nil {
		t.Fatalf("fresh record must be unsynced with no retries: %+v", got)
	}
	if got.Network != model.NetworkWifi || !got.Online || got.Battery != 83 {
		t.Fatalf("telemetry mismatch: %+v", got)
	}

	if _, err := s.GetByToken(ctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown token, got %v", err)
	}
}

func TestAttendanceStore_InsertDuplicateTokenFails(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord(time.Now())
	if _, err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	dup := sampleRecord(time.Now())
	dup.Token = rec.Token
	if _, err := s.Insert(ctx, dup); err == nil {
		t.Fatalf("want unique violation on duplicate token")
	}
}

func TestAttendanceStore_ListUnsynced_OldestFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 3; i++ {
		rec := sampleRecord(base.Add(time.Duration(i) * time.Hour))
		id, err := s.Insert(ctx, rec)
		if err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	if err := s.MarkSynced(ctx, ids[1]); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}

	pending, err := s.ListUnsynced(ctx)
	if err != nil {
		t.Fatalf("ListUnsynced: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("want 2 pending, got %d", len(pending))
	}
	if pending[0].ID != ids[0] || pending[1].ID != ids[2] {
		t.Fatalf("want oldest-first [%d %d], got [%d %d]",
			ids[0], ids[2], pending[0].ID, pending[1].ID)
	}
}

func TestAttendanceStore_MarkSynced_Idempotent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord(time.Now())
	id, err := s.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.MarkSynced(ctx, id); err != nil {
			t.Fatalf("MarkSynced call %d: %v", i, err)
		}
	}
	got, err := s.GetByToken(ctx, rec.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if !got.Synced {
		t.Fatalf("record must stay synced")
	}
}

func TestAttendanceStore_RetryServerIDAddressPhoto(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	rec := sampleRecord(time.Now())
	id, err := s.Insert(ctx, rec)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.IncrementRetry(ctx, id); err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}
	if err := s.IncrementRetry(ctx, id); err != nil {
		t.Fatalf("IncrementRetry: %v", err)
	}
	if err := s.UpdateServerID(ctx, id, 4242); err != nil {
		t.Fatalf("UpdateServerID: %v", err)
	}
	if err := s.UpdateAddress(ctx, id, "Calle Mayor 1, Madrid"); err != nil {
		t.Fatalf("UpdateAddress: %v", err)
	}
	if err := s.ClearPhotoPath(ctx, id); err != nil {
		t.Fatalf("ClearPhotoPath: %v", err)
	}

	got, err := s.GetByToken(ctx, rec.Token)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if got.RetryCount != 2 {
		t.Fatalf("want retry_count 2, got %d", got.RetryCount)
	}
	if got.ServerID == nil || *got.ServerID != 4242 {
		t.Fatalf("want server id 4242, got %v", got.ServerID)
	}
	if got.Address != "Calle Mayor 1, Madrid" {
		t.Fatalf("address not stored: %q", got.Address)
	}
	if got.PhotoPath != "" {
		t.Fatalf("photo path not cleared: %q", got.PhotoPath)
	}
}

func TestAttendanceStore_HistoryQueries(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		rec := sampleRecord(base.AddDate(0, 0, i))
		if _, err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %d: %v", i, err)
		}
	}

	last, err := s.Last(ctx)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !last.Timestamp.Equal(base.AddDate(0, 0, 3)) {
		t.Fatalf("Last returned %v, want newest", last.Timestamp)
	}

	all, err := s.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("want 4 records, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("ListAll not newest-first at %d", i)
		}
	}

	mid, err := s.ListBetween(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("ListBetween: %v", err)
	}
	if len(mid) != 2 {
		t.Fatalf("want 2 records in range, got %d", len(mid))
	}
}

func TestAttendanceStore_Last_Empty(t *testing.T) {
	s := newStore(t)
	if _, err := s.Last(context.Background()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on empty store, got %v", err)
	}
}
