// Package pipeline orchestrates attendance capture: persist locally first,
// enrich, attempt remote delivery, and reconcile the unsynced backlog later.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/cechriza/marcaje/internal/api"
	"github.com/cechriza/marcaje/internal/device"
	"github.com/cechriza/marcaje/internal/geocode"
	"github.com/cechriza/marcaje/internal/model"
	"github.com/cechriza/marcaje/internal/photostore"
	"github.com/cechriza/marcaje/internal/repository"
	"github.com/cechriza/marcaje/internal/session"
)

// Remote is the subset of the API client the pipeline needs.
type Remote interface {
	SubmitAttendance(ctx context.Context, bearer string, sub api.Submission) (*api.SubmitResult, error)
}

// Service is the attendance submission pipeline.
type Service struct {
	sessions *session.Context
	store    repository.AttendanceStore
	photos   *photostore.Store
	probe    device.Probe
	geo      geocode.Reverser
	remote   Remote
	clock    clock.Clock
	log      *zap.Logger
}

// NewService wires the pipeline's collaborators.
func NewService(
	sessions *session.Context,
	store repository.AttendanceStore,
	photos *photostore.Store,
	probe device.Probe,
	geo geocode.Reverser,
	remote Remote,
	clk clock.Clock,
	log *zap.Logger,
) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Service{
		sessions: sessions,
		store:    store,
		photos:   photos,
		probe:    probe,
		geo:      geo,
		remote:   remote,
		clock:    clk,
		log:      log,
	}
}

const queuedMessage = "Guardado localmente, pendiente de sincronización"

// Submit captures one attendance event.
//
// The record is inserted locally before any network attempt; local
// persistence failures are fatal, remote failures only queue the record.
// When the session is absent no record is created at all, so no orphaned
// events without an owner can exist.
func (s *Service) Submit(ctx context.Context, fix model.Fix, kind model.Kind, photo []byte, note string) (ack model.Ack, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in submit", zap.Any("reason", r))
			ack, err = model.Ack{}, fmt.Errorf("submit failed: %v", r)
		}
	}()

	sess, err := s.sessions.Current(ctx)
	if err != nil {
		return model.Ack{}, err
	}

	now := s.clock.Now()
	token, err := uuid.NewV4()
	if err != nil {
		return model.Ack{}, err
	}

	photoPath := ""
	if len(photo) > 0 {
		photoPath, err = s.photos.Save(now, photo)
		if err != nil {
			return model.Ack{}, fmt.Errorf("persist photo: %w", err)
		}
	}

	tel := s.probe.Snapshot(ctx)
	if note == "" {
		note = kind.DefaultNote()
	}

	rec := &model.Attendance{
		Token:     token,
		Timestamp: now,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Note:      note,
		Kind:      kind,
		Device:    tel.DeviceModel,
		Battery:   tel.Battery,
		Signal:    tel.Signal,
		Network:   tel.Network,
		Online:    tel.Online,
		PhotoPath: photoPath,
	}
	if _, err := s.store.Insert(ctx, rec); err != nil {
		// Durability-first: a record that cannot be persisted must surface.
		return model.Ack{}, fmt.Errorf("persist attendance: %w", err)
	}

	if !tel.Online {
		return model.Ack{Message: queuedMessage, Queued: true}, nil
	}

	s.resolveAddress(ctx, rec)
	return s.deliver(ctx, sess, rec)
}

// ReconcileBacklog resends every unsynced record, oldest first, reusing each
// record's original idempotency token. It is a no-op without a credential or
// connectivity. One failing record never aborts the batch.
func (s *Service) ReconcileBacklog(ctx context.Context) (results []model.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in reconciliation", zap.Any("reason", r))
			err = fmt.Errorf("reconciliation failed: %v", r)
		}
	}()

	sess, serr := s.sessions.Current(ctx)
	if serr != nil {
		s.log.Debug("reconciliation skipped: no session", zap.Error(serr))
		return nil, nil
	}
	if !s.probe.Snapshot(ctx).Online {
		s.log.Debug("reconciliation skipped: offline")
		return nil, nil
	}

	backlog, err := s.store.ListUnsynced(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unsynced: %w", err)
	}

	for i := range backlog {
		rec := &backlog[i]
		ok := s.reconcileOne(ctx, sess, rec)
		results = append(results, model.SyncResult{ID: rec.ID, OK: ok})
	}
	return results, nil
}

// reconcileOne retries a single record; any failure is contained here.
func (s *Service) reconcileOne(ctx context.Context, sess model.Session, rec *model.Attendance) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic while syncing record",
				zap.Int64("id", rec.ID), zap.Any("reason", r))
			s.bumpRetry(ctx, rec.ID)
			ok = false
		}
	}()

	if rec.Address == "" {
		s.resolveAddress(ctx, rec)
	}
	_, err := s.deliver(ctx, sess, rec)
	if err != nil {
		s.log.Warn("record sync failed", zap.Int64("id", rec.ID), zap.Error(err))
		return false
	}
	return true
}

// deliver submits one persisted record and applies the success/failure
// state transition. Success marks the record synced, stores any server id
// and reclaims the photo blob; failure increments the retry counter and
// leaves the record queued.
func (s *Service) deliver(ctx context.Context, sess model.Session, rec *model.Attendance) (model.Ack, error) {
	address := rec.Address
	if address == "" {
		// Send-time fallback only; never stored as a resolved address.
		address = geocode.FallbackAddress(rec.Latitude, rec.Longitude)
	}

	sub := api.Submission{
		UserID:  sess.UserID,
		Record:  *rec,
		Address: address,
	}
	if rec.PhotoPath != "" {
		data, rerr := s.photos.Read(rec.PhotoPath)
		if rerr != nil {
			// Photo lost between capture and sync: send the placeholder part.
			s.log.Warn("photo missing, sending placeholder",
				zap.Int64("id", rec.ID), zap.Error(rerr))
		} else {
			sub.Photo = data
			sub.PhotoName = rec.Token.String() + ".jpg"
		}
	}

	res, err := s.remote.SubmitAttendance(ctx, sess.Token, sub)
	if err != nil {
		s.bumpRetry(ctx, rec.ID)
		var re *api.RemoteError
		if errors.As(err, &re) {
			s.log.Warn("server rejected attendance",
				zap.Int64("id", rec.ID), zap.Int("status", re.Status))
		}
		return model.Ack{Message: queuedMessage, Queued: true}, err
	}

	if err := s.store.MarkSynced(ctx, rec.ID); err != nil {
		return model.Ack{}, fmt.Errorf("mark synced: %w", err)
	}
	rec.Synced = true
	if res.ServerID != nil {
		if err := s.store.UpdateServerID(ctx, rec.ID, *res.ServerID); err != nil {
			s.log.Warn("store server id", zap.Int64("id", rec.ID), zap.Error(err))
		}
	}
	if rec.PhotoPath != "" {
		// The server holds the canonical copy now; reclaim local space.
		if err := s.photos.Delete(rec.PhotoPath); err != nil {
			s.log.Warn("delete photo", zap.String("path", rec.PhotoPath), zap.Error(err))
		}
		if err := s.store.ClearPhotoPath(ctx, rec.ID); err != nil {
			s.log.Warn("clear photo path", zap.Int64("id", rec.ID), zap.Error(err))
		}
	}

	s.log.Info("attendance synced",
		zap.Int64("id", rec.ID), zap.String("token", rec.Token.String()))
	return model.Ack{Message: res.Message, ServerID: res.ServerID}, nil
}

// resolveAddress best-effort reverse geocodes and stores the address.
// Failures are logged and swallowed; they never fail the operation.
func (s *Service) resolveAddress(ctx context.Context, rec *model.Attendance) {
	addr, err := s.geo.Reverse(ctx, rec.Latitude, rec.Longitude)
	if err != nil || addr == "" {
		if err != nil {
			s.log.Debug("reverse geocode failed", zap.Error(err))
		}
		return
	}
	if err := s.store.UpdateAddress(ctx, rec.ID, addr); err != nil {
		s.log.Warn("store address", zap.Int64("id", rec.ID), zap.Error(err))
		return
	}
	rec.Address = addr
}

func (s *Service) bumpRetry(ctx context.Context, id int64) {
	if err := s.store.IncrementRetry(ctx, id); err != nil {
		s.log.Warn("increment retry", zap.Int64("id", id), zap.Error(err))
	}
}

// History exposes the read queries the UI layer consumes.
type History struct {
	store repository.AttendanceStore
}

// NewHistory constructs the read-side facade over the local store.
func NewHistory(store repository.AttendanceStore) *History { return &History{store: store} }

// Last returns the most recent record.
func (h *History) Last(ctx context.Context) (*model.Attendance, error) { return h.store.Last(ctx) }

// All returns every record newest-first.
func (h *History) All(ctx context.Context) ([]model.Attendance, error) {
	return h.store.ListAll(ctx)
}

// Between returns records captured in [start, end], newest-first.
func (h *History) Between(ctx context.Context, start, end time.Time) ([]model.Attendance, error) {
	return h.store.ListBetween(ctx, start, end)
}
