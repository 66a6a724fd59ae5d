// Package location acquires a single fresh position fix with bounded latency,
// falling back through tiers: live fix, platform last-known, persisted cache.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
	"github.com/cechriza/marcaje/internal/repository"
)

// Reason classifies why an acquisition failed. Each reason maps to one
// specific user-facing remediation, never a generic error.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonPermissionDenied
	ReasonProviderDisabled
	ReasonTimeout
	ReasonNoLocation
	ReasonInaccurate
)

// String returns a stable identifier for the reason.
func (r Reason) String() string {
	switch r {
	case ReasonPermissionDenied:
		return "permission_denied"
	case ReasonProviderDisabled:
		return "provider_disabled"
	case ReasonTimeout:
		return "timeout"
	case ReasonNoLocation:
		return "no_location"
	case ReasonInaccurate:
		return "inaccurate"
	default:
		return "unknown"
	}
}

// Remediation returns the action the user can take to recover.
func (r Reason) Remediation() string {
	switch r {
	case ReasonPermissionDenied:
		return "grant the location permission in the system settings"
	case ReasonProviderDisabled:
		return "enable GPS or network location in the system settings"
	case ReasonTimeout, ReasonNoLocation:
		return "move to an open area and retry"
	case ReasonInaccurate:
		return "wait for a better signal and retry"
	default:
		return "retry"
	}
}

// Error is a typed acquisition failure carrying its reason through the call chain.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location: %s: %v", e.Reason, e.Err)
	}
	return "location: " + e.Reason.String()
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from an error, or ReasonUnknown.
func ReasonOf(err error) Reason {
	var le *Error
	if errors.As(err, &le) {
		return le.Reason
	}
	return ReasonUnknown
}

func fail(reason Reason, err error) error { return &Error{Reason: reason, Err: err} }

// Provider abstracts the platform location source.
type Provider interface {
	// PermissionGranted reports whether the location permission is held.
	PermissionGranted() bool
	// Enabled reports whether at least one OS location provider is on.
	Enabled() bool
	// Current requests one fresh high-accuracy fix. It must honor ctx
	// cancellation and release any platform callback on every exit path.
	Current(ctx context.Context) (model.Fix, error)
	// LastKnown returns the platform's cached fix, errs.ErrNotFound when absent.
	LastKnown(ctx context.Context) (model.Fix, error)
}

// Default acceptance thresholds for the platform's last-known fix.
const (
	DefaultMaxAge      = 60 * time.Second
	DefaultMaxAccuracy = 50.0 // meters
	lastKnownTimeout   = time.Second
)

// Service produces one verified fix per call and maintains the fallback cache.
type Service struct {
	provider    Provider
	cache       repository.LocationCache
	clock       clock.Clock
	log         *zap.Logger
	maxAge      time.Duration
	maxAccuracy float64
}

// NewService constructs the acquisition service with default thresholds.
func NewService(provider Provider, cache repository.LocationCache, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Service{
		provider:    provider,
		cache:       cache,
		clock:       clk,
		log:         log,
		maxAge:      DefaultMaxAge,
		maxAccuracy: DefaultMaxAccuracy,
	}
}

// SetThresholds overrides the last-known acceptance thresholds.
func (s *Service) SetThresholds(maxAge time.Duration, maxAccuracy float64) {
	s.maxAge = maxAge
	s.maxAccuracy = maxAccuracy
}

// Acquire obtains one fix within timeout.
//
// Tiers, each bounded: permission and provider checks first (no hardware
// touched when they fail), then a fresh fix, then the platform last-known
// fix accepted only if fresh and accurate enough, then the persisted cache.
// Every accepted live or last-known fix is written back to the cache.
func (s *Service) Acquire(ctx context.Context, timeout time.Duration) (model.Fix, error) {
	if !s.provider.PermissionGranted() {
		return model.Fix{}, fail(ReasonPermissionDenied, nil)
	}
	if !s.provider.Enabled() {
		return model.Fix{}, fail(ReasonProviderDisabled, nil)
	}

	liveCtx, cancel := context.WithTimeout(ctx, timeout)
	fix, liveErr := s.provider.Current(liveCtx)
	cancel()
	if liveErr == nil {
		s.persist(ctx, fix)
		return fix, nil
	}
	s.log.Debug("live fix unavailable", zap.Error(liveErr))

	lkCtx, cancel := context.WithTimeout(ctx, lastKnownTimeout)
	last, lastErr := s.provider.LastKnown(lkCtx)
	cancel()
	if lastErr == nil {
		if last.UsableAsFallback(s.clock.Now(), s.maxAge, s.maxAccuracy) {
			s.persist(ctx, last)
			return last, nil
		}
		s.log.Debug("last-known fix rejected",
			zap.Duration("age", s.clock.Now().Sub(last.Time)),
			zap.Float64("accuracy", last.Accuracy))
	}

	if cached, err := s.cache.Last(ctx); err == nil {
		s.log.Info("using persisted fallback fix", zap.Time("fixTime", cached.Time))
		return *cached, nil
	} else if !errors.Is(err, errs.ErrNotFound) {
		s.log.Warn("location cache read failed", zap.Error(err))
	}

	if errors.Is(liveErr, context.DeadlineExceeded) {
		return model.Fix{}, fail(ReasonTimeout, liveErr)
	}
	return model.Fix{}, fail(ReasonNoLocation, liveErr)
}

// AcquireWithRetry performs Acquire and, on failure, one shorter-timeout
// retry before surfacing the final error. Permission and provider failures
// are not retried; only the user can fix those.
func (s *Service) AcquireWithRetry(ctx context.Context, timeout, retryTimeout time.Duration) (model.Fix, error) {
	fix, err := s.Acquire(ctx, timeout)
	if err == nil {
		return fix, nil
	}
	switch ReasonOf(err) {
	case ReasonPermissionDenied, ReasonProviderDisabled:
		return model.Fix{}, err
	}
	return s.Acquire(ctx, retryTimeout)
}

func (s *Service) persist(ctx context.Context, fix model.Fix) {
	if err := s.cache.Save(ctx, fix); err != nil {
		s.log.Warn("persist location fix", zap.Error(err))
	}
}
