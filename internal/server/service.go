// Package server implements the reference attendance service: login,
// multipart attendance intake with idempotent dedup, and banners.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/cechriza/marcaje/internal/crypto"
	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/limiter"
	"github.com/cechriza/marcaje/internal/model"
	"github.com/cechriza/marcaje/internal/repository"
)

// AuthService authenticates employees and issues bearer tokens.
type AuthService struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthService {
	return &AuthService{users: users, signKey: signKey, accessTTL: accessTTL, lim: lim}
}

// Register creates a new employee account with a per-user salt.
func (s *AuthService) Register(ctx context.Context, empCode, name, email, password string, roles []string) (int64, error) {
	if empCode == "" || password == "" {
		return 0, errors.New("empty emp_code/password")
	}
	salt, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return 0, err
	}
	u := &repository.User{
		EmpCode: empCode,
		Name:    name,
		Email:   email,
		Roles:   roles,
		PwdHash: pkgcrypto.HashPassword([]byte(password), salt),
		Salt:    salt,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return 0, err
	}
	return u.ID, nil
}

// LoginWithIP authenticates with rate limiting by (emp_code, ip) and returns
// the signed token, its expiry and the user profile.
func (s *AuthService) LoginWithIP(ctx context.Context, empCode, password, ip string) (string, time.Time, *repository.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, empCode, ipHash)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	if !allowed {
		return "", time.Time{}, nil, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmpCode(ctx, empCode)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, empCode, ipHash); ferr == nil && blocked {
			return "", time.Time{}, nil, errs.ErrRateLimited
		}
		// Lookup errors are masked so emp_code existence is not revealed.
		return "", time.Time{}, nil, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, empCode, ipHash)

	token, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return token, exp, u, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthService) issueAccessToken(userID int64) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// AttendanceService records submitted attendance events.
type AttendanceService struct {
	repo      repository.ServerAttendanceRepository
	photosDir string
	log       *zap.Logger
}

// NewAttendanceService constructs the intake service; photos land in photosDir.
func NewAttendanceService(repo repository.ServerAttendanceRepository, photosDir string, log *zap.Logger) *AttendanceService {
	return &AttendanceService{repo: repo, photosDir: photosDir, log: log}
}

// Submission is one parsed multipart attendance upload.
type Submission struct {
	ClientID  string
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Note      string
	Device    string
	Battery   int
	Signal    int
	Network   string
	Online    bool
	Address   string
	Kind      model.Kind
	Photo     []byte
}

// Record validates and stores one submission. Replays of an already-seen
// client id return the original row id with created=false; the caller
// answers them exactly like a first delivery.
func (s *AttendanceService) Record(ctx context.Context, userID int64, in Submission) (int64, bool, error) {
	if in.ClientID == "" {
		return 0, false, errors.New("validation: empty client_id")
	}
	if in.Kind != model.KindEntry && in.Kind != model.KindExit {
		return 0, false, fmt.Errorf("validation: bad type %q", in.Kind)
	}
	if in.Timestamp.IsZero() {
		return 0, false, errors.New("validation: empty timestamp")
	}

	photoPath := ""
	if len(in.Photo) > 0 {
		if err := os.MkdirAll(s.photosDir, 0o750); err != nil {
			return 0, false, fmt.Errorf("photo dir: %w", err)
		}
		photoPath = filepath.Join(s.photosDir, in.ClientID+".jpg")
		if err := os.WriteFile(photoPath, in.Photo, 0o640); err != nil {
			return 0, false, fmt.Errorf("write photo: %w", err)
		}
	}

	id, created, err := s.repo.Record(ctx, &repository.ServerAttendance{
		UserID:    userID,
		ClientID:  in.ClientID,
		Timestamp: in.Timestamp,
		Latitude:  in.Latitude,
		Longitude: in.Longitude,
		Note:      in.Note,
		Device:    in.Device,
		Battery:   in.Battery,
		Signal:    in.Signal,
		Network:   in.Network,
		Online:    in.Online,
		Address:   in.Address,
		Kind:      in.Kind,
		PhotoPath: photoPath,
	})
	if err != nil {
		return 0, false, err
	}
	if !created {
		s.log.Info("duplicate client_id, returning original",
			zap.String("clientID", in.ClientID), zap.Int64("id", id))
	}
	return id, created, nil
}

// List returns a user's attendances newest-first.
func (s *AttendanceService) List(ctx context.Context, userID int64, limit int) ([]repository.ServerAttendance, error) {
	return s.repo.ListByUser(ctx, userID, limit)
}
