package repository

import (
	"context"
	"time"

	"github.com/cechriza/marcaje/internal/model"
)

// User represents an account stored on the attendance server.
type User struct {
	ID        int64
	EmpCode   string // unique employee code used for login
	Name      string
	Email     string
	Roles     []string
	PwdHash   []byte // Argon2id(password, Salt)
	Salt      []byte // per-user auth salt
	CreatedAt time.Time
}

// ServerAttendance is an attendance row as recorded by the server.
type ServerAttendance struct {
	ID        int64
	UserID    int64
	ClientID  string // client idempotency token, unique
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
	PhotoPath string
	CreatedAt time.Time
}

// UserRepository provides CRUD access for server-side accounts.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByEmpCode loads a user by employee code.
	GetByEmpCode(ctx context.Context, empCode string) (*User, error)
}

// ServerAttendanceRepository records submitted attendances with dedup by client id.
type ServerAttendanceRepository interface {
	// Record inserts the attendance unless its client id was seen before.
	// It returns the row id and whether a new row was created.
	Record(ctx context.Context, a *ServerAttendance) (id int64, created bool, err error)
	// ListByUser returns a user's attendances newest-first, up to limit.
	ListByUser(ctx context.Context, userID int64, limit int) ([]ServerAttendance, error)
}
