package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/repository"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func TestUserRepo_Create_OK_and_UniqueViolation(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()
	u := &repository.User{
		EmpCode: "E042",
		Name:    "Ana",
		Email:   "ana@example.com",
		Roles:   []string{"employee"},
		PwdHash: []byte("h"),
		Salt:    []byte("s"),
	}

	mock.ExpectQuery(`INSERT INTO users \(emp_code, name, email, roles, pwd_hash, salt\)`).
		WithArgs(u.EmpCode, u.Name, u.Email, u.Roles, u.PwdHash, u.Salt).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), time.Now()))
	require.NoError(t, r.Create(ctx, u))
	require.Equal(t, int64(7), u.ID)

	mock.ExpectQuery(`INSERT INTO users \(emp_code, name, email, roles, pwd_hash, salt\)`).
		WithArgs(u.EmpCode, u.Name, u.Email, u.Roles, u.PwdHash, u.Salt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, u), errs.ErrAlreadyExists)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByEmpCode(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, emp_code, name, email, roles, pwd_hash, salt, created_at FROM users WHERE emp_code=\$1`).
		WithArgs("E042").
		WillReturnRows(pgxmock.NewRows([]string{"id", "emp_code", "name", "email", "roles", "pwd_hash", "salt", "created_at"}).
			AddRow(int64(7), "E042", "Ana", "ana@example.com", []string{"employee"}, []byte("h"), []byte("s"), time.Now()))
	u, err := r.GetByEmpCode(ctx, "E042")
	require.NoError(t, err)
	require.Equal(t, int64(7), u.ID)
	require.Equal(t, "Ana", u.Name)

	mock.ExpectQuery(`SELECT id, emp_code, name, email, roles, pwd_hash, salt, created_at FROM users WHERE emp_code=\$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmpCode(ctx, "nope")
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewUserRepo(db)

	mock.ExpectQuery(`SELECT id, emp_code, name, email, roles, pwd_hash, salt, created_at FROM users WHERE id=\$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)
	_, err := r.GetByID(context.Background(), 99)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
