package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/repository"
)

// UserRepo implements repository.UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user and fills in its id.
func (r *UserRepo) Create(ctx context.Context, u *repository.User) error {
	const q = `
INSERT INTO users (emp_code, name, email, roles, pwd_hash, salt)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id, created_at`
	err := r.db.Pool.QueryRow(ctx, q,
		u.EmpCode, u.Name, u.Email, u.Roles, u.PwdHash, u.Salt,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	}
	return nil
}

const userCols = `id, emp_code, name, email, roles, pwd_hash, salt, created_at`

// GetByID loads a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*repository.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

// GetByEmpCode loads a user by employee code.
func (r *UserRepo) GetByEmpCode(ctx context.Context, empCode string) (*repository.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE emp_code=$1`, empCode)
	return scanUser(row)
}

func scanUser(row pgx.Row) (*repository.User, error) {
	var u repository.User
	err := row.Scan(&u.ID, &u.EmpCode, &u.Name, &u.Email, &u.Roles, &u.PwdHash, &u.Salt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
