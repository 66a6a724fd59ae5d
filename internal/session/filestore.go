package session

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

// sessionFile is the on-disk layout of the durable session copy.
type sessionFile struct {
	UserID  int64    `json:"user_id"`
	Token   string   `json:"access_token"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	EmpCode string   `json:"emp_code"`
	Roles   []string `json:"roles,omitempty"`
}

// FileStore persists the session as a JSON file with owner-only permissions.
type FileStore struct {
	path string
}

// NewFileStore constructs a store writing to path (usually under the agent
// config directory).
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Load returns the persisted session, errs.ErrNotFound when the file is absent.
func (f *FileStore) Load(_ context.Context) (model.Session, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Session{}, errs.ErrNotFound
		}
		return model.Session{}, err
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return model.Session{}, err
	}
	return model.Session{
		UserID:  sf.UserID,
		Token:   sf.Token,
		Name:    sf.Name,
		Email:   sf.Email,
		EmpCode: sf.EmpCode,
		Roles:   sf.Roles,
	}, nil
}

// Save persists the session atomically (write temp, rename).
func (f *FileStore) Save(_ context.Context, s model.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sessionFile{
		UserID:  s.UserID,
		Token:   s.Token,
		Name:    s.Name,
		Email:   s.Email,
		EmpCode: s.EmpCode,
		Roles:   s.Roles,
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

// Clear removes the persisted session; a missing file is not an error.
func (f *FileStore) Clear(_ context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
