// Package session holds the authenticated identity with a fast in-memory
// copy backed by a durable store that survives process restarts.
package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

// Store is the durable mirror of the session.
type Store interface {
	// Load returns the persisted session, errs.ErrNotFound when absent.
	Load(ctx context.Context) (model.Session, error)
	// Save persists the session.
	Save(ctx context.Context, s model.Session) error
	// Clear removes the persisted session.
	Clear(ctx context.Context) error
}

// Context is the two-tier session holder. The in-memory copy is
// authoritative; the durable copy may lag right after login, so readers
// consult memory first and fall back to the store only when memory is empty.
type Context struct {
	mem     atomic.Pointer[model.Session]
	durable Store
}

// NewContext constructs a session context over the given durable store.
func NewContext(durable Store) *Context {
	return &Context{durable: durable}
}

// Set populates the in-memory session and mirrors it to the durable store.
// The in-memory write happens first so concurrent readers never observe the
// durable lag.
func (c *Context) Set(ctx context.Context, s model.Session) error {
	copied := s
	c.mem.Store(&copied)
	return c.durable.Save(ctx, s)
}

// Current returns the active session, preferring the in-memory copy.
// It fails with errs.ErrNotLoggedIn when neither tier has one, and with
// errs.ErrNoCredential when an identity exists without a bearer token.
func (c *Context) Current(ctx context.Context) (model.Session, error) {
	if s := c.mem.Load(); s != nil {
		return check(*s)
	}
	s, err := c.durable.Load(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Session{}, errs.ErrNotLoggedIn
		}
		return model.Session{}, err
	}
	return check(s)
}

// Clear drops both tiers.
func (c *Context) Clear(ctx context.Context) error {
	c.mem.Store(nil)
	return c.durable.Clear(ctx)
}

func check(s model.Session) (model.Session, error) {
	if s.UserID == 0 {
		return model.Session{}, errs.ErrNotLoggedIn
	}
	if s.Token == "" {
		return model.Session{}, errs.ErrNoCredential
	}
	return s, nil
}
