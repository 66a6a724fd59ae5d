package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

// LocationCache implements repository.LocationCache on SQLite.
type LocationCache struct{ db *DB }

// NewLocationCache constructs the last-known-fix cache.
func NewLocationCache(db *DB) *LocationCache { return &LocationCache{db: db} }

// Save records a fix obtained from a successful acquisition.
func (c *LocationCache) Save(ctx context.Context, fix model.Fix) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO location_cache (latitude, longitude, accuracy, ts) VALUES (?,?,?,?)`,
		fix.Latitude, fix.Longitude, fix.Accuracy, fix.Time.UnixMilli())
	return err
}

// Last returns the most recently saved fix.
func (c *LocationCache) Last(ctx context.Context) (*model.Fix, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT latitude, longitude, accuracy, ts FROM location_cache ORDER BY ts DESC LIMIT 1`)
	var (
		fix model.Fix
		ts  int64
	)
	if err := row.Scan(&fix.Latitude, &fix.Longitude, &fix.Accuracy, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	fix.Time = time.UnixMilli(ts)
	return &fix, nil
}
