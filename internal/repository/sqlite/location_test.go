package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cechriza/marcaje/internal/errs"
	"github.com/cechriza/marcaje/internal/model"
)

func TestLocationCache_SaveAndLast(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	c := NewLocationCache(db)
	ctx := context.Background()

	if _, err := c.Last(ctx); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound on empty cache, got %v", err)
	}

	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	old := model.Fix{Latitude: 1, Longitude: 2, Accuracy: 30, Time: base}
	fresh := model.Fix{Latitude: 3, Longitude: 4, Accuracy: 10, Time: base.Add(time.Minute)}

	if err := c.Save(ctx, old); err != nil {
		t.Fatalf("Save old: %v", err)
	}
	if err := c.Save(ctx, fresh); err != nil {
		t.Fatalf("Save fresh: %v", err)
	}

	got, err := c.Last(ctx)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if got.Latitude != fresh.Latitude || got.Longitude != fresh.Longitude {
		t.Fatalf("want most recent fix, got %+v", got)
	}
	if !got.Time.Equal(fresh.Time) {
		t.Fatalf("time mismatch: %v vs %v", got.Time, fresh.Time)
	}
}
