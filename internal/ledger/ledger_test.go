package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"parking-display-backend/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Reservation{}))
	return db
}

func TestOverlapSymmetry(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mk := func(startMin, endMin int) model.Reservation {
		return model.Reservation{
			StartTime: base.Add(time.Duration(startMin) * time.Minute),
			EndTime:   base.Add(time.Duration(endMin) * time.Minute),
		}
	}

	testCases := []struct {
		name    string
		a, b    model.Reservation
		overlap bool
	}{
		{"identical ranges", mk(0, 30), mk(0, 30), true},
		{"partial overlap", mk(0, 30), mk(15, 45), true},
		{"contained range", mk(0, 60), mk(15, 30), true},
		{"touching ranges do not overlap", mk(0, 30), mk(30, 60), false},
		{"disjoint ranges", mk(0, 30), mk(45, 75), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlap, tc.a.Overlaps(tc.b))
			assert.Equal(t, tc.overlap, tc.b.Overlaps(tc.a), "overlap must be symmetric")
		})
	}
}

func TestCreateReservationValidation(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := l.CreateReservation(ctx, "t1", "s1", start, start, "req-a")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = l.CreateReservation(ctx, "t1", "s1", start, start.Add(-time.Hour), "req-b")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = l.CreateReservation(ctx, "t1", "s1", start, start.Add(10*time.Minute), "req-c")
	assert.ErrorIs(t, err, ErrValidation, "below minimum duration")

	_, err = l.CreateReservation(ctx, "t1", "s1", start, start.Add(15*time.Minute), "")
	assert.ErrorIs(t, err, ErrValidation, "missing request id")

	_, err = l.CreateReservation(ctx, "t1", "s1", start, start.Add(15*time.Minute), "req-d")
	assert.NoError(t, err, "exactly minimum duration is allowed")
}

func TestCreateReservationConflictAndIdempotency(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC)
	}

	// Book S1 10:00-10:30.
	first, err := l.CreateReservation(ctx, "t1", "S1", at(10, 0), at(10, 30), "req-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationActive, first.Status)

	// Overlapping booking 10:15-10:45 conflicts.
	_, err = l.CreateReservation(ctx, "t1", "S1", at(10, 15), at(10, 45), "req-2")
	assert.ErrorIs(t, err, ErrConflict)

	// Retrying req-1 with identical params returns the original reservation.
	retry, err := l.CreateReservation(ctx, "t1", "S1", at(10, 0), at(10, 30), "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, retry.ID)

	var count int64
	require.NoError(t, l.db.Model(&model.Reservation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "retry must not create a second reservation")

	// A touching range [10:30, 11:00) does not conflict.
	_, err = l.CreateReservation(ctx, "t1", "S1", at(10, 30), at(11, 0), "req-3")
	assert.NoError(t, err)

	// The idempotency key survives cancellation.
	cancelled, err := l.CancelReservation(ctx, "t1", first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, cancelled.Status)

	replay, err := l.CreateReservation(ctx, "t1", "S1", at(10, 0), at(10, 30), "req-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, replay.ID)
	assert.Equal(t, model.ReservationCancelled, replay.Status, "replay returns the record unchanged")
}

func TestCancelReservation(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	reservation, err := l.CreateReservation(ctx, "t1", "S1", start, start.Add(time.Hour), "req-1")
	require.NoError(t, err)

	_, err = l.CancelReservation(ctx, "t1", "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.CancelReservation(ctx, "other-tenant", reservation.ID)
	assert.ErrorIs(t, err, ErrNotFound, "tenants cannot cancel each other's reservations")

	cancelled, err := l.CancelReservation(ctx, "t1", reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, cancelled.Status)

	// Cancelling again is a no-op returning the current record.
	again, err := l.CancelReservation(ctx, "t1", reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.ID, again.ID)
	assert.Equal(t, model.ReservationCancelled, again.Status)
}

func TestCancelledReservationFreesRange(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := l.CreateReservation(ctx, "t1", "S1", start, start.Add(time.Hour), "req-1")
	require.NoError(t, err)
	_, err = l.CancelReservation(ctx, "t1", first.ID)
	require.NoError(t, err)

	second, err := l.CreateReservation(ctx, "t1", "S1", start, start.Add(time.Hour), "req-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConcurrentOverlappingCreates(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.CreateReservation(ctx, "t1", "S1",
				start.Add(time.Duration(i)*10*time.Minute),
				start.Add(time.Duration(i)*10*time.Minute+30*time.Minute),
				fmt.Sprintf("req-%d", i))
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent overlapping create succeeds")
	assert.Equal(t, 1, conflicts)

	var count int64
	require.NoError(t, l.db.Model(&model.Reservation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestConcurrentIdempotentRetries(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC)

	const retries = 4
	var wg sync.WaitGroup
	ids := make([]string, retries)
	for i := 0; i < retries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := l.CreateReservation(ctx, "t1", "S1", start, start.Add(30*time.Minute), "same-request")
			if assert.NoError(t, err) {
				ids[i] = r.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < retries; i++ {
		assert.Equal(t, ids[0], ids[i], "all retries must resolve to the same reservation")
	}
	var count int64
	require.NoError(t, l.db.Model(&model.Reservation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestListActive(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC)
	}

	// Insert out of order; ListActive must sort by start time.
	_, err := l.CreateReservation(ctx, "t1", "S1", at(12, 0), at(12, 30), "req-noon")
	require.NoError(t, err)
	early, err := l.CreateReservation(ctx, "t1", "S1", at(9, 0), at(9, 30), "req-morning")
	require.NoError(t, err)
	_, err = l.CreateReservation(ctx, "t1", "S1", at(10, 0), at(10, 30), "req-mid")
	require.NoError(t, err)

	// A cancelled reservation never appears.
	_, err = l.CancelReservation(ctx, "t1", early.ID)
	require.NoError(t, err)

	// A reservation for another space never appears.
	_, err = l.CreateReservation(ctx, "t1", "S2", at(10, 0), at(10, 30), "req-other")
	require.NoError(t, err)

	reservations, err := l.ListActive(ctx, "t1", "S1", at(0, 0), at(23, 59))
	require.NoError(t, err)
	require.Len(t, reservations, 2)
	assert.Equal(t, "req-mid", reservations[0].RequestID)
	assert.Equal(t, "req-noon", reservations[1].RequestID)

	// Window excludes reservations outside it; the boundary is half-open.
	windowed, err := l.ListActive(ctx, "t1", "S1", at(12, 30), at(23, 59))
	require.NoError(t, err)
	assert.Empty(t, windowed)
}

func TestActiveAt(t *testing.T) {
	l := New(newTestDB(t))
	ctx := context.Background()
	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC)
	}

	created, err := l.CreateReservation(ctx, "t1", "S1", at(10, 0), at(10, 30), "req-1")
	require.NoError(t, err)

	covering, err := l.ActiveAt(ctx, "t1", "S1", at(10, 15))
	require.NoError(t, err)
	require.NotNil(t, covering)
	assert.Equal(t, created.ID, covering.ID)

	// The range is half-open: its end instant is not covered.
	atEnd, err := l.ActiveAt(ctx, "t1", "S1", at(10, 30))
	require.NoError(t, err)
	assert.Nil(t, atEnd)

	before, err := l.ActiveAt(ctx, "t1", "S1", at(9, 59))
	require.NoError(t, err)
	assert.Nil(t, before)
}
