package policy

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"parking-display-backend/internal/model"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func policyRow(free, occupied, reserved, unknown uint8, expirySeconds int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"tenant_id",
		"free_color", "occupied_color", "reserved_color", "unknown_color",
		"free_pattern", "occupied_pattern", "reserved_pattern", "unknown_pattern",
		"override_expiry_seconds", "updated_at",
	}).AddRow("t1", free, occupied, reserved, unknown, 0, 0, 0, 0, expirySeconds, time.Now())
}

func TestGetPolicyFromDatabase(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenant_policies" WHERE tenant_id = $1 LIMIT $2`)).
		WithArgs("t1", 1).
		WillReturnRows(policyRow(0x11, 0x22, 0x33, 0x44, 7200))

	policy, err := store.GetPolicy(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x11), policy.Colors[model.DisplayFree])
	assert.Equal(t, uint8(0x22), policy.Colors[model.DisplayOccupied])
	assert.Equal(t, uint8(0x33), policy.Colors[model.DisplayReserved])
	assert.Equal(t, uint8(0x44), policy.Colors[model.DisplayUnknown])
	assert.Equal(t, 2*time.Hour, policy.OverrideExpiry)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPolicyCachesLookups(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewStore(db)

	// Only one query is expected: the second call must be served from cache.
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenant_policies"`)).
		WithArgs("t1", 1).
		WillReturnRows(policyRow(0x11, 0x22, 0x33, 0x44, 0))

	first, err := store.GetPolicy(context.Background(), "t1")
	require.NoError(t, err)
	second, err := store.GetPolicy(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPolicyInvalidateForcesReload(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenant_policies"`)).
		WithArgs("t1", 1).
		WillReturnRows(policyRow(0x11, 0, 0, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenant_policies"`)).
		WithArgs("t1", 1).
		WillReturnRows(policyRow(0x99, 0, 0, 0, 0))

	before, err := store.GetPolicy(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x11), before.Colors[model.DisplayFree])

	store.Invalidate("t1")

	after, err := store.GetPolicy(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x99), after.Colors[model.DisplayFree])

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPolicyFallsBackToDefault(t *testing.T) {
	db, mock := newTestDB(t)
	store := NewStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "tenant_policies"`)).
		WithArgs("unconfigured", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	policy, err := store.GetPolicy(context.Background(), "unconfigured")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, policy.OverrideExpiry)
	assert.NotEmpty(t, policy.Colors)

	assert.NoError(t, mock.ExpectationsWereMet())
}
