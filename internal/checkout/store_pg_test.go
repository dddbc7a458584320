package checkout

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGBeginDeduplicates(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`INSERT INTO stripe_events .* ON CONFLICT \(id\) DO NOTHING`).
		WithArgs("evt_1", "invoice.payment_succeeded").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO stripe_events`).
		WithArgs("evt_1", "invoice.payment_succeeded").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := &PGStore{DB: sqlDB}
	first, err := store.Begin(context.Background(), "evt_1", "invoice.payment_succeeded")
	require.NoError(t, err)
	assert.True(t, first)
	again, err := store.Begin(context.Background(), "evt_1", "invoice.payment_succeeded")
	require.NoError(t, err)
	assert.False(t, again)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGClaimOwnership(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`INSERT INTO checkout_claims`).
		WithArgs("cs_1", "user-2", "cus_1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT user_id FROM checkout_claims WHERE session_id = \$1`).
		WithArgs("cs_1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("user-1"))

	store := &PGStore{DB: sqlDB}
	_, err = store.Claim(context.Background(), "cs_1", "user-2", "cus_1")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGClaimFirstTime(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`INSERT INTO checkout_claims`).
		WithArgs("cs_1", "user-1", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := &PGStore{DB: sqlDB}
	first, err := store.Claim(context.Background(), "cs_1", "user-1", "")
	require.NoError(t, err)
	assert.True(t, first)
	require.NoError(t, mock.ExpectationsWereMet())
}
