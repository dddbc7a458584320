package analyses

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var analysisCols = []string{
	"id", "user_id", "job_title", "resume_text", "job_description", "shape", "score",
	"result", "raw_key", "is_favorite", "created_at",
}

func TestPGCreateAnalysis(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO analyses`).
		WithArgs("a1", "user-1", "Backend Engineer", "resume", "job", "hybrid", 82.0,
			sqlmock.AnyArg(), nil, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := &PGRepo{DB: sqlDB}
	err = repo.Create(context.Background(), Analysis{
		ID:             "a1",
		UserID:         "user-1",
		JobTitle:       "Backend Engineer",
		ResumeText:     "resume",
		JobDescription: "job",
		Shape:          ShapeHybrid,
		Score:          82,
		Result:         DefaultResult(),
		CreatedAt:      now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGGetByIDDecodesResult(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	result := DefaultResult()
	result.Score = 64
	result.Summary = "Solid backend fit"
	payload, err := json.Marshal(result)
	require.NoError(t, err)

	mock.ExpectQuery(`FROM analyses WHERE id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(analysisCols).AddRow(
			"a1", "user-1", nil, "resume", "job", "enterprise", 64.0,
			payload, "raw/abc/a1.json", true, now,
		))

	repo := &PGRepo{DB: sqlDB}
	a, err := repo.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, ShapeEnterprise, a.Shape)
	assert.Equal(t, "", a.JobTitle)
	assert.Equal(t, "raw/abc/a1.json", a.RawKey)
	assert.True(t, a.IsFavorite)
	assert.Equal(t, "Solid backend fit", a.Result.Summary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGGetByIDNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`FROM analyses WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(analysisCols))

	repo := &PGRepo{DB: sqlDB}
	_, err = repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGListByUserCapsLimit(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`FROM analyses\s+WHERE user_id = \$1\s+ORDER BY created_at DESC`).
		WithArgs("user-1", 100, 0).
		WillReturnRows(sqlmock.NewRows(analysisCols))

	repo := &PGRepo{DB: sqlDB}
	out, err := repo.ListByUser(context.Background(), "user-1", 500, -1)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGSetFavoriteScopedToOwner(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery(`UPDATE analyses SET is_favorite = \$3 WHERE id = \$1 AND user_id = \$2 RETURNING`).
		WithArgs("a1", "user-2", true).
		WillReturnRows(sqlmock.NewRows(analysisCols))

	repo := &PGRepo{DB: sqlDB}
	_, err = repo.SetFavorite(context.Background(), "user-2", "a1", true)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGDeleteMissingRow(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`DELETE FROM analyses WHERE id = \$1 AND user_id = \$2`).
		WithArgs("a1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := &PGRepo{DB: sqlDB}
	assert.ErrorIs(t, repo.Delete(context.Background(), "user-1", "a1"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGClaimGuest(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`UPDATE analyses SET user_id = \$2 WHERE user_id = \$1`).
		WithArgs("guest:g1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := &PGRepo{DB: sqlDB}
	n, err := repo.ClaimGuest(context.Background(), "guest:g1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
