package analyses

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const analysisColumns = `id, user_id, job_title, resume_text, job_description, shape, score,
       result, raw_key, is_favorite, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var (
		a        Analysis
		jobTitle sql.NullString
		shape    string
		result   []byte
		rawKey   sql.NullString
	)
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&jobTitle,
		&a.ResumeText,
		&a.JobDescription,
		&shape,
		&a.Score,
		&result,
		&rawKey,
		&a.IsFavorite,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Analysis{}, ErrNotFound
		}
		return Analysis{}, err
	}
	a.JobTitle = jobTitle.String
	a.Shape = Shape(shape)
	a.RawKey = rawKey.String
	if len(result) > 0 {
		if err := json.Unmarshal(result, &a.Result); err != nil {
			return Analysis{}, fmt.Errorf("decode analysis result %s: %w", a.ID, err)
		}
	}
	return a, nil
}

// Create inserts a new analysis.
func (r *PGRepo) Create(ctx context.Context, analysis Analysis) error {
	const query = `
INSERT INTO analyses (
	id, user_id, job_title, resume_text, job_description, shape, score, result, raw_key, is_favorite, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	resultPayload, err := json.Marshal(analysis.Result)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		analysis.ID,
		analysis.UserID,
		nullString(analysis.JobTitle),
		analysis.ResumeText,
		analysis.JobDescription,
		string(analysis.Shape),
		analysis.Score,
		resultPayload,
		nullString(analysis.RawKey),
		analysis.IsFavorite,
		analysis.CreatedAt,
	)
	return err
}

// GetByID returns an analysis by ID.
func (r *PGRepo) GetByID(ctx context.Context, analysisID string) (Analysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1 LIMIT 1`
	return scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID))
}

// ListByUser returns a user's analyses, newest first.
func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + analysisColumns + `
FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.DB.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SetFavorite updates the favorite flag of an analysis owned by userID.
func (r *PGRepo) SetFavorite(ctx context.Context, userID, analysisID string, favorite bool) (Analysis, error) {
	query := `UPDATE analyses SET is_favorite = $3 WHERE id = $1 AND user_id = $2 RETURNING ` + analysisColumns
	return scanAnalysis(r.DB.QueryRowContext(ctx, query, analysisID, userID, favorite))
}

// Delete removes an analysis owned by userID.
func (r *PGRepo) Delete(ctx context.Context, userID, analysisID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM analyses WHERE id = $1 AND user_id = $2`, analysisID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimGuest reassigns a guest's analyses to userID.
func (r *PGRepo) ClaimGuest(ctx context.Context, guestUserID, userID string) (int, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE analyses SET user_id = $2 WHERE user_id = $1`, guestUserID, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repo = (*PGRepo)(nil)
