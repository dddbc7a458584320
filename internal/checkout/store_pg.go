package checkout

import (
	"context"
	"database/sql"
)

// PGStore implements EventStore and ClaimStore using Postgres.
type PGStore struct {
	DB *sql.DB
}

func (s *PGStore) Begin(ctx context.Context, id, eventType string) (bool, error) {
	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO stripe_events (id, type) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, id, eventType)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *PGStore) Forget(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM stripe_events WHERE id = $1`, id)
	return err
}

func (s *PGStore) Claim(ctx context.Context, sessionID, userID, customerID string) (bool, error) {
	var customer any
	if customerID != "" {
		customer = customerID
	}
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO checkout_claims (session_id, user_id, customer_id)
VALUES ($1, $2, $3)
ON CONFLICT (session_id) DO NOTHING`, sessionID, userID, customer)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var owner string
	if err := s.DB.QueryRowContext(ctx,
		`SELECT user_id FROM checkout_claims WHERE session_id = $1`, sessionID).Scan(&owner); err != nil {
		return false, err
	}
	if owner != userID {
		return false, ErrAlreadyClaimed
	}
	return false, nil
}

var (
	_ EventStore = (*PGStore)(nil)
	_ ClaimStore = (*PGStore)(nil)
)
