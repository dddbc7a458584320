package profiles

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"resume-tailor/internal/shared/storage/db"
	"resume-tailor/internal/subscription"
)

// PGRepo stores profiles in Postgres.
type PGRepo struct {
	DB *sql.DB
}

const profileColumns = `id, email, full_name, subscription_tier, subscription_status,
  stripe_customer_id, stripe_subscription_id, current_period_end, cancel_at_period_end,
  analyses_used_this_period, analyses_limit, usage_resets_at, guest_usage_transferred,
  created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p          Profile
		email      sql.NullString
		fullName   sql.NullString
		tier       string
		customerID sql.NullString
		subID      sql.NullString
		periodEnd  sql.NullTime
	)
	err := row.Scan(
		&p.ID,
		&email,
		&fullName,
		&tier,
		&p.Status,
		&customerID,
		&subID,
		&periodEnd,
		&p.CancelAtPeriodEnd,
		&p.AnalysesUsed,
		&p.AnalysesLimit,
		&p.UsageResetsAt,
		&p.GuestUsageTransferred,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	p.Email = email.String
	p.FullName = fullName.String
	p.Tier = subscription.ParseTier(tier)
	p.StripeCustomerID = customerID.String
	p.StripeSubscriptionID = subID.String
	if periodEnd.Valid {
		t := periodEnd.Time
		p.CurrentPeriodEnd = &t
	}
	return p, nil
}

func (r *PGRepo) Ensure(ctx context.Context, id, email, fullName string) (Profile, error) {
	p := New(id, email, time.Now())
	const query = `
INSERT INTO profiles (id, email, full_name, subscription_tier, subscription_status, analyses_limit, usage_resets_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  email = COALESCE(profiles.email, EXCLUDED.email),
  full_name = COALESCE(profiles.full_name, EXCLUDED.full_name)
RETURNING ` + profileColumns
	return scanProfile(r.DB.QueryRowContext(ctx, query,
		id,
		nullableString(email),
		nullableString(fullName),
		string(p.Tier),
		p.Status,
		p.AnalysesLimit,
		p.UsageResetsAt,
	))
}

func (r *PGRepo) Get(ctx context.Context, id string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	return scanProfile(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) FindByCustomerID(ctx context.Context, customerID string) (Profile, error) {
	if customerID == "" {
		return Profile{}, ErrNotFound
	}
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE stripe_customer_id = $1`
	return scanProfile(r.DB.QueryRowContext(ctx, query, customerID))
}

func (r *PGRepo) Mutate(ctx context.Context, id string, fn func(p *Profile) error) (Profile, error) {
	var out Profile
	err := db.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		p, err := lockOrCreate(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		const update = `
UPDATE profiles SET
  email = $2,
  full_name = $3,
  subscription_tier = $4,
  subscription_status = $5,
  stripe_customer_id = $6,
  stripe_subscription_id = $7,
  current_period_end = $8,
  cancel_at_period_end = $9,
  analyses_used_this_period = $10,
  analyses_limit = $11,
  usage_resets_at = $12,
  guest_usage_transferred = $13,
  updated_at = now()
WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update,
			id,
			nullableString(p.Email),
			nullableString(p.FullName),
			string(p.Tier),
			p.Status,
			nullableString(p.StripeCustomerID),
			nullableString(p.StripeSubscriptionID),
			nullableTime(p.CurrentPeriodEnd),
			p.CancelAtPeriodEnd,
			p.AnalysesUsed,
			p.AnalysesLimit,
			p.UsageResetsAt,
			p.GuestUsageTransferred,
		); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Profile{}, err
	}
	return out, nil
}

// lockOrCreate returns the row for id locked for update, inserting defaults
// first when it does not exist. A concurrent first write for the same id
// leaves the insert a no-op and the re-select waits on the winner's lock.
func lockOrCreate(ctx context.Context, tx *sql.Tx, id string) (Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 FOR UPDATE`
	p, err := scanProfile(tx.QueryRowContext(ctx, query, id))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Profile{}, err
	}
	p = New(id, "", time.Now())
	if _, err := tx.ExecContext(ctx, `
INSERT INTO profiles (id, subscription_tier, subscription_status, analyses_limit, usage_resets_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`,
		id, string(p.Tier), p.Status, p.AnalysesLimit, p.UsageResetsAt); err != nil {
		return Profile{}, err
	}
	return scanProfile(tx.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
SELECT id FROM profiles
WHERE usage_resets_at <= $1
ORDER BY usage_resets_at
LIMIT $2`, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ Repo = (*PGRepo)(nil)
