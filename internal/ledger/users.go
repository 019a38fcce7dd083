package ledger

import (
	"context"

	"tradecore/internal/apperrors"
	"tradecore/internal/model"
)

// UserBySessionToken implements exchange.CredentialStore: it resolves a
// session token to the owning user's row, exchange credentials included.
func (l *Ledger) UserBySessionToken(ctx context.Context, sessionToken string) (model.User, error) {
	const q = `
		SELECT id, session_token, api_key, api_secret, start_funds_a, start_funds_b, start_funds_total
		FROM users WHERE session_token = $1`

	var u model.User
	err := l.pool.QueryRow(ctx, q, sessionToken).Scan(
		&u.ID, &u.SessionToken, &u.APIKey, &u.APISecret,
		&u.StartFundsA, &u.StartFundsB, &u.StartFundsTot)
	if err != nil {
		return model.User{}, apperrors.NewAuthError("unknown session token", err)
	}
	return u, nil
}

// UserByID loads a user row directly by id, used by the Supervisor when it
// already knows the owning user from the algorithm row and has no session
// token to resolve.
func (l *Ledger) UserByID(ctx context.Context, id string) (model.User, error) {
	const q = `
		SELECT id, session_token, api_key, api_secret, start_funds_a, start_funds_b, start_funds_total
		FROM users WHERE id = $1`

	var u model.User
	err := l.pool.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.SessionToken, &u.APIKey, &u.APISecret,
		&u.StartFundsA, &u.StartFundsB, &u.StartFundsTot)
	if err != nil {
		return model.User{}, apperrors.NewDatabaseError("user not found", err)
	}
	return u, nil
}

// AlgorithmByID loads one registered algorithm's bookkeeping parameters.
func (l *Ledger) AlgorithmByID(ctx context.Context, id string) (model.Algorithm, error) {
	const q = `
		SELECT id, description, start_funds_a, interval, rerun_period_sec, prepend_ms, user_id
		FROM algorithms WHERE id = $1`

	var a model.Algorithm
	var interval string
	err := l.pool.QueryRow(ctx, q, id).Scan(
		&a.ID, &a.Description, &a.StartFundsA, &interval, &a.RerunPeriodSec, &a.PrependMS, &a.UserID)
	if err != nil {
		return model.Algorithm{}, apperrors.NewDatabaseError("algorithm not found", err)
	}
	a.Interval = model.Interval(interval)
	return a, nil
}

// AlgorithmIDs lists every registered algorithm id, used by the
// Price-Anchor Task to know which algorithms to ping every cycle.
func (l *Ledger) AlgorithmIDs(ctx context.Context) ([]string, error) {
	rows, err := l.pool.Query(ctx, `SELECT id FROM algorithms`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("failed to list algorithm ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.NewDatabaseError("failed to scan algorithm id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
