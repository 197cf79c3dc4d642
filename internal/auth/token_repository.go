package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TokenRepository is the allow-list of currently valid refresh tokens,
// the only place "is this refresh token still alive" can be answered.
// Exactly one row exists per valid, un-rotated token.
type TokenRepository interface {
	Store(ctx context.Context, token, userID string) error
	Exists(ctx context.Context, token string) (bool, error)
	Delete(ctx context.Context, token string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	Rotate(ctx context.Context, oldToken, newToken, userID string) error
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// Store inserts a refresh token row. The token value is the primary key;
// per-issuance jti uniqueness guarantees no collision for tokens minted in
// the same instant.
func (r *SQLiteTokenRepository) Store(ctx context.Context, token, userID string) error {
	createdAt := time.Now().UTC().Format(time.RFC3339)

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, user_id, created_at) VALUES (?, ?, ?)",
		token, userID, createdAt,
	)
	if err != nil {
		return fmt.Errorf("storing refresh token: %w", err)
	}
	return nil
}

// Exists reports whether the token is present in the allow-list.
func (r *SQLiteTokenRepository) Exists(ctx context.Context, token string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM refresh_tokens WHERE token = ?", token).Scan(&one)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("checking refresh token: %w", err)
	}
	return true, nil
}

// Delete removes a single token row. Deleting an absent token is not an
// error; logout is unconditional.
func (r *SQLiteTokenRepository) Delete(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token = ?", token); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}
	return nil
}

// DeleteAllForUser removes every token row belonging to a user.
// Used for logout-all and by the soft-delete cascade.
func (r *SQLiteTokenRepository) DeleteAllForUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting refresh tokens for user: %w", err)
	}
	return nil
}

// Rotate atomically consumes the presented token and stores its
// replacement. The delete and insert run in one transaction: if the old
// token's row is already gone because a concurrent rotation won the race,
// the transaction rolls back with ErrTokenInvalid and the allow-list is
// unchanged. A failed rotation never consumes the presented token.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldToken, newToken, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE token = ?", oldToken)
	if err != nil {
		return fmt.Errorf("consuming old token: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrTokenInvalid
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token, user_id, created_at) VALUES (?, ?, ?)",
		newToken, userID, createdAt,
	); err != nil {
		return fmt.Errorf("storing new token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}
