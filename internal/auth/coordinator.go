package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ResourceCascader is the generic "owned resources" hook the soft-delete
// cascade invokes. Implementations mark every live resource owned by the
// user as deleted, on the coordinator's transaction.
type ResourceCascader interface {
	CascadeSoftDeleteByOwner(ctx context.Context, tx *sql.Tx, ownerUserID string, now time.Time) error
}

// Coordinator orchestrates the soft-delete cascade: user row, owned
// resources, and sessions change together as one transaction. A state where
// the user is marked deleted but sessions remain valid (or vice versa) must
// never be observable.
type Coordinator struct {
	db        *sql.DB
	resources ResourceCascader
}

// NewCoordinator creates a soft-delete coordinator. The resources hook may
// be nil when the deployment has no owned-resource collaborator.
func NewCoordinator(db *sql.DB, resources ResourceCascader) *Coordinator {
	return &Coordinator{db: db, resources: resources}
}

// SoftDeleteUser marks a live user deleted, cascades to their owned
// resources, and hard-deletes their sessions, all in one transaction.
//
// Returns the user as it was before deletion, or ErrUserNotFound with no
// mutation at all when the ID does not resolve to a live user. Sessions
// are removed outright rather than soft-deleted: there is no value in
// remembering a dead session. The user row itself is never hard-deleted
// and never restored.
func (c *Coordinator) SoftDeleteUser(ctx context.Context, userID string) (*User, error) {
	id := strings.TrimSpace(userID)
	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning cascade transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	// Re-check liveness inside the transaction so a concurrent cascade
	// cannot double-delete.
	row := tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? AND deleted_at IS NULL", id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE users SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL",
		nowStr, id,
	); err != nil {
		return nil, fmt.Errorf("marking user deleted: %w", err)
	}

	if c.resources != nil {
		if err := c.resources.CascadeSoftDeleteByOwner(ctx, tx, id, now); err != nil {
			return nil, fmt.Errorf("cascading to owned resources: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE user_id = ?", id,
	); err != nil {
		return nil, fmt.Errorf("revoking sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cascade: %w", err)
	}

	user.DeletedAt = &now
	return user, nil
}
