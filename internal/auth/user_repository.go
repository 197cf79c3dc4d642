package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for account persistence.
//
// Every lookup excludes soft-deleted users unless it says otherwise:
// a deleted account must be invisible to the login and authorisation paths.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByIDIncludingDeleted(ctx context.Context, id string) (*User, error)
	SetRole(ctx context.Context, id string, role Role) (bool, error)
	ListLive(ctx context.Context, limit, offset int) ([]User, int, error)
	CountLive(ctx context.Context) (int, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

const userColumns = "id, email, password_hash, role, created_at, deleted_at"

// Create inserts a new live user. The ID is generated if empty. The email
// must already be normalised and the password hashed by the caller;
// uniqueness among live users is enforced by a partial unique index and
// surfaces as ErrEmailExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()
	}
	if user.Role == "" {
		user.Role = RoleUser
	}

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, created_at, deleted_at)
		 VALUES (?, ?, ?, ?, ?, NULL)`,
		user.ID, user.Email, user.PasswordHash, string(user.Role), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByEmail retrieves a live user by normalised email.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ? AND deleted_at IS NULL", email)
	return scanUser(row)
}

// GetByID retrieves a live user by ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ? AND deleted_at IS NULL", id)
	return scanUser(row)
}

// GetByIDIncludingDeleted retrieves a user by ID regardless of deletion
// state. Internal bookkeeping only, never used on login or authorisation
// paths.
func (r *SQLiteUserRepository) GetByIDIncludingDeleted(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id)
	return scanUser(row)
}

// SetRole updates a live user's role. Returns false without error when the
// ID does not resolve to a live user. Idempotent.
func (r *SQLiteUserRepository) SetRole(ctx context.Context, id string, role Role) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET role = ? WHERE id = ? AND deleted_at IS NULL",
		string(role), strings.TrimSpace(id),
	)
	if err != nil {
		return false, fmt.Errorf("setting role: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return rows > 0, nil
}

// ListLive returns live users ordered by creation date ascending, plus the
// total live count for pagination.
func (r *SQLiteUserRepository) ListLive(ctx context.Context, limit, offset int) ([]User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE deleted_at IS NULL").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+` FROM users
		 WHERE deleted_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating users: %w", err)
	}

	if users == nil {
		users = []User{}
	}
	return users, total, nil
}

// CountLive returns the number of live users.
func (r *SQLiteUserRepository) CountLive(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE deleted_at IS NULL").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// scanner is an interface covering sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUser scans a user row from any scanner (Row or Rows).
func scanUser(s scanner) (*User, error) {
	var u User
	var role string
	var createdAt string
	var deletedAt sql.NullString

	err := s.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &createdAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	if deletedAt.Valid {
		t, _ := time.Parse(time.RFC3339, deletedAt.String) //nolint:errcheck // format is controlled
		u.DeletedAt = &t
	}

	return &u, nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "unique constraint"))
}
