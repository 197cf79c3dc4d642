package todo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a todo does not exist, is soft-deleted, or
// belongs to a different owner. Callers cannot distinguish the three cases.
var ErrNotFound = errors.New("todo not found")

// Todo is a single task owned by one user.
type Todo struct {
	ID          string     `json:"id"`
	OwnerUserID string     `json:"-"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"-"`
}

// ListFilter controls which todos ListByOwner returns.
type ListFilter struct {
	Completed *bool // optional
	Limit     int   // default 20, max 50
	Offset    int
}

// Patch holds the fields an update may change. Nil fields are left alone.
type Patch struct {
	Title     *string
	Completed *bool
}

// Repository defines the interface for todo persistence.
type Repository interface {
	Create(ctx context.Context, ownerUserID, title string) (*Todo, error)
	GetByID(ctx context.Context, ownerUserID, id string) (*Todo, error)
	ListByOwner(ctx context.Context, ownerUserID string, filter ListFilter) ([]Todo, int, error)
	Update(ctx context.Context, ownerUserID, id string, patch Patch) (*Todo, error)
	SoftDelete(ctx context.Context, ownerUserID, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed todo repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const todoColumns = "id, owner_user_id, title, completed, created_at, deleted_at"

// Create inserts a new incomplete todo for the owner.
func (r *SQLiteRepository) Create(ctx context.Context, ownerUserID, title string) (*Todo, error) {
	t := &Todo{
		ID:          "td-" + uuid.NewString(),
		OwnerUserID: ownerUserID,
		Title:       title,
		Completed:   false,
		CreatedAt:   time.Now().UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO todos (id, owner_user_id, title, completed, created_at, deleted_at)
		 VALUES (?, ?, ?, 0, ?, NULL)`,
		t.ID, t.OwnerUserID, t.Title, t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting todo: %w", err)
	}

	return t, nil
}

// GetByID returns a live todo owned by ownerUserID.
func (r *SQLiteRepository) GetByID(ctx context.Context, ownerUserID, id string) (*Todo, error) {
	row := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM todos
		 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL`, todoColumns),
		id, ownerUserID,
	)

	t, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying todo: %w", err)
	}
	return t, nil
}

// ListByOwner returns the owner's live todos, oldest first, with the total
// count of matching rows before pagination.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerUserID string, filter ListFilter) ([]Todo, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 50 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	where := "WHERE owner_user_id = ? AND deleted_at IS NULL"
	args := []any{ownerUserID}
	if filter.Completed != nil {
		where += " AND completed = ?"
		args = append(args, boolToInt(*filter.Completed))
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM todos %s", where)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting todos: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM todos %s ORDER BY created_at ASC LIMIT ? OFFSET ?`,
		todoColumns, where)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying todos: %w", err)
	}
	defer rows.Close()

	todos := []Todo{}
	for rows.Next() {
		t, err := scanTodo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning todo: %w", err)
		}
		todos = append(todos, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating todos: %w", err)
	}

	return todos, total, nil
}

// Update applies the patch to a live todo owned by ownerUserID and returns
// the updated row.
func (r *SQLiteRepository) Update(ctx context.Context, ownerUserID, id string, patch Patch) (*Todo, error) {
	if patch.Title == nil && patch.Completed == nil {
		return r.GetByID(ctx, ownerUserID, id)
	}

	set := ""
	var args []any
	if patch.Title != nil {
		set += "title = ?"
		args = append(args, *patch.Title)
	}
	if patch.Completed != nil {
		if set != "" {
			set += ", "
		}
		set += "completed = ?"
		args = append(args, boolToInt(*patch.Completed))
	}
	args = append(args, id, ownerUserID)

	query := fmt.Sprintf(`UPDATE todos SET %s
	 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL`, set)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("updating todo: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking todo update: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}

	return r.GetByID(ctx, ownerUserID, id)
}

// SoftDelete marks a live todo as deleted. Already-deleted or foreign todos
// report ErrNotFound.
func (r *SQLiteRepository) SoftDelete(ctx context.Context, ownerUserID, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE todos SET deleted_at = ?
		 WHERE id = ? AND owner_user_id = ? AND deleted_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339), id, ownerUserID,
	)
	if err != nil {
		return fmt.Errorf("deleting todo: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking todo delete: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// CascadeSoftDeleteByOwner marks all of the owner's live todos deleted
// inside the caller's transaction. Already-deleted todos keep their
// original deleted_at.
func (r *SQLiteRepository) CascadeSoftDeleteByOwner(ctx context.Context, tx *sql.Tx, ownerUserID string, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE todos SET deleted_at = ?
		 WHERE owner_user_id = ? AND deleted_at IS NULL`,
		now.UTC().Format(time.RFC3339), ownerUserID,
	)
	if err != nil {
		return fmt.Errorf("cascading todo delete: %w", err)
	}
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for scanTodo.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTodo(row rowScanner) (*Todo, error) {
	var t Todo
	var completed int
	var createdAt string
	var deletedAt sql.NullString

	if err := row.Scan(&t.ID, &t.OwnerUserID, &t.Title, &completed, &createdAt, &deletedAt); err != nil {
		return nil, err
	}

	t.Completed = completed != 0
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	if deletedAt.Valid {
		parsed, _ := time.Parse(time.RFC3339, deletedAt.String) //nolint:errcheck // format is controlled
		t.DeletedAt = &parsed
	}

	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
