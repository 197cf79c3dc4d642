// Package audit provides the append-only audit trail for security-relevant
// events.
//
// Entries are immutable facts: never updated, never deleted. The table has
// no foreign keys. Actor and target identity fields are denormalised
// snapshots taken at write time, so history survives account deletion.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/taskvault/taskvault/internal/auth"
)

// Action identifies a security-relevant event type. The set is closed:
// Record rejects unknown actions.
type Action string

const (
	ActionLoginSuccess   Action = "AUTH_LOGIN_SUCCESS"
	ActionLoginFail      Action = "AUTH_LOGIN_FAIL"
	ActionRefresh        Action = "AUTH_REFRESH"
	ActionLogout         Action = "AUTH_LOGOUT"
	ActionLogoutAll      Action = "AUTH_LOGOUT_ALL"
	ActionListUsers      Action = "ADMIN_LIST_USERS"
	ActionViewUserTodos  Action = "ADMIN_VIEW_USER_TODOS"
	ActionSetUserRole    Action = "ADMIN_SET_USER_ROLE"
	ActionDeleteUser     Action = "ADMIN_DELETE_USER"
)

// Actions is the closed set of valid audit actions.
var Actions = []Action{
	ActionLoginSuccess,
	ActionLoginFail,
	ActionRefresh,
	ActionLogout,
	ActionLogoutAll,
	ActionListUsers,
	ActionViewUserTodos,
	ActionSetUserRole,
	ActionDeleteUser,
}

// IsValidAction returns true if the action is one of the closed set.
func IsValidAction(a Action) bool {
	for _, v := range Actions {
		if a == v {
			return true
		}
	}
	return false
}

// ErrUnknownAction is returned by Record for actions outside the closed set.
var ErrUnknownAction = errors.New("unknown audit action")

// Entry is a single audit trail fact.
//
// ActorUserID is nil for unauthenticated events (failed login with an
// unknown email). Meta is an opaque payload stored verbatim, byte for
// byte, without interpretation.
type Entry struct {
	ID           string          `json:"id"`
	CreatedAt    time.Time       `json:"created_at"`
	ActorUserID  *string         `json:"actor_user_id"`
	ActorEmail   *string         `json:"actor_email"`
	ActorRole    auth.Role       `json:"actor_role"`
	Action       Action          `json:"action"`
	TargetUserID *string         `json:"target_user_id"`
	TargetTodoID *string         `json:"target_todo_id"`
	IP           *string         `json:"ip"`
	UserAgent    *string         `json:"user_agent"`
	Meta         json.RawMessage `json:"meta"`
}

// Filter controls which audit entries List returns.
type Filter struct {
	Action       Action // optional
	ActorUserID  string // optional
	TargetUserID string // optional
	Limit        int    // default 20, max 50
	Offset       int
}

// Recorder defines the interface for audit trail operations.
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
}

// SQLiteRecorder implements Recorder using SQLite.
type SQLiteRecorder struct {
	db *sql.DB
}

// NewRecorder creates a new SQLite-backed audit recorder.
func NewRecorder(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db}
}

// Record appends one immutable entry. The ID and CreatedAt are generated
// if empty. There is no update or delete counterpart.
func (r *SQLiteRecorder) Record(ctx context.Context, entry *Entry) error {
	if !IsValidAction(entry.Action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, entry.Action)
	}

	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.ActorRole == "" {
		entry.ActorRole = auth.RoleUser
	}

	meta := entry.Meta
	if meta == nil {
		meta = json.RawMessage("null")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (
		 id, created_at, actor_user_id, actor_email, actor_role,
		 action, target_user_id, target_todo_id, ip, user_agent, meta_json
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.CreatedAt.Format(time.RFC3339),
		entry.ActorUserID, entry.ActorEmail, string(entry.ActorRole),
		string(entry.Action), entry.TargetUserID, entry.TargetTodoID,
		entry.IP, entry.UserAgent, string(meta),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

// List returns entries matching the filter, newest first.
func (r *SQLiteRecorder) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 50 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}
	if filter.ActorUserID != "" {
		conditions = append(conditions, "actor_user_id = ?")
		args = append(args, strings.TrimSpace(filter.ActorUserID))
	}
	if filter.TargetUserID != "" {
		conditions = append(conditions, "target_user_id = ?")
		args = append(args, strings.TrimSpace(filter.TargetUserID))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// WHERE clause is assembled from parameterised conditions only.
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where) //nolint:gosec
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions
		`SELECT id, created_at, actor_user_id, actor_email, actor_role,
		 action, target_user_id, target_todo_id, ip, user_agent, meta_json
		 FROM audit_logs %s ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var actorUserID, actorEmail, targetUserID, targetTodoID, ip, userAgent sql.NullString
		var actorRole, action, createdAt, metaJSON string

		if err := rows.Scan(&e.ID, &createdAt, &actorUserID, &actorEmail, &actorRole,
			&action, &targetUserID, &targetTodoID, &ip, &userAgent, &metaJSON); err != nil {
			return nil, 0, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.ActorRole = auth.Role(actorRole)
		e.Action = Action(action)
		e.ActorUserID = nullableToPtr(actorUserID)
		e.ActorEmail = nullableToPtr(actorEmail)
		e.TargetUserID = nullableToPtr(targetUserID)
		e.TargetTodoID = nullableToPtr(targetTodoID)
		e.IP = nullableToPtr(ip)
		e.UserAgent = nullableToPtr(userAgent)
		e.Meta = json.RawMessage(metaJSON)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, total, nil
}

// nullableToPtr converts a sql.NullString to a *string.
func nullableToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
