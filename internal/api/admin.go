package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskvault/taskvault/internal/audit"
	"github.com/taskvault/taskvault/internal/auth"
)

// userNotFoundMessage is returned for missing and soft-deleted users alike.
const userNotFoundMessage = "User not found"

// userListResponse is the envelope for admin user listings.
type userListResponse struct {
	Users  []userResponse `json:"users"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// setRoleRequest is the request body for PATCH /admin/users/{id}/role.
type setRoleRequest struct {
	Role auth.Role `json:"role"`
}

// auditListResponse is the envelope for audit trail listings.
type auditListResponse struct {
	Logs   []audit.Entry `json:"logs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// handleAdminListUsers lists live accounts, oldest first.
func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageFromQuery(r.URL.Query())
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	users, total, err := s.users.ListLive(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}

	views := make([]userResponse, 0, len(users))
	for i := range users {
		views = append(views, toUserResponse(&users[i]))
	}

	s.auditEvent(r, &audit.Entry{
		Action: audit.ActionListUsers,
		Meta:   auditMeta(map[string]any{"limit": limit, "offset": offset}),
	})

	writeJSON(w, http.StatusOK, userListResponse{
		Users:  views,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// handleAdminUserTodos lists another user's live todos. The target must be
// a live account: a deleted or unknown user is a 404 before any todos are
// read.
func (s *Server) handleAdminUserTodos(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	target, err := s.users.GetByID(r.Context(), targetID)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, userNotFoundMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to look up user", "error", err)
		writeInternalError(w, "failed to list todos")
		return
	}

	filter, err := todoFilterFromQuery(r.URL.Query())
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	todos, total, err := s.todos.ListByOwner(r.Context(), target.ID, filter)
	if err != nil {
		s.logger.Error("failed to list todos", "error", err)
		writeInternalError(w, "failed to list todos")
		return
	}

	s.auditEvent(r, &audit.Entry{
		Action:       audit.ActionViewUserTodos,
		TargetUserID: &target.ID,
	})

	writeJSON(w, http.StatusOK, todoListResponse{
		Todos:  todos,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// handleAdminSetRole changes a live user's role. The change takes effect
// on the target's next token issuance; access tokens already in flight
// keep their embedded role until expiry.
func (s *Server) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if !auth.IsValidRole(req.Role) {
		writeValidationError(w, "role must be user or admin")
		return
	}

	changed, err := s.users.SetRole(r.Context(), targetID, req.Role)
	if err != nil {
		s.logger.Error("failed to set role", "error", err)
		writeInternalError(w, "failed to set role")
		return
	}
	if !changed {
		writeNotFound(w, userNotFoundMessage)
		return
	}

	user, err := s.users.GetByID(r.Context(), targetID)
	if err != nil {
		s.logger.Error("failed to look up user", "error", err)
		writeInternalError(w, "failed to set role")
		return
	}

	s.auditEvent(r, &audit.Entry{
		Action:       audit.ActionSetUserRole,
		TargetUserID: &user.ID,
		Meta:         auditMeta(map[string]any{"role": string(req.Role)}),
	})

	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(user)})
}

// handleAdminDeleteUser soft-deletes an account. The cascade marks the
// user's todos deleted and revokes every refresh token in one transaction.
func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")

	deleted, err := s.coordinator.SoftDeleteUser(r.Context(), targetID)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeNotFound(w, userNotFoundMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to delete user", "error", err)
		writeInternalError(w, "failed to delete user")
		return
	}

	s.auditEvent(r, &audit.Entry{
		Action:       audit.ActionDeleteUser,
		TargetUserID: &deleted.ID,
		Meta:         auditMeta(map[string]any{"email": deleted.Email}),
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAdminAuditLogs lists audit entries, newest first, with optional
// action and actor/target filters.
func (s *Server) handleAdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, offset, err := pageFromQuery(q)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	filter := audit.Filter{
		ActorUserID:  q.Get("actor_user_id"),
		TargetUserID: q.Get("target_user_id"),
		Limit:        limit,
		Offset:       offset,
	}
	if v := q.Get("action"); v != "" {
		action := audit.Action(v)
		if !audit.IsValidAction(action) {
			writeValidationError(w, "unknown action")
			return
		}
		filter.Action = action
	}

	entries, total, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit entries", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, auditListResponse{
		Logs:   entries,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}
