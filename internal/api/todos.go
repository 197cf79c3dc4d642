package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taskvault/taskvault/internal/todo"
)

// Pagination bounds shared by every list endpoint.
const (
	defaultPageLimit = 20
	maxPageLimit     = 50
)

// todoNotFoundMessage is returned for missing, deleted, and foreign todos
// alike so responses do not reveal which of the three it was.
const todoNotFoundMessage = "Todo not found"

// createTodoRequest is the request body for POST /todos.
type createTodoRequest struct {
	Title string `json:"title"`
}

// updateTodoRequest is the request body for PATCH /todos/{id}.
// Omitted fields are left unchanged.
type updateTodoRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
}

// todoListResponse is the envelope for todo listings.
type todoListResponse struct {
	Todos  []todo.Todo `json:"todos"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// handleCreateTodo creates a todo owned by the caller.
func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req createTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		writeValidationError(w, "title is required")
		return
	}

	created, err := s.todos.Create(r.Context(), identity.ID, title)
	if err != nil {
		s.logger.Error("failed to create todo", "error", err)
		writeInternalError(w, "failed to create todo")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// handleListTodos lists the caller's live todos, oldest first.
func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	filter, err := todoFilterFromQuery(r.URL.Query())
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	todos, total, err := s.todos.ListByOwner(r.Context(), identity.ID, filter)
	if err != nil {
		s.logger.Error("failed to list todos", "error", err)
		writeInternalError(w, "failed to list todos")
		return
	}

	writeJSON(w, http.StatusOK, todoListResponse{
		Todos:  todos,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// handleGetTodo returns one of the caller's live todos.
func (s *Server) handleGetTodo(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	found, err := s.todos.GetByID(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if errors.Is(err, todo.ErrNotFound) {
		writeNotFound(w, todoNotFoundMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to get todo", "error", err)
		writeInternalError(w, "failed to get todo")
		return
	}

	writeJSON(w, http.StatusOK, found)
}

// handleUpdateTodo patches one of the caller's live todos.
func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req updateTodoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	patch := todo.Patch{Completed: req.Completed}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeValidationError(w, "title must not be empty")
			return
		}
		patch.Title = &title
	}

	updated, err := s.todos.Update(r.Context(), identity.ID, chi.URLParam(r, "id"), patch)
	if errors.Is(err, todo.ErrNotFound) {
		writeNotFound(w, todoNotFoundMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to update todo", "error", err)
		writeInternalError(w, "failed to update todo")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// handleDeleteTodo soft-deletes one of the caller's live todos.
func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	err := s.todos.SoftDelete(r.Context(), identity.ID, chi.URLParam(r, "id"))
	if errors.Is(err, todo.ErrNotFound) {
		writeNotFound(w, todoNotFoundMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to delete todo", "error", err)
		writeInternalError(w, "failed to delete todo")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// todoFilterFromQuery parses completed/limit/offset query parameters.
func todoFilterFromQuery(q url.Values) (todo.ListFilter, error) {
	filter := todo.ListFilter{}

	if v := q.Get("completed"); v != "" {
		completed, err := strconv.ParseBool(v)
		if err != nil {
			return filter, errors.New("completed must be true or false")
		}
		filter.Completed = &completed
	}

	limit, offset, err := pageFromQuery(q)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

// pageFromQuery parses limit and offset query parameters, applying the
// shared defaults and bounds.
func pageFromQuery(q url.Values) (limit, offset int, err error) {
	limit = defaultPageLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, errors.New("limit must be an integer between 1 and 50")
		}
	}

	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}

	return limit, offset, nil
}
