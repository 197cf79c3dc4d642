package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskvault/taskvault/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required; refresh and logout identify
		// the caller by the refresh token in the body, so an expired
		// access token never blocks revocation)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Post("/auth/logout-all", s.handleLogoutAll)
			r.Get("/auth/me", s.handleMe)

			// Todo endpoints
			r.Route("/todos", func(r chi.Router) {
				r.Get("/", s.handleListTodos)
				r.Post("/", s.handleCreateTodo)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetTodo)
					r.Patch("/", s.handleUpdateTodo)
					r.Delete("/", s.handleDeleteTodo)
				})
			})

			// Admin endpoints (permission check runs after auth, so missing
			// credentials are 401 and an unprivileged token is 403)
			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermUserManage))

					r.Get("/users", s.handleAdminListUsers)
					r.Patch("/users/{id}/role", s.handleAdminSetRole)
					r.Delete("/users/{id}", s.handleAdminDeleteUser)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermUserInspect))
					r.Get("/users/{id}/todos", s.handleAdminUserTodos)
				})

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermAuditRead))
					r.Get("/audit-logs", s.handleAdminAuditLogs)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
