package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/taskvault/taskvault/internal/audit"
	"github.com/taskvault/taskvault/internal/auth"
)

// loginErrorMessage is deliberately identical for unknown emails and wrong
// passwords so responses do not leak which accounts exist.
const loginErrorMessage = "Invalid credentials"

// refreshErrorMessage covers every refresh failure mode with one message.
const refreshErrorMessage = "Invalid refresh token"

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// credentialsRequest is the request body for POST /auth/login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenPairResponse is the response body for login and refresh. Login also
// includes the authenticated user; refresh omits it.
type tokenPairResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	User         *userResponse `json:"user,omitempty"`
}

// refreshRequest is the request body for POST /auth/refresh and logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// userEnvelope wraps a single user in the response body.
type userEnvelope struct {
	User userResponse `json:"user"`
}

// userResponse is the public view of a user.
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// handleRegister creates a new account with the default user role.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	email := auth.NormalizeEmail(req.Email)
	if !auth.IsValidEmail(email) {
		writeValidationError(w, "invalid email address")
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		writeValidationError(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("failed to hash password", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	user := &auth.User{
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleUser,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailExists) {
			writeConflict(w, "Email already registered")
			return
		}
		s.logger.Error("failed to create user", "error", err)
		writeInternalError(w, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, userEnvelope{User: toUserResponse(user)})
}

// handleLogin verifies credentials and issues a fresh token pair. The
// refresh token is registered in the allow-list before the response is
// written.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	email := auth.NormalizeEmail(req.Email)

	user, err := s.users.GetByEmail(r.Context(), email)
	if errors.Is(err, auth.ErrUserNotFound) {
		s.auditEvent(r, &audit.Entry{
			Action:     audit.ActionLoginFail,
			ActorEmail: &email,
			Meta:       auditMeta(map[string]any{"reason": "email_not_found"}),
		})
		writeUnauthorized(w, loginErrorMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to look up user", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		s.auditEvent(r, &audit.Entry{
			Action:      audit.ActionLoginFail,
			ActorUserID: &user.ID,
			ActorEmail:  &user.Email,
			ActorRole:   user.Role,
			Meta:        auditMeta(map[string]any{"reason": "bad_password"}),
		})
		writeUnauthorized(w, loginErrorMessage)
		return
	}

	pair, err := s.issueTokenPair(r, user)
	if err != nil {
		s.logger.Error("failed to issue tokens", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.auditEvent(r, &audit.Entry{
		Action:      audit.ActionLoginSuccess,
		ActorUserID: &user.ID,
		ActorEmail:  &user.Email,
		ActorRole:   user.Role,
	})

	view := toUserResponse(user)
	pair.User = &view
	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a refresh token: the presented token is verified,
// checked against the allow-list, consumed, and replaced with a new one in
// a single transaction. A token that fails any step gets the same 401.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	// A missing token gets the same generic 401 as every other refresh
	// failure; the response never narrows down the cause.
	if req.RefreshToken == "" {
		writeUnauthorized(w, refreshErrorMessage)
		return
	}

	userID, err := s.issuer.VerifyRefresh(req.RefreshToken)
	if err != nil {
		writeUnauthorized(w, refreshErrorMessage)
		return
	}

	// Deleted users fail here: live lookup only.
	user, err := s.users.GetByID(r.Context(), userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeUnauthorized(w, refreshErrorMessage)
		return
	}
	if err != nil {
		s.logger.Error("failed to look up user", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	newRefresh, err := s.issuer.SignRefresh(user.ID)
	if err != nil {
		s.logger.Error("failed to sign refresh token", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	// Rotate consumes the old token and registers the new one atomically.
	// A token absent from the allow-list (already rotated, logged out, or
	// never issued) fails with no change to the allow-list.
	if err := s.tokens.Rotate(r.Context(), req.RefreshToken, newRefresh, user.ID); err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			writeUnauthorized(w, refreshErrorMessage)
			return
		}
		s.logger.Error("failed to rotate refresh token", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	access, err := s.issuer.SignAccess(user)
	if err != nil {
		s.logger.Error("failed to sign access token", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	s.auditEvent(r, &audit.Entry{
		Action:      audit.ActionRefresh,
		ActorUserID: &user.ID,
		ActorEmail:  &user.Email,
		ActorRole:   user.Role,
	})

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.issuer.AccessTTL().Seconds()),
	})
}

// handleLogout removes the presented refresh token from the allow-list.
// The refresh token in the body is the only credential, so a client whose
// access token has expired can still end its session. The response is the
// same whether or not the token existed, so logout is idempotent and leaks
// nothing about the allow-list.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeUnauthorized(w, refreshErrorMessage)
		return
	}

	if err := s.tokens.Delete(r.Context(), req.RefreshToken); err != nil {
		s.logger.Error("failed to delete refresh token", "error", err)
	}

	s.auditEvent(r, &audit.Entry{Action: audit.ActionLogout})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleLogoutAll revokes every refresh token belonging to the caller,
// ending all of their sessions at once.
func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	if err := s.tokens.DeleteAllForUser(r.Context(), identity.ID); err != nil {
		s.logger.Error("failed to delete refresh tokens", "error", err)
		writeInternalError(w, "logout failed")
		return
	}

	s.auditEvent(r, &audit.Entry{Action: audit.ActionLogoutAll})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMe returns the caller's current account record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := identityFromContext(r.Context())
	if identity == nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	user, err := s.users.GetByID(r.Context(), identity.ID)
	if errors.Is(err, auth.ErrUserNotFound) {
		writeUnauthorized(w, "invalid or expired token")
		return
	}
	if err != nil {
		s.logger.Error("failed to look up user", "error", err)
		writeInternalError(w, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, userEnvelope{User: toUserResponse(user)})
}

// issueTokenPair signs a fresh access and refresh token pair and registers
// the refresh token in the allow-list.
func (s *Server) issueTokenPair(r *http.Request, user *auth.User) (tokenPairResponse, error) {
	access, err := s.issuer.SignAccess(user)
	if err != nil {
		return tokenPairResponse{}, err
	}

	refresh, err := s.issuer.SignRefresh(user.ID)
	if err != nil {
		return tokenPairResponse{}, err
	}

	if err := s.tokens.Store(r.Context(), refresh, user.ID); err != nil {
		return tokenPairResponse{}, err
	}

	return tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.issuer.AccessTTL().Seconds()),
	}, nil
}
