package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/taskvault/taskvault/internal/audit"
	"github.com/taskvault/taskvault/internal/auth"
	"github.com/taskvault/taskvault/internal/infrastructure/config"
	"github.com/taskvault/taskvault/internal/infrastructure/logging"
	"github.com/taskvault/taskvault/internal/todo"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// testServer creates a Server backed by a temporary SQLite database with
// the full schema applied.
func testServer(t *testing.T) (*Server, http.Handler, *sql.DB) {
	t.Helper()

	db := setupTestDB(t)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	todoRepo := todo.NewRepository(db)
	issuer := auth.NewIssuer(testJWTSecret, 15*time.Minute, 7*24*time.Hour)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:      log,
		Issuer:      issuer,
		Users:       auth.NewUserRepository(db),
		Tokens:      auth.NewTokenRepository(db),
		Todos:       todoRepo,
		Audit:       audit.NewRecorder(db),
		Coordinator: auth.NewCoordinator(db, todoRepo),
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return srv, srv.buildRouter(), db
}

// setupTestDB creates a temporary SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL CHECK (role IN ('user', 'admin')) DEFAULT 'user',
			created_at    TEXT NOT NULL,
			deleted_at    TEXT
		) STRICT;

		CREATE UNIQUE INDEX idx_users_email_live ON users(email) WHERE deleted_at IS NULL;

		CREATE TABLE todos (
			id            TEXT PRIMARY KEY,
			owner_user_id TEXT NOT NULL,
			title         TEXT NOT NULL,
			completed     INTEGER NOT NULL CHECK (completed IN (0, 1)) DEFAULT 0,
			created_at    TEXT NOT NULL,
			deleted_at    TEXT,
			FOREIGN KEY (owner_user_id) REFERENCES users(id)
		) STRICT;

		CREATE TABLE refresh_tokens (
			token      TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		) STRICT;

		CREATE TABLE audit_logs (
			id             TEXT PRIMARY KEY,
			created_at     TEXT NOT NULL,
			actor_user_id  TEXT,
			actor_email    TEXT,
			actor_role     TEXT NOT NULL CHECK (actor_role IN ('user', 'admin')),
			action         TEXT NOT NULL,
			target_user_id TEXT,
			target_todo_id TEXT,
			ip             TEXT,
			user_agent     TEXT,
			meta_json      TEXT NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	return db
}

// doJSON performs a request against the router with an optional bearer
// token and JSON body.
func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshalling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// decodeBody unmarshals a recorded JSON response into v.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

// registerUser registers an account and returns its public view.
func registerUser(t *testing.T, router http.Handler, email, password string) userResponse {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", w.Code, w.Body.String())
	}

	var env userEnvelope
	decodeBody(t, w, &env)
	return env.User
}

// login authenticates and returns the issued token pair.
func login(t *testing.T, router http.Handler, email, password string) tokenPairResponse {
	t.Helper()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", w.Code, w.Body.String())
	}

	var pair tokenPairResponse
	decodeBody(t, w, &pair)
	return pair
}

// promoteToAdmin flips a user's role directly in the database. The change
// is visible in tokens issued after the next login.
func promoteToAdmin(t *testing.T, db *sql.DB, userID string) {
	t.Helper()
	if _, err := db.Exec("UPDATE users SET role = 'admin' WHERE id = ?", userID); err != nil {
		t.Fatalf("promoting user: %v", err)
	}
}

// flushAudit synchronously drains the pending audit queue so tests can
// assert on recorded entries.
func flushAudit(t *testing.T, srv *Server) {
	t.Helper()
	for {
		select {
		case entry := <-srv.auditCh:
			srv.recordAuditEntry(entry)
		default:
			return
		}
	}
}

// auditActions returns the recorded actions, oldest first.
func auditActions(t *testing.T, db *sql.DB) []string {
	t.Helper()

	rows, err := db.Query("SELECT action FROM audit_logs ORDER BY created_at, id")
	if err != nil {
		t.Fatalf("querying audit actions: %v", err)
	}
	defer rows.Close()

	var actions []string
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			t.Fatalf("scanning action: %v", err)
		}
		actions = append(actions, action)
	}
	return actions
}
