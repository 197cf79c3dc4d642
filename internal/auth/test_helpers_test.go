package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
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

	// Single-writer pool, same as the production configuration.
	db.SetMaxOpenConns(1)

	schemaSQL := `
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

		CREATE INDEX idx_refresh_tokens_user ON refresh_tokens(user_id);
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying schema: %v", err)
	}

	return db
}

// seedTestUser inserts a test user and returns it.
func seedTestUser(t *testing.T, db *sql.DB, email string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	repo := NewUserRepository(db)
	user := &User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// seedTestTodo inserts a todo row directly and returns its id.
func seedTestTodo(t *testing.T, db *sql.DB, ownerID, title string) string {
	t.Helper()

	id := "td-test-" + title
	_, err := db.Exec(
		`INSERT INTO todos (id, owner_user_id, title, completed, created_at)
		 VALUES (?, ?, ?, 0, '2026-01-01T00:00:00Z')`,
		id, ownerID, title,
	)
	if err != nil {
		t.Fatalf("seeding test todo: %v", err)
	}
	return id
}
