package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestTokenRepository_StoreAndExists(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	user := seedTestUser(t, db, "jack@example.com", RoleUser)

	if err := repo.Store(context.Background(), "token-one", user.ID); err != nil {
		t.Fatalf("storing token: %v", err)
	}

	ok, err := repo.Exists(context.Background(), "token-one")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if !ok {
		t.Error("stored token reported absent")
	}

	ok, err = repo.Exists(context.Background(), "token-never-issued")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if ok {
		t.Error("unknown token reported present")
	}
}

func TestTokenRepository_Delete(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	user := seedTestUser(t, db, "jack@example.com", RoleUser)

	if err := repo.Store(context.Background(), "token-one", user.ID); err != nil {
		t.Fatalf("storing token: %v", err)
	}
	if err := repo.Delete(context.Background(), "token-one"); err != nil {
		t.Fatalf("deleting token: %v", err)
	}

	ok, err := repo.Exists(context.Background(), "token-one")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if ok {
		t.Error("deleted token reported present")
	}

	// Deleting again is a no-op, not an error.
	if err := repo.Delete(context.Background(), "token-one"); err != nil {
		t.Errorf("second delete returned %v, want nil", err)
	}
}

func TestTokenRepository_DeleteAllForUser(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	jack := seedTestUser(t, db, "jack@example.com", RoleUser)
	emma := seedTestUser(t, db, "emma@example.com", RoleUser)

	for _, token := range []string{"jack-1", "jack-2", "jack-3"} {
		if err := repo.Store(context.Background(), token, jack.ID); err != nil {
			t.Fatalf("storing token: %v", err)
		}
	}
	if err := repo.Store(context.Background(), "emma-1", emma.ID); err != nil {
		t.Fatalf("storing token: %v", err)
	}

	if err := repo.DeleteAllForUser(context.Background(), jack.ID); err != nil {
		t.Fatalf("deleting tokens: %v", err)
	}

	for _, token := range []string{"jack-1", "jack-2", "jack-3"} {
		ok, err := repo.Exists(context.Background(), token)
		if err != nil {
			t.Fatalf("checking token: %v", err)
		}
		if ok {
			t.Errorf("token %s survived DeleteAllForUser", token)
		}
	}

	// The other user's session is untouched.
	ok, err := repo.Exists(context.Background(), "emma-1")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if !ok {
		t.Error("unrelated user's token was deleted")
	}
}

func TestTokenRepository_Rotate(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	user := seedTestUser(t, db, "jack@example.com", RoleUser)

	if err := repo.Store(context.Background(), "token-old", user.ID); err != nil {
		t.Fatalf("storing token: %v", err)
	}

	if err := repo.Rotate(context.Background(), "token-old", "token-new", user.ID); err != nil {
		t.Fatalf("rotating token: %v", err)
	}

	oldOK, err := repo.Exists(context.Background(), "token-old")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if oldOK {
		t.Error("consumed token still in allow-list after rotation")
	}

	newOK, err := repo.Exists(context.Background(), "token-new")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if !newOK {
		t.Error("replacement token absent after rotation")
	}
}

func TestTokenRepository_Rotate_ConsumedTokenFails(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	user := seedTestUser(t, db, "jack@example.com", RoleUser)

	if err := repo.Store(context.Background(), "token-old", user.ID); err != nil {
		t.Fatalf("storing token: %v", err)
	}
	if err := repo.Rotate(context.Background(), "token-old", "token-new", user.ID); err != nil {
		t.Fatalf("rotating token: %v", err)
	}

	// Replaying the consumed token must fail and leave the allow-list alone.
	err := repo.Rotate(context.Background(), "token-old", "token-replay", user.ID)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("replay rotation = %v, want ErrTokenInvalid", err)
	}

	replayOK, err := repo.Exists(context.Background(), "token-replay")
	if err != nil {
		t.Fatalf("checking token: %v", err)
	}
	if replayOK {
		t.Error("failed rotation inserted its replacement token")
	}
}

func TestTokenRepository_Rotate_ConcurrentSingleWinner(t *testing.T) {
	db := testDB(t)
	repo := NewTokenRepository(db)
	user := seedTestUser(t, db, "jack@example.com", RoleUser)

	if err := repo.Store(context.Background(), "token-contested", user.ID); err != nil {
		t.Fatalf("storing token: %v", err)
	}

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			newToken := "token-winner-" + string(rune('a'+n))
			results[n] = repo.Rotate(context.Background(), "token-contested", newToken, user.ID)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
		} else if !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("unexpected rotation error: %v", err)
		}
	}
	if winners != 1 {
		t.Errorf("%d rotations succeeded, want exactly 1", winners)
	}

	var count int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ?", user.ID,
	).Scan(&count); err != nil {
		t.Fatalf("counting tokens: %v", err)
	}
	if count != 1 {
		t.Errorf("%d tokens in allow-list, want exactly 1", count)
	}
}
