package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func testUser() *User {
	return &User{
		ID:    "usr-test-1",
		Email: "jack@example.com",
		Role:  RoleUser,
	}
}

func TestIssuer_AccessTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)

	token, err := issuer.SignAccess(testUser())
	if err != nil {
		t.Fatalf("signing access token: %v", err)
	}

	identity, err := issuer.VerifyAccess(token)
	if err != nil {
		t.Fatalf("verifying access token: %v", err)
	}
	if identity.ID != "usr-test-1" {
		t.Errorf("identity ID = %q, want usr-test-1", identity.ID)
	}
	if identity.Email != "jack@example.com" {
		t.Errorf("identity email = %q, want jack@example.com", identity.Email)
	}
	if identity.Role != RoleUser {
		t.Errorf("identity role = %q, want user", identity.Role)
	}
}

func TestIssuer_RefreshTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)

	token, err := issuer.SignRefresh("usr-test-1")
	if err != nil {
		t.Fatalf("signing refresh token: %v", err)
	}

	userID, err := issuer.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("verifying refresh token: %v", err)
	}
	if userID != "usr-test-1" {
		t.Errorf("userID = %q, want usr-test-1", userID)
	}
}

func TestIssuer_RefreshTokensAreUnique(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)

	first, err := issuer.SignRefresh("usr-test-1")
	if err != nil {
		t.Fatalf("signing refresh token: %v", err)
	}
	second, err := issuer.SignRefresh("usr-test-1")
	if err != nil {
		t.Fatalf("signing refresh token: %v", err)
	}

	// Each refresh token carries a fresh jti, so two logins by the same
	// user never collide in the allow-list.
	if first == second {
		t.Error("two refresh tokens for the same user are identical")
	}
}

func TestIssuer_TypeMarkerCrossRejection(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)

	access, err := issuer.SignAccess(testUser())
	if err != nil {
		t.Fatalf("signing access token: %v", err)
	}
	refresh, err := issuer.SignRefresh("usr-test-1")
	if err != nil {
		t.Fatalf("signing refresh token: %v", err)
	}

	if _, err := issuer.VerifyRefresh(access); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyRefresh(access token) = %v, want ErrTokenInvalid", err)
	}
	if _, err := issuer.VerifyAccess(refresh); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess(refresh token) = %v, want ErrTokenInvalid", err)
	}
}

func TestIssuer_WrongSecret(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)
	other := NewIssuer("another-secret-key-also-32-chars!!", 0, 0)

	token, err := issuer.SignAccess(testUser())
	if err != nil {
		t.Fatalf("signing access token: %v", err)
	}

	if _, err := other.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess with wrong secret = %v, want ErrTokenInvalid", err)
	}
}

func TestIssuer_ExpiredAccessToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Millisecond, time.Hour)

	token, err := issuer.SignAccess(testUser())
	if err != nil {
		t.Fatalf("signing access token: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess(expired) = %v, want ErrTokenInvalid", err)
	}
}

func TestIssuer_TamperedToken(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)

	token, err := issuer.SignAccess(testUser())
	if err != nil {
		t.Fatalf("signing access token: %v", err)
	}

	// Flip a character in the payload segment
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	if _, err := issuer.VerifyAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("VerifyAccess(tampered) = %v, want ErrTokenInvalid", err)
	}
}

func TestIssuer_GarbageToken(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("VerifyAccess(%q) = %v, want ErrTokenInvalid", token, err)
		}
	}
}
