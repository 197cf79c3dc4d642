package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("verifying password: %v", err)
	}
	if !ok {
		t.Error("correct password did not verify")
	}
}

func TestHashPassword_WrongPassword(t *testing.T) {
	hash, err := HashPassword("the-real-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	ok, err := VerifyPassword("not-the-password", hash)
	if err != nil {
		t.Fatalf("verifying password: %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	first, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	second, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	if first == second {
		t.Error("two hashes of the same password are identical, salts are not random")
	}
}

func TestHashPassword_PHCFormat(t *testing.T) {
	hash, err := HashPassword("whatever")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash %q does not use the argon2id PHC prefix", hash)
	}
	if parts := strings.Split(hash, "$"); len(parts) != 6 {
		t.Errorf("hash has %d segments, want 6", len(parts))
	}
}

func TestVerifyPassword_InvalidFormat(t *testing.T) {
	cases := []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=65536,t=3,p=1$onlysalt",
		"$bcrypt$whatever$salt$hash",
	}
	for _, encoded := range cases {
		if _, err := VerifyPassword("password", encoded); err == nil {
			t.Errorf("VerifyPassword accepted malformed hash %q", encoded)
		}
	}
}
