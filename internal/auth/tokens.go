package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTokenType is the claim value distinguishing refresh tokens from
// access tokens signed with the same secret.
const refreshTokenType = "refresh"

// AccessClaims are the claims carried by an access token: the subject user
// ID plus a snapshot of email and role taken at mint time.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// RefreshClaims are the claims carried by a refresh token. The ID (jti) is
// unique per issuance so two tokens minted for the same user in the same
// instant are never equal. The token value is the session registry's
// primary key.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenType string `json:"typ"`
}

// Issuer mints and verifies signed access and refresh tokens. It is
// stateless: allow-list membership of refresh tokens is the session
// registry's concern, not the issuer's.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates a token issuer. Zero TTLs fall back to the design
// defaults (15 minutes access, 7 days refresh).
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTL returns the lifetime of issued access tokens.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// SignAccess creates a signed access token for a user.
func (i *Issuer) SignAccess(user *User) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
		Email: user.Email,
		Role:  user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// SignRefresh creates a signed refresh token for a user ID.
func (i *Issuer) SignRefresh(userID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
			ID:        uuid.NewString(),
		},
		TokenType: refreshTokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing refresh token: %w", err)
	}
	return signed, nil
}

// VerifyAccess validates an access token and returns the identity it
// asserts. Every failure (bad signature, expiry, malformed claims)
// collapses to ErrTokenInvalid; the caller alone decides the resulting
// status.
func (i *Issuer) VerifyAccess(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: missing role", ErrTokenInvalid)
	}

	return &Identity{
		ID:    claims.Subject,
		Email: claims.Email,
		Role:  claims.Role,
	}, nil
}

// VerifyRefresh validates a refresh token and returns the subject user ID.
// A token without the refresh type marker, such as an access token, is
// rejected even though the signature verifies.
func (i *Issuer) VerifyRefresh(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{}, i.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return "", ErrTokenInvalid
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if claims.TokenType != refreshTokenType {
		return "", fmt.Errorf("%w: not a refresh token", ErrTokenInvalid)
	}

	return claims.Subject, nil
}

func (i *Issuer) keyFunc(_ *jwt.Token) (any, error) {
	return i.secret, nil
}
