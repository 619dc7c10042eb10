package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
	"github.com/google/uuid"       // uuid suffix keeps token ids unique under clock collisions
)

// ErrInvalidToken is the single sentinel returned for any verification
// failure (bad signature, malformed, expired, wrong claim shape).  Call
// sites never need to distinguish the cause and answer 401 uniformly.
var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the claim set carried by a stateless access token.  The
// optional fields are only populated for tenant-scoped principals: a
// platform admin has no tenant id, schema or subdomain, and only drivers
// carry a driver id.
type AccessClaims struct {
	UserID       uint64  `json:"uid"`
	Email        string  `json:"email"`
	Role         string  `json:"role"`
	TenantID     *uint64 `json:"tenant_id,omitempty"`
	TenantSchema string  `json:"tenant_schema,omitempty"`
	BusinessName string  `json:"business_name,omitempty"`
	Subdomain    string  `json:"subdomain,omitempty"`
	DriverID     *uint64 `json:"driver_id,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by a refresh token.  Unlike access
// claims it carries the id of the persisted session record; the record, not
// the signature, is authoritative for whether the token is still usable.
type RefreshClaims struct {
	TokenID  string  `json:"token_id"`
	UserID   uint64  `json:"uid"`
	Role     string  `json:"role"`
	TenantID *uint64 `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// NewTokenID builds a refresh token record id.  Role, principal id and issue
// time are embedded so a record can be traced in the audit trail without a
// join; the uuid suffix guarantees uniqueness.
func NewTokenID(role string, userID uint64) string {
	return fmt.Sprintf("%s.%d.%d.%s", role, userID, time.Now().UTC().Unix(), uuid.NewString())
}

// NewAccessToken signs an HS256 access token for the given claims.  The
// expiry and issued-at registered claims are stamped here; callers pass the
// TTL from configuration (default 24h).
func NewAccessToken(secret string, claims AccessClaims, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// NewRefreshToken signs an HS256 refresh token.  Same mechanism as access
// tokens, longer default lifetime (7 days); claims must carry the TokenID of
// the persisted record.
func NewRefreshToken(secret string, claims RefreshClaims, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(exp)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccessToken verifies signature and expiry and returns the claims.
// Any failure collapses to ErrInvalidToken.
func ParseAccessToken(secret, raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := parseInto(secret, raw, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// ParseRefreshToken verifies signature and expiry and returns the claims.
// Any failure collapses to ErrInvalidToken.
func ParseRefreshToken(secret, raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := parseInto(secret, raw, &claims); err != nil {
		return nil, err
	}
	if claims.TokenID == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func parseInto(secret, raw string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC; an attacker must not
		// be able to downgrade the algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return ErrInvalidToken
	}
	return nil
}
