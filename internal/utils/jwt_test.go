package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	tid := uint64(42)
	did := uint64(7)
	in := AccessClaims{
		UserID:       99,
		Email:        "driver@acme.test",
		Role:         "driver",
		TenantID:     &tid,
		TenantSchema: "tenant_acme",
		BusinessName: "Acme Plumbing",
		Subdomain:    "acme",
		DriverID:     &did,
	}
	raw, exp, err := NewAccessToken(testSecret, in, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	out, err := ParseAccessToken(testSecret, raw)
	require.NoError(t, err)
	assert.Equal(t, in.UserID, out.UserID)
	assert.Equal(t, in.Email, out.Email)
	assert.Equal(t, in.Role, out.Role)
	require.NotNil(t, out.TenantID)
	assert.Equal(t, tid, *out.TenantID)
	assert.Equal(t, "tenant_acme", out.TenantSchema)
	require.NotNil(t, out.DriverID)
	assert.Equal(t, did, *out.DriverID)
}

func TestParseRejectsWrongSecret(t *testing.T) {
	raw, _, err := NewAccessToken(testSecret, AccessClaims{UserID: 1, Role: "driver"}, time.Hour)
	require.NoError(t, err)

	_, err = ParseAccessToken("other-secret", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsExpired(t *testing.T) {
	raw, _, err := NewAccessToken(testSecret, AccessClaims{UserID: 1, Role: "driver"}, -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(testSecret, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := ParseAccessToken(testSecret, "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseRefreshToken(testSecret, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenCarriesTokenID(t *testing.T) {
	id := NewTokenID("driver", 5)
	raw, _, err := NewRefreshToken(testSecret, RefreshClaims{TokenID: id, UserID: 5, Role: "driver"}, time.Hour)
	require.NoError(t, err)

	out, err := ParseRefreshToken(testSecret, raw)
	require.NoError(t, err)
	assert.Equal(t, id, out.TokenID)
	assert.Equal(t, uint64(5), out.UserID)
}

func TestRefreshTokenWithoutIDRejected(t *testing.T) {
	raw, _, err := NewRefreshToken(testSecret, RefreshClaims{UserID: 5, Role: "driver"}, time.Hour)
	require.NoError(t, err)

	_, err = ParseRefreshToken(testSecret, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIDUnique(t *testing.T) {
	a := NewTokenID("driver", 5)
	b := NewTokenID("driver", 5)
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "driver.5."))
}
