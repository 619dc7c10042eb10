package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/field-service-platform/internal/rbac"
	"github.com/iliyamo/field-service-platform/internal/repository"
	"github.com/iliyamo/field-service-platform/internal/tenant"
	"github.com/iliyamo/field-service-platform/internal/utils"
)

// ----- in-memory fakes -----

type fakePrincipals struct {
	byKey map[string]*repository.Principal // "role/schema/email"
}

func principalKey(role rbac.Role, tn tenant.Context, email string) string {
	return fmt.Sprintf("%s/%s/%s", role, tn.Schema, email)
}

func (f *fakePrincipals) FindByEmail(_ context.Context, role rbac.Role, tn tenant.Context, email string) (*repository.Principal, error) {
	if p, ok := f.byKey[principalKey(role, tn, email)]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakePrincipals) FindByID(_ context.Context, role rbac.Role, tn tenant.Context, id uint64) (*repository.Principal, error) {
	for k, p := range f.byKey {
		if p.ID == id && p.Role == role && (role == rbac.RolePlatformAdmin || strings.Contains(k, "/"+tn.Schema+"/")) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakePrincipals) UpdatePasswordHash(_ context.Context, role rbac.Role, tn tenant.Context, id uint64, hash string) error {
	for _, p := range f.byKey {
		if p.ID == id && p.Role == role {
			p.PasswordHash = hash
			return nil
		}
	}
	return repository.ErrNotFound
}

type fakeTokens struct {
	records map[string]*repository.RefreshTokenRecord
}

func (f *fakeTokens) Insert(_ context.Context, rec *repository.RefreshTokenRecord) error {
	cp := *rec
	f.records[rec.TokenID] = &cp
	return nil
}

func (f *fakeTokens) Find(_ context.Context, tokenID string) (*repository.RefreshTokenRecord, error) {
	if rec, ok := f.records[tokenID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeTokens) Rotate(_ context.Context, oldTokenID, newTokenID string) error {
	rec, ok := f.records[oldTokenID]
	if !ok || rec.Revoked || rec.ReplacedByTokenID != nil {
		return repository.ErrTokenRevoked
	}
	rec.Revoked = true
	rec.ReplacedByTokenID = &newTokenID
	return nil
}

func (f *fakeTokens) Revoke(_ context.Context, tokenID string) error {
	rec, ok := f.records[tokenID]
	if !ok || rec.Revoked {
		return repository.ErrTokenRevoked
	}
	rec.Revoked = true
	return nil
}

func (f *fakeTokens) RevokeAllFor(_ context.Context, userID uint64, role rbac.Role, _ *uint64) error {
	for _, rec := range f.records {
		if rec.UserID == userID && rec.Role == role {
			rec.Revoked = true
		}
	}
	return nil
}

func (f *fakeTokens) activeCount() int {
	n := 0
	for _, rec := range f.records {
		if !rec.Revoked && rec.ReplacedByTokenID == nil {
			n++
		}
	}
	return n
}

type fakeResets struct {
	records map[string]*repository.PasswordResetRequest
}

func (f *fakeResets) Insert(_ context.Context, rec *repository.PasswordResetRequest) error {
	cp := *rec
	f.records[rec.Token] = &cp
	return nil
}

func (f *fakeResets) Find(_ context.Context, token string) (*repository.PasswordResetRequest, error) {
	if rec, ok := f.records[token]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, repository.ErrResetTokenInvalid
}

func (f *fakeResets) MarkUsed(_ context.Context, token string) error {
	rec, ok := f.records[token]
	if !ok || rec.Used {
		return repository.ErrResetTokenInvalid
	}
	rec.Used = true
	return nil
}

type fakeBusinesses struct {
	byID map[uint64]*tenant.Business
}

func (f *fakeBusinesses) FindByID(_ context.Context, id uint64) (*tenant.Business, error) {
	if b, ok := f.byID[id]; ok {
		return b, nil
	}
	return nil, repository.ErrNotFound
}

// ----- fixtures -----

const testPassword = "correct horse"

func newTestService(t *testing.T) (*Service, *fakePrincipals, *fakeTokens, *fakeResets) {
	t.Helper()
	hash, err := utils.HashPassword(testPassword, 4)
	require.NoError(t, err)

	tid := uint64(1)
	did := uint64(11)
	principals := &fakePrincipals{byKey: map[string]*repository.Principal{
		principalKey(rbac.RoleDriver, acmeTenant(), "driver@acme.test"): {
			ID: 11, Email: "driver@acme.test", Name: "Dana", Role: rbac.RoleDriver,
			PasswordHash: hash, IsActive: true, BusinessID: &tid, DriverID: &did,
		},
		principalKey(rbac.RolePlatformAdmin, tenant.Context{}, "root@platform.test"): {
			ID: 1, Email: "root@platform.test", Name: "Root", Role: rbac.RolePlatformAdmin,
			PasswordHash: hash, IsActive: true,
		},
	}}
	tokens := &fakeTokens{records: map[string]*repository.RefreshTokenRecord{}}
	resets := &fakeResets{records: map[string]*repository.PasswordResetRequest{}}
	businesses := &fakeBusinesses{byID: map[uint64]*tenant.Business{
		1: {ID: 1, Name: "Acme Plumbing", Subdomain: "acme", Schema: "tenant_acme", Status: "active"},
	}}

	svc := &Service{
		Principals: principals,
		Tokens:     tokens,
		Resets:     resets,
		Businesses: businesses,
		Secret:     "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		ResetTTL:   time.Hour,
		BcryptCost: 4,
	}
	return svc, principals, tokens, resets
}

func acmeTenant() tenant.Context {
	return tenant.Context{Schema: "tenant_acme", BusinessID: 1, Subdomain: "acme", BusinessName: "Acme Plumbing"}
}

// ----- tests -----

func TestLoginSuccessIssuesPairAndPersistsRecord(t *testing.T) {
	svc, _, tokens, _ := newTestService(t)

	sess, err := svc.Login(context.Background(), rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{UserAgent: "ua", IP: "1.2.3.4"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.Equal(t, 1, tokens.activeCount())

	claims, err := utils.ParseAccessToken("test-secret", sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "driver", claims.Role)
	assert.Equal(t, "tenant_acme", claims.TenantSchema)
	require.NotNil(t, claims.DriverID)
	assert.Equal(t, uint64(11), *claims.DriverID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, unknownEmail := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "nobody@acme.test", testPassword, SessionMeta{})
	_, wrongPassword := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", "wrong", SessionMeta{})
	_, missingTenant := svc.Login(ctx, rbac.RoleDriver, tenant.Context{}, "driver@acme.test", testPassword, SessionMeta{})
	_, wrongRole := svc.Login(ctx, rbac.RoleBusinessOwner, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})

	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, missingTenant, ErrInvalidCredentials)
	assert.ErrorIs(t, wrongRole, ErrInvalidCredentials)
}

func TestAdminLoginNeedsNoTenant(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	sess, err := svc.Login(context.Background(), rbac.RolePlatformAdmin, tenant.Context{}, "root@platform.test", testPassword, SessionMeta{})
	require.NoError(t, err)

	claims, err := utils.ParseAccessToken("test-secret", sess.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, claims.TenantID)
	assert.Empty(t, claims.TenantSchema)
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	svc, _, tokens, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, sess.RefreshToken, acmeTenant(), SessionMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, sess.RefreshToken, next.RefreshToken)
	assert.Equal(t, 1, tokens.activeCount(), "rotation must leave exactly one active record")

	// Replaying the rotated token must fail and must not mint another pair.
	_, err = svc.Refresh(ctx, sess.RefreshToken, acmeTenant(), SessionMeta{})
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
	assert.Equal(t, 1, tokens.activeCount())

	// The successor still works.
	_, err = svc.Refresh(ctx, next.RefreshToken, acmeTenant(), SessionMeta{})
	assert.NoError(t, err)
}

func TestRefreshRejectsOtherTenantsToken(t *testing.T) {
	svc, principals, tokens, _ := newTestService(t)
	ctx := context.Background()

	// A different business whose schema happens to hold a driver with the
	// same row id as the acme driver.
	fooTenant := tenant.Context{Schema: "tenant_foo", BusinessID: 2, Subdomain: "foo", BusinessName: "Foo Couriers"}
	fooBiz := uint64(2)
	fooDriver := uint64(11)
	hash, err := utils.HashPassword("unrelated pass", 4)
	require.NoError(t, err)
	principals.byKey[principalKey(rbac.RoleDriver, fooTenant, "other@foo.test")] = &repository.Principal{
		ID: 11, Email: "other@foo.test", Name: "Omar", Role: rbac.RoleDriver,
		PasswordHash: hash, IsActive: true, BusinessID: &fooBiz, DriverID: &fooDriver,
	}

	sess, err := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	require.NoError(t, err)

	// Acme's refresh token replayed against foo's host must not mint a
	// session for foo's same-id driver, and must not be consumed either.
	_, err = svc.Refresh(ctx, sess.RefreshToken, fooTenant, SessionMeta{})
	assert.ErrorIs(t, err, utils.ErrInvalidToken)
	assert.Equal(t, 1, tokens.activeCount())

	// Nor on a host with no tenant at all.
	_, err = svc.Refresh(ctx, sess.RefreshToken, tenant.Context{}, SessionMeta{})
	assert.ErrorIs(t, err, utils.ErrInvalidToken)

	// The legitimate tenant can still redeem it.
	_, err = svc.Refresh(ctx, sess.RefreshToken, acmeTenant(), SessionMeta{})
	assert.NoError(t, err)
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Refresh(context.Background(), "garbage", acmeTenant(), SessionMeta{})
	assert.ErrorIs(t, err, utils.ErrInvalidToken)
}

func TestLogoutRevokesRecord(t *testing.T) {
	svc, _, tokens, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	require.NoError(t, err)
	require.Equal(t, 1, tokens.activeCount())

	svc.Logout(ctx, sess.RefreshToken)
	assert.Equal(t, 0, tokens.activeCount())

	_, err = svc.Refresh(ctx, sess.RefreshToken, acmeTenant(), SessionMeta{})
	assert.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestChangePasswordRevokesAllSessions(t *testing.T) {
	svc, _, tokens, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	require.NoError(t, err)
	_, err = svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	require.NoError(t, err)
	require.Equal(t, 2, tokens.activeCount())

	err = svc.ChangePassword(ctx, rbac.RoleDriver, acmeTenant(), 11, testPassword, "a new password")
	require.NoError(t, err)
	assert.Equal(t, 0, tokens.activeCount())

	// Old password is gone, new one works.
	_, err = svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", "a new password", SessionMeta{})
	assert.NoError(t, err)
}

func TestChangePasswordRejections(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, rbac.RoleDriver, acmeTenant(), 11, "wrong current", "a new password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, rbac.RoleDriver, acmeTenant(), 11, testPassword, "short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestForgotPasswordSkipsTenantRolesWithoutTenant(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	// Driver email probed without a tenant context: nothing found, no error.
	token, err := svc.ForgotPassword(ctx, tenant.Context{}, "driver@acme.test")
	require.NoError(t, err)
	assert.Empty(t, token)

	// Same email with the tenant resolved finds the driver.
	token, err = svc.ForgotPassword(ctx, acmeTenant(), "driver@acme.test")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	token, err := svc.ForgotPassword(context.Background(), acmeTenant(), "ghost@acme.test")
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestResetPasswordIsSingleUse(t *testing.T) {
	svc, _, tokens, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", testPassword, SessionMeta{})
	require.NoError(t, err)

	token, err := svc.ForgotPassword(ctx, acmeTenant(), "driver@acme.test")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	require.NoError(t, svc.ResetPassword(ctx, token, "a new password"))
	assert.Equal(t, 0, tokens.activeCount(), "reset revokes existing sessions")

	// Second redemption of the same token fails.
	err = svc.ResetPassword(ctx, token, "another password")
	assert.ErrorIs(t, err, repository.ErrResetTokenInvalid)

	_, err = svc.Login(ctx, rbac.RoleDriver, acmeTenant(), "driver@acme.test", "a new password", SessionMeta{})
	assert.NoError(t, err)
}

func TestResetPasswordRejectsExpired(t *testing.T) {
	svc, _, _, resets := newTestService(t)
	ctx := context.Background()

	token, err := svc.ForgotPassword(ctx, acmeTenant(), "driver@acme.test")
	require.NoError(t, err)
	resets.records[token].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	err = svc.ResetPassword(ctx, token, "a new password")
	assert.ErrorIs(t, err, repository.ErrResetTokenInvalid)
}

func TestResetPasswordRejectsUnknownToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.ResetPassword(context.Background(), "no-such-token", "a new password")
	assert.ErrorIs(t, err, repository.ErrResetTokenInvalid)
}
