// Package auth implements the session lifecycle: login for the four
// principal kinds, rotate-on-refresh, logout, and the password change and
// reset flows.  It talks to storage through narrow interfaces so the flows
// are unit-testable without a database.
package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/iliyamo/field-service-platform/internal/rbac"
	"github.com/iliyamo/field-service-platform/internal/repository"
	"github.com/iliyamo/field-service-platform/internal/tenant"
	"github.com/iliyamo/field-service-platform/internal/utils"
)

// ErrInvalidCredentials is the single rejection for every credential-check
// failure: unknown email, wrong password, inactive account, missing tenant
// scope.  Collapsing them prevents account and tenant enumeration.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrRefreshTokenRevoked signals a refresh attempt with a token whose
// persisted record was already rotated or revoked; replay of a rotated
// token always lands here.
var ErrRefreshTokenRevoked = errors.New("refresh token revoked")

// ErrWeakPassword rejects new passwords that do not meet the minimum.
var ErrWeakPassword = errors.New("password must be at least 8 characters")

// PrincipalStore is the credential store adapter (spec'd storage surface).
type PrincipalStore interface {
	FindByEmail(ctx context.Context, role rbac.Role, tn tenant.Context, email string) (*repository.Principal, error)
	FindByID(ctx context.Context, role rbac.Role, tn tenant.Context, id uint64) (*repository.Principal, error)
	UpdatePasswordHash(ctx context.Context, role rbac.Role, tn tenant.Context, id uint64, hash string) error
}

// TokenStore persists refresh token records.
type TokenStore interface {
	Insert(ctx context.Context, rec *repository.RefreshTokenRecord) error
	Find(ctx context.Context, tokenID string) (*repository.RefreshTokenRecord, error)
	Rotate(ctx context.Context, oldTokenID, newTokenID string) error
	Revoke(ctx context.Context, tokenID string) error
	RevokeAllFor(ctx context.Context, userID uint64, role rbac.Role, tenantID *uint64) error
}

// ResetStore persists single-use password reset requests.
type ResetStore interface {
	Insert(ctx context.Context, rec *repository.PasswordResetRequest) error
	Find(ctx context.Context, token string) (*repository.PasswordResetRequest, error)
	MarkUsed(ctx context.Context, token string) error
}

// BusinessLookup maps a business id back to its schema, needed when a reset
// token for a tenant-scoped principal is redeemed outside a tenant host.
type BusinessLookup interface {
	FindByID(ctx context.Context, id uint64) (*tenant.Business, error)
}

// Service orchestrates the auth flows.
type Service struct {
	Principals PrincipalStore
	Tokens     TokenStore
	Resets     ResetStore
	Businesses BusinessLookup

	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	BcryptCost int
}

// SessionMeta captures request attributes stored with the refresh record.
type SessionMeta struct {
	UserAgent string
	IP        string
}

// Session is the result of a successful login or refresh.
type Session struct {
	Principal      *repository.Principal
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// Login authenticates a principal of the given role.  Tenant-scoped roles
// (owner, driver, employee) require a resolved tenant context; the platform
// admin ignores it.  Every failure collapses to ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, role rbac.Role, tn tenant.Context, email, password string, meta SessionMeta) (*Session, error) {
	if role != rbac.RolePlatformAdmin && !tn.HasTenant() {
		return nil, ErrInvalidCredentials
	}
	p, err := s.Principals.FindByEmail(ctx, role, tn, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrInvalidCredentials
	}
	if !utils.VerifyPassword(p.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.issueSession(ctx, p, tn, meta)
}

// Refresh exchanges a still-valid refresh token for a new token pair.  The
// persisted record is authoritative: a cryptographically valid token whose
// record was rotated or revoked is rejected with ErrRefreshTokenRevoked.
func (s *Service) Refresh(ctx context.Context, rawRefresh string, tn tenant.Context, meta SessionMeta) (*Session, error) {
	claims, err := utils.ParseRefreshToken(s.Secret, rawRefresh)
	if err != nil {
		return nil, utils.ErrInvalidToken
	}
	rec, err := s.Tokens.Find(ctx, claims.TokenID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, utils.ErrInvalidToken
		}
		return nil, err
	}
	if rec.Revoked || rec.ReplacedByTokenID != nil {
		return nil, ErrRefreshTokenRevoked
	}
	if !rec.Active(time.Now().UTC()) {
		return nil, utils.ErrInvalidToken
	}

	// The record binds the session to the tenant it was minted for.  A
	// tenant-scoped token presented on another tenant's host must not
	// resolve a principal through that tenant's schema.
	if rec.TenantID != nil && (!tn.HasTenant() || tn.BusinessID != *rec.TenantID) {
		return nil, utils.ErrInvalidToken
	}

	p, err := s.Principals.FindByID(ctx, rec.Role, tn, rec.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, utils.ErrInvalidToken
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, utils.ErrInvalidToken
	}

	sess, rec, err := s.mintPair(p, tn, meta)
	if err != nil {
		return nil, err
	}

	// Serialize concurrent refreshes per token id: the conditional update
	// has exactly one winner, and the loser sees ErrTokenRevoked before its
	// successor record is ever persisted.  Other storage errors are
	// best-effort; the new pair is already issued.
	if err := s.Tokens.Rotate(ctx, claims.TokenID, rec.TokenID); err != nil {
		if errors.Is(err, repository.ErrTokenRevoked) {
			return nil, ErrRefreshTokenRevoked
		}
		log.Printf("auth: rotate %s failed: %v", claims.TokenID, err)
	}
	if err := s.Tokens.Insert(ctx, rec); err != nil {
		log.Printf("auth: persist refresh record %s failed: %v", rec.TokenID, err)
	}
	return sess, nil
}

// Logout revokes the presented refresh token's record.  Best-effort: the
// client-side cookie clearing already ends the session from the browser's
// perspective, so logout reports success even when the write fails.
func (s *Service) Logout(ctx context.Context, rawRefresh string) {
	if rawRefresh == "" {
		return
	}
	claims, err := utils.ParseRefreshToken(s.Secret, rawRefresh)
	if err != nil {
		return
	}
	if err := s.Tokens.Revoke(ctx, claims.TokenID); err != nil && !errors.Is(err, repository.ErrTokenRevoked) {
		log.Printf("auth: logout revoke %s failed: %v", claims.TokenID, err)
	}
}

// ChangePassword re-verifies the current password, writes the new hash and
// revokes every session of the principal.
func (s *Service) ChangePassword(ctx context.Context, role rbac.Role, tn tenant.Context, userID uint64, current, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	p, err := s.Principals.FindByID(ctx, role, tn, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !utils.VerifyPassword(p.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := utils.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.Principals.UpdatePasswordHash(ctx, role, tn, userID, hash); err != nil {
		return err
	}
	// Force re-authentication everywhere.  Failure is logged, not fatal:
	// the credential itself has already rotated.
	if err := s.Tokens.RevokeAllFor(ctx, userID, role, p.BusinessID); err != nil {
		log.Printf("auth: revoke-all for %s/%d failed: %v", role, userID, err)
	}
	return nil
}

// forgotProbeOrder is the fixed precedence used to resolve which principal
// table an email belongs to.
var forgotProbeOrder = []rbac.Role{
	rbac.RolePlatformAdmin,
	rbac.RoleBusinessOwner,
	rbac.RoleDriver,
	rbac.RoleEmployeeViewer,
}

// ForgotPassword creates a single-use reset request for the email, probing
// principal kinds in fixed order.  Tenant-scoped roles are only probed when
// a tenant context was resolved: the platform cannot guess which tenant a
// driver email belongs to.  The empty return with nil error means "no such
// principal" and must be indistinguishable to the caller's client.
func (s *Service) ForgotPassword(ctx context.Context, tn tenant.Context, email string) (string, error) {
	for _, role := range forgotProbeOrder {
		if role != rbac.RolePlatformAdmin && !tn.HasTenant() {
			continue
		}
		p, err := s.Principals.FindByEmail(ctx, role, tn, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return "", err
		}
		token, err := utils.RandomToken(32)
		if err != nil {
			return "", err
		}
		rec := &repository.PasswordResetRequest{
			Token:     token,
			Email:     p.Email,
			Role:      p.Role,
			TenantID:  p.BusinessID,
			UserID:    p.ID,
			ExpiresAt: time.Now().UTC().Add(s.ResetTTL),
		}
		if err := s.Resets.Insert(ctx, rec); err != nil {
			return "", err
		}
		return token, nil
	}
	return "", nil
}

// ResetPassword redeems a reset token: exactly once, only before expiry,
// and only for the role/tenant captured at creation.  Redemption revokes
// every session of the principal.  A second redemption of the same token
// fails with repository.ErrResetTokenInvalid.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	rec, err := s.Resets.Find(ctx, token)
	if err != nil {
		return err
	}
	if rec.Used || time.Now().UTC().After(rec.ExpiresAt) {
		return repository.ErrResetTokenInvalid
	}

	// Consume first: the conditional update makes double-submission safe.
	if err := s.Resets.MarkUsed(ctx, token); err != nil {
		return err
	}

	tn := tenant.Context{}
	if rec.TenantID != nil {
		b, err := s.Businesses.FindByID(ctx, *rec.TenantID)
		if err != nil {
			return err
		}
		tn = tenant.Context{Schema: b.Schema, BusinessID: b.ID, Subdomain: b.Subdomain, BusinessName: b.Name}
	}

	hash, err := utils.HashPassword(newPassword, s.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.Principals.UpdatePasswordHash(ctx, rec.Role, tn, rec.UserID, hash); err != nil {
		return err
	}
	if err := s.Tokens.RevokeAllFor(ctx, rec.UserID, rec.Role, rec.TenantID); err != nil {
		log.Printf("auth: revoke-all after reset for %s/%d failed: %v", rec.Role, rec.UserID, err)
	}
	return nil
}

// issueSession mints the access/refresh pair and persists the refresh
// record.  The record write is best-effort: availability of authentication
// outranks completeness of the audit trail.
func (s *Service) issueSession(ctx context.Context, p *repository.Principal, tn tenant.Context, meta SessionMeta) (*Session, error) {
	sess, rec, err := s.mintPair(p, tn, meta)
	if err != nil {
		return nil, err
	}
	if err := s.Tokens.Insert(ctx, rec); err != nil {
		log.Printf("auth: persist refresh record %s failed: %v", rec.TokenID, err)
	}
	return sess, nil
}

// mintPair signs a fresh access/refresh pair without touching storage.
func (s *Service) mintPair(p *repository.Principal, tn tenant.Context, meta SessionMeta) (*Session, *repository.RefreshTokenRecord, error) {
	access := utils.AccessClaims{
		UserID:       p.ID,
		Email:        p.Email,
		Role:         string(p.Role),
		TenantID:     p.BusinessID,
		TenantSchema: tn.Schema,
		BusinessName: tn.BusinessName,
		Subdomain:    tn.Subdomain,
		DriverID:     p.DriverID,
	}
	if p.Role == rbac.RolePlatformAdmin {
		access.TenantSchema = ""
		access.Subdomain = ""
	}
	accessToken, accessExp, err := utils.NewAccessToken(s.Secret, access, s.AccessTTL)
	if err != nil {
		return nil, nil, err
	}

	tokenID := utils.NewTokenID(string(p.Role), p.ID)
	refreshToken, refreshExp, err := utils.NewRefreshToken(s.Secret, utils.RefreshClaims{
		TokenID:  tokenID,
		UserID:   p.ID,
		Role:     string(p.Role),
		TenantID: p.BusinessID,
	}, s.RefreshTTL)
	if err != nil {
		return nil, nil, err
	}

	rec := &repository.RefreshTokenRecord{
		TokenID:     tokenID,
		UserID:      p.ID,
		Role:        p.Role,
		TenantID:    p.BusinessID,
		ExpiresAt:   refreshExp,
		UserAgent:   meta.UserAgent,
		CreatedByIP: meta.IP,
	}

	return &Session{
		Principal:      p,
		AccessToken:    accessToken,
		AccessExpires:  accessExp,
		RefreshToken:   refreshToken,
		RefreshExpires: refreshExp,
	}, rec, nil
}
