package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/field-service-platform/internal/rbac"
)

// RefreshTokenRecord mirrors the 'refresh_tokens' table in the platform
// schema.  Records are never deleted; rotation and revocation only flip
// flags so the chain token_id -> replaced_by_token_id stays auditable.
type RefreshTokenRecord struct {
	TokenID           string
	UserID            uint64
	Role              rbac.Role
	TenantID          *uint64
	Revoked           bool
	RevokedAt         *time.Time
	ReplacedByTokenID *string
	ExpiresAt         time.Time
	UserAgent         string
	CreatedByIP       string
	CreatedAt         time.Time
}

// Active reports whether the record can still mint access tokens.  A record
// with a successor is dead even when the revoked flag failed to persist.
func (r *RefreshTokenRecord) Active(now time.Time) bool {
	return !r.Revoked && r.ReplacedByTokenID == nil && now.Before(r.ExpiresAt)
}

// TokenRepo persists refresh token records.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Insert stores a new refresh token record.
func (r *TokenRepo) Insert(ctx context.Context, rec *RefreshTokenRecord) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO refresh_tokens
			(token_id, user_id, role, tenant_id, revoked, expires_at, user_agent, created_by_ip)
		 VALUES (?,?,?,?,0,?,?,?)`,
		rec.TokenID, rec.UserID, string(rec.Role), rec.TenantID, rec.ExpiresAt, rec.UserAgent, rec.CreatedByIP)
	return err
}

// Find loads a record by token id.  Returns ErrNotFound when absent.
func (r *TokenRepo) Find(ctx context.Context, tokenID string) (*RefreshTokenRecord, error) {
	var (
		rec      RefreshTokenRecord
		role     string
		tenantID sql.NullInt64
		revoked  sql.NullTime
		replaced sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT token_id, user_id, role, tenant_id, revoked, revoked_at, replaced_by_token_id,
				expires_at, user_agent, created_by_ip, created_at
		 FROM refresh_tokens WHERE token_id=? LIMIT 1`, tokenID).
		Scan(&rec.TokenID, &rec.UserID, &role, &tenantID, &rec.Revoked, &revoked, &replaced,
			&rec.ExpiresAt, &rec.UserAgent, &rec.CreatedByIP, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	rec.Role = rbac.Role(role)
	if tenantID.Valid {
		v := uint64(tenantID.Int64)
		rec.TenantID = &v
	}
	if revoked.Valid {
		t := revoked.Time
		rec.RevokedAt = &t
	}
	if replaced.Valid {
		s := replaced.String
		rec.ReplacedByTokenID = &s
	}
	return &rec, nil
}

// Rotate marks the old record revoked and stamps its successor.  The update
// is conditional on the record still being active, so two refreshes racing
// on the same token id produce exactly one winner: the loser observes zero
// rows affected and gets ErrTokenRevoked.
func (r *TokenRepo) Rotate(ctx context.Context, oldTokenID, newTokenID string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE refresh_tokens
		 SET revoked=1, revoked_at=NOW(), replaced_by_token_id=?
		 WHERE token_id=? AND revoked=0 AND replaced_by_token_id IS NULL`,
		newTokenID, oldTokenID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	return nil
}

// Revoke marks a single record revoked (logout).  Already-revoked records
// report ErrTokenRevoked so callers can log the replay attempt.
func (r *TokenRepo) Revoke(ctx context.Context, tokenID string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1, revoked_at=NOW() WHERE token_id=? AND revoked=0", tokenID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTokenRevoked
	}
	return nil
}

// RevokeAllFor bulk-revokes every active record of a principal.  Used on
// password change and reset so pre-existing sessions cannot outlive a
// credential rotation.
func (r *TokenRepo) RevokeAllFor(ctx context.Context, userID uint64, role rbac.Role, tenantID *uint64) error {
	q := "UPDATE refresh_tokens SET revoked=1, revoked_at=NOW() WHERE user_id=? AND role=? AND revoked=0"
	args := []any{userID, string(role)}
	if tenantID != nil {
		q += " AND tenant_id=?"
		args = append(args, *tenantID)
	}
	_, err := r.DB.ExecContext(ctx, q, args...)
	return err
}
