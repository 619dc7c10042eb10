package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/field-service-platform/internal/rbac"
)

// PasswordResetRequest mirrors the 'password_reset_requests' table.  The
// token is single-use and bound to the role/tenant combination captured at
// creation so a driver reset can never cross tenants.
type PasswordResetRequest struct {
	Token     string
	Email     string
	Role      rbac.Role
	TenantID  *uint64
	UserID    uint64
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
}

// ResetRepo persists password reset requests.
type ResetRepo struct{ DB *sql.DB }

func NewResetRepo(db *sql.DB) *ResetRepo { return &ResetRepo{DB: db} }

// Insert stores a new reset request.
func (r *ResetRepo) Insert(ctx context.Context, rec *PasswordResetRequest) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO password_reset_requests (token, email, role, tenant_id, user_id, expires_at, used)
		 VALUES (?,?,?,?,?,?,0)`,
		rec.Token, rec.Email, string(rec.Role), rec.TenantID, rec.UserID, rec.ExpiresAt)
	return err
}

// Find loads a reset request by token.  Unknown tokens read as
// ErrResetTokenInvalid so callers cannot distinguish "never existed" from
// "expired".
func (r *ResetRepo) Find(ctx context.Context, token string) (*PasswordResetRequest, error) {
	var (
		rec      PasswordResetRequest
		role     string
		tenantID sql.NullInt64
		usedAt   sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT token, email, role, tenant_id, user_id, expires_at, used, used_at
		 FROM password_reset_requests WHERE token=? LIMIT 1`, token).
		Scan(&rec.Token, &rec.Email, &role, &tenantID, &rec.UserID, &rec.ExpiresAt, &rec.Used, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResetTokenInvalid
		}
		return nil, err
	}
	rec.Role = rbac.Role(role)
	if tenantID.Valid {
		v := uint64(tenantID.Int64)
		rec.TenantID = &v
	}
	if usedAt.Valid {
		t := usedAt.Time
		rec.UsedAt = &t
	}
	return &rec, nil
}

// MarkUsed consumes the token.  The update is conditional on used=0 so a
// double-submission race has exactly one winner; the loser observes zero
// rows affected and gets ErrResetTokenInvalid.
func (r *ResetRepo) MarkUsed(ctx context.Context, token string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE password_reset_requests SET used=1, used_at=NOW() WHERE token=? AND used=0", token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrResetTokenInvalid
	}
	return nil
}
