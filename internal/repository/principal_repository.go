package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/iliyamo/field-service-platform/internal/rbac"
	"github.com/iliyamo/field-service-platform/internal/tenant"
)

// Principal is a unified row over the four principal tables.  BusinessID and
// DriverID are nil for the variants that do not carry them: platform admins
// have neither, owners have only a business id, drivers carry both.
type Principal struct {
	ID           uint64
	Email        string
	Name         string
	Role         rbac.Role
	PasswordHash string
	IsActive     bool
	BusinessID   *uint64
	DriverID     *uint64
}

// schemaName guards interpolated schema identifiers.  Schemas are created by
// our own provisioning code from validated slugs, but the check keeps a bad
// row from ever reaching the SQL text.
var schemaName = regexp.MustCompile(`^[a-z0-9_]+$`)

func qualify(schema, table string) (string, error) {
	if !schemaName.MatchString(schema) {
		return "", fmt.Errorf("invalid schema name %q", schema)
	}
	return fmt.Sprintf("`%s`.%s", schema, table), nil
}

// PrincipalRepo looks principals up across the platform schema (owners,
// admins) and tenant schemas (drivers, employees).
type PrincipalRepo struct{ DB *sql.DB }

func NewPrincipalRepo(db *sql.DB) *PrincipalRepo { return &PrincipalRepo{DB: db} }

// FindByEmail fetches the principal of the given role by normalized email.
// Drivers and employees are scoped to the tenant schema in tn; owners are
// scoped to the tenant's business id.  Returns ErrNotFound when no row
// matches or when a tenant-scoped role is requested without tenant context.
func (r *PrincipalRepo) FindByEmail(ctx context.Context, role rbac.Role, tn tenant.Context, email string) (*Principal, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	switch role {
	case rbac.RolePlatformAdmin:
		return r.scanOne(ctx, role, nil,
			"SELECT id, email, name, password_hash, is_active FROM platform_admins WHERE email=? LIMIT 1", email)
	case rbac.RoleBusinessOwner:
		if !tn.HasTenant() {
			return nil, ErrNotFound
		}
		return r.scanOne(ctx, role, &tn.BusinessID,
			"SELECT id, email, name, password_hash, is_active FROM business_owners WHERE email=? AND business_id=? LIMIT 1",
			email, tn.BusinessID)
	case rbac.RoleDriver, rbac.RoleEmployeeViewer:
		if !tn.HasTenant() {
			return nil, ErrNotFound
		}
		table := "drivers"
		if role == rbac.RoleEmployeeViewer {
			table = "employees"
		}
		qualified, err := qualify(tn.Schema, table)
		if err != nil {
			return nil, err
		}
		q := fmt.Sprintf("SELECT id, email, name, password_hash, is_active FROM %s WHERE email=? LIMIT 1", qualified)
		p, err := r.scanOne(ctx, role, &tn.BusinessID, q, email)
		if err != nil {
			return nil, err
		}
		if role == rbac.RoleDriver {
			id := p.ID
			p.DriverID = &id
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

// FindByID fetches a principal by primary key, with the same scoping rules
// as FindByEmail.
func (r *PrincipalRepo) FindByID(ctx context.Context, role rbac.Role, tn tenant.Context, id uint64) (*Principal, error) {
	switch role {
	case rbac.RolePlatformAdmin:
		return r.scanOne(ctx, role, nil,
			"SELECT id, email, name, password_hash, is_active FROM platform_admins WHERE id=? LIMIT 1", id)
	case rbac.RoleBusinessOwner:
		if !tn.HasTenant() {
			return nil, ErrNotFound
		}
		return r.scanOne(ctx, role, &tn.BusinessID,
			"SELECT id, email, name, password_hash, is_active FROM business_owners WHERE id=? AND business_id=? LIMIT 1",
			id, tn.BusinessID)
	case rbac.RoleDriver, rbac.RoleEmployeeViewer:
		if !tn.HasTenant() {
			return nil, ErrNotFound
		}
		table := "drivers"
		if role == rbac.RoleEmployeeViewer {
			table = "employees"
		}
		qualified, err := qualify(tn.Schema, table)
		if err != nil {
			return nil, err
		}
		q := fmt.Sprintf("SELECT id, email, name, password_hash, is_active FROM %s WHERE id=? LIMIT 1", qualified)
		p, err := r.scanOne(ctx, role, &tn.BusinessID, q, id)
		if err != nil {
			return nil, err
		}
		if role == rbac.RoleDriver {
			did := p.ID
			p.DriverID = &did
		}
		return p, nil
	}
	return nil, fmt.Errorf("unknown role %q", role)
}

// UpdatePasswordHash writes a new bcrypt hash for the principal.
func (r *PrincipalRepo) UpdatePasswordHash(ctx context.Context, role rbac.Role, tn tenant.Context, id uint64, hash string) error {
	var q string
	switch role {
	case rbac.RolePlatformAdmin:
		q = "UPDATE platform_admins SET password_hash=?, updated_at=NOW() WHERE id=?"
	case rbac.RoleBusinessOwner:
		q = "UPDATE business_owners SET password_hash=?, updated_at=NOW() WHERE id=?"
	case rbac.RoleDriver, rbac.RoleEmployeeViewer:
		table := "drivers"
		if role == rbac.RoleEmployeeViewer {
			table = "employees"
		}
		qualified, err := qualify(tn.Schema, table)
		if err != nil {
			return err
		}
		q = fmt.Sprintf("UPDATE %s SET password_hash=?, updated_at=NOW() WHERE id=?", qualified)
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	_, err := r.DB.ExecContext(ctx, q, hash, id)
	return err
}

// CreateOwner inserts the owner account created during business
// registration and returns its id.
func (r *PrincipalRepo) CreateOwner(ctx context.Context, businessID uint64, name, email, hash string) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO business_owners (business_id, name, email, password_hash, is_active) VALUES (?,?,?,?,1)",
		businessID, name, email, hash)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (r *PrincipalRepo) scanOne(ctx context.Context, role rbac.Role, businessID *uint64, query string, args ...any) (*Principal, error) {
	var p Principal
	err := r.DB.QueryRowContext(ctx, query, args...).
		Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Role = role
	if businessID != nil {
		bid := *businessID
		p.BusinessID = &bid
	}
	return &p, nil
}
