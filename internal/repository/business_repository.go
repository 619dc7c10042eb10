package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/field-service-platform/internal/tenant"
)

// BusinessRepo reads and writes the 'businesses' table in the platform
// schema and provisions tenant schemas.  It implements tenant.Directory.
type BusinessRepo struct{ DB *sql.DB }

func NewBusinessRepo(db *sql.DB) *BusinessRepo { return &BusinessRepo{DB: db} }

const businessColumns = "id, name, subdomain, custom_domain, database_schema, status"

// FindBySubdomain returns the business owning the subdomain, or (nil, nil)
// when no business matches.
func (r *BusinessRepo) FindBySubdomain(ctx context.Context, subdomain string) (*tenant.Business, error) {
	return r.scanOne(ctx,
		"SELECT "+businessColumns+" FROM businesses WHERE subdomain=? LIMIT 1", subdomain)
}

// FindByCustomDomain returns the business whose custom domain equals the
// host exactly, or (nil, nil).
func (r *BusinessRepo) FindByCustomDomain(ctx context.Context, host string) (*tenant.Business, error) {
	return r.scanOne(ctx,
		"SELECT "+businessColumns+" FROM businesses WHERE custom_domain=? LIMIT 1", host)
}

// FindByID loads a business by primary key.  Returns ErrNotFound.
func (r *BusinessRepo) FindByID(ctx context.Context, id uint64) (*tenant.Business, error) {
	b, err := r.scanOne(ctx,
		"SELECT "+businessColumns+" FROM businesses WHERE id=? LIMIT 1", id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound
	}
	return b, nil
}

// SubdomainAvailable reports whether a subdomain can still be registered.
// Reserved names always read as taken.
func (r *BusinessRepo) SubdomainAvailable(ctx context.Context, subdomain, execSubdomain string) (bool, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if tenant.IsReservedSubdomain(subdomain, execSubdomain) {
		return false, nil
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM businesses WHERE subdomain=?", subdomain).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Create inserts a business in 'pending' status and returns its id.
// Subdomain and schema collisions surface as ErrSubdomainTaken.
func (r *BusinessRepo) Create(ctx context.Context, name, subdomain, schema string) (uint64, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO businesses (name, subdomain, database_schema, status, subscription_status) VALUES (?,?,?,'pending','trial')",
		name, subdomain, schema)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return 0, ErrSubdomainTaken
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Activate flips a provisioned business to active.
func (r *BusinessRepo) Activate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE businesses SET status='active' WHERE id=?", id)
	return err
}

// ProvisionSchema creates the tenant schema with the tables the auth core
// needs.  The operational CRUD tables are created by the storage layer's own
// migrations, which are outside this subsystem.
func (r *BusinessRepo) ProvisionSchema(ctx context.Context, schema string) error {
	qualifiedDrivers, err := qualify(schema, "drivers")
	if err != nil {
		return err
	}
	qualifiedEmployees, err := qualify(schema, "employees")
	if err != nil {
		return err
	}
	stmts := []string{
		fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(190) NOT NULL,
			email VARCHAR(190) NOT NULL UNIQUE,
			password_hash VARCHAR(190) NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`, qualifiedDrivers),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
			name VARCHAR(190) NOT NULL,
			email VARCHAR(190) NOT NULL UNIQUE,
			password_hash VARCHAR(190) NOT NULL,
			is_active TINYINT(1) NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)`, qualifiedEmployees),
	}
	for _, stmt := range stmts {
		if _, err := r.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *BusinessRepo) scanOne(ctx context.Context, query string, args ...any) (*tenant.Business, error) {
	var (
		b      tenant.Business
		custom sql.NullString
	)
	err := r.DB.QueryRowContext(ctx, query, args...).
		Scan(&b.ID, &b.Name, &b.Subdomain, &custom, &b.Schema, &b.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	b.CustomDomain = custom.String
	return &b, nil
}
