package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/conneroisu/storefront/internal/tenant"
)

const storeColumns = `s.id, s.name, s.description, s.email, s.primary_domain, s.theme_id,
	s.settings, s.policies, s.active, s.created_at`

// FindByCustomDomain implements tenant.Directory.
func (d *DB) FindByCustomDomain(ctx context.Context, domain string) (*tenant.Store, error) {
	return d.findStore(ctx,
		`SELECT `+storeColumns+` FROM stores s JOIN custom_domains c ON c.store_id = s.id WHERE c.domain = ?`,
		tenant.NormalizeDomain(domain))
}

// FindByPrimaryDomain implements tenant.Directory.
func (d *DB) FindByPrimaryDomain(ctx context.Context, domain string) (*tenant.Store, error) {
	return d.findStore(ctx,
		`SELECT `+storeColumns+` FROM stores s WHERE s.primary_domain = ?`,
		tenant.NormalizeDomain(domain))
}

// FindByID implements tenant.Directory.
func (d *DB) FindByID(ctx context.Context, id string) (*tenant.Store, error) {
	return d.findStore(ctx, `SELECT `+storeColumns+` FROM stores s WHERE s.id = ?`, id)
}

func (d *DB) findStore(ctx context.Context, query string, arg string) (*tenant.Store, error) {
	var (
		s         tenant.Store
		settings  string
		policies  string
		active    int
		createdAt int64
	)
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&s.ID, &s.Name, &s.Description, &s.Email, &s.PrimaryDomain, &s.ThemeID,
		&settings, &policies, &active, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tenant.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	if err := json.Unmarshal([]byte(settings), &s.Settings); err != nil {
		return nil, fmt.Errorf("decode settings of store %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(policies), &s.Policies); err != nil {
		return nil, fmt.Errorf("decode policies of store %s: %w", s.ID, err)
	}
	s.Active = active != 0
	if createdAt > 0 {
		s.CreatedAt = time.Unix(createdAt, 0).UTC()
	}

	rows, err := d.db.QueryContext(ctx, `SELECT domain FROM custom_domains WHERE store_id = ? ORDER BY domain`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("query custom domains: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, fmt.Errorf("scan custom domain: %w", err)
		}
		s.CustomDomains = append(s.CustomDomains, domain)
	}

	return &s, rows.Err()
}

// PutStore inserts or replaces a store and its custom domains.
func (d *DB) PutStore(ctx context.Context, s *tenant.Store) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putStore(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

func putStore(ctx context.Context, tx *sql.Tx, s *tenant.Store) error {
	settings, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	policies, err := json.Marshal(s.Policies)
	if err != nil {
		return fmt.Errorf("encode policies: %w", err)
	}
	var createdAt int64
	if !s.CreatedAt.IsZero() {
		createdAt = s.CreatedAt.Unix()
	}
	active := 0
	if s.Active {
		active = 1
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stores (id, name, description, email, primary_domain, theme_id, settings, policies, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, email = excluded.email,
			primary_domain = excluded.primary_domain, theme_id = excluded.theme_id,
			settings = excluded.settings, policies = excluded.policies,
			active = excluded.active, created_at = excluded.created_at`,
		s.ID, s.Name, s.Description, s.Email, tenant.NormalizeDomain(s.PrimaryDomain), s.ThemeID,
		string(settings), string(policies), active, createdAt)
	if err != nil {
		return fmt.Errorf("upsert store %s: %w", s.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM custom_domains WHERE store_id = ?`, s.ID); err != nil {
		return fmt.Errorf("clear custom domains: %w", err)
	}
	for _, domain := range s.CustomDomains {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO custom_domains (domain, store_id) VALUES (?, ?)`,
			tenant.NormalizeDomain(domain), s.ID); err != nil {
			return fmt.Errorf("insert custom domain %s: %w", domain, err)
		}
	}

	return nil
}
