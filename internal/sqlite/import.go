package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/conneroisu/storefront/internal/catalog"
	"github.com/conneroisu/storefront/internal/tenant"
)

// Import writes every store of a seed and its catalog in one transaction.
// A store's existing catalog rows are replaced.
func (d *DB) Import(ctx context.Context, seed *tenant.Seed) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range seed.Stores {
		s := &seed.Stores[i]
		if err := putStore(ctx, tx, &s.Store); err != nil {
			return err
		}
		if err := putCatalog(ctx, tx, s.ID, &s.Catalog); err != nil {
			return fmt.Errorf("import catalog of store %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

func putCatalog(ctx context.Context, tx *sql.Tx, storeID string, data *catalog.Data) error {
	for _, table := range []string{"collection_products", "products", "collections", "pages", "menus", "carts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE store_id = ?`, storeID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for pos, p := range data.Products {
		body, err := json.Marshal(p)
		if err != nil {
			return err
		}
		featured := 0
		if p.Featured {
			featured = 1
		}
		search := strings.ToLower(strings.Join(append([]string{p.Title, p.Description}, p.Tags...), " "))
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO products (store_id, id, handle, position, featured, search_text, body) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			storeID, p.ID, p.Handle, pos, featured, search, string(body)); err != nil {
			return fmt.Errorf("insert product %s: %w", p.ID, err)
		}
		for _, cid := range p.CollectionIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO collection_products (store_id, collection_id, product_id, position) VALUES (?, ?, ?, ?)`,
				storeID, cid, p.ID, pos); err != nil {
				return fmt.Errorf("link product %s: %w", p.ID, err)
			}
		}
	}

	for pos, c := range data.Collections {
		if err := insertBody(ctx, tx,
			`INSERT INTO collections (store_id, id, handle, position, body) VALUES (?, ?, ?, ?, ?)`,
			c, storeID, c.ID, c.Handle, pos); err != nil {
			return fmt.Errorf("insert collection %s: %w", c.ID, err)
		}
	}
	for _, p := range data.Pages {
		if err := insertBody(ctx, tx,
			`INSERT INTO pages (store_id, handle, body) VALUES (?, ?, ?)`,
			p, storeID, p.Handle); err != nil {
			return fmt.Errorf("insert page %s: %w", p.Handle, err)
		}
	}
	for pos, m := range data.Menus {
		if err := insertBody(ctx, tx,
			`INSERT INTO menus (store_id, handle, position, body) VALUES (?, ?, ?, ?)`,
			m, storeID, m.Handle, pos); err != nil {
			return fmt.Errorf("insert menu %s: %w", m.Handle, err)
		}
	}
	for _, c := range data.Carts {
		if err := insertBody(ctx, tx,
			`INSERT INTO carts (store_id, token, body) VALUES (?, ?, ?)`,
			c, storeID, c.Token); err != nil {
			return fmt.Errorf("insert cart %s: %w", c.Token, err)
		}
	}

	return nil
}

// insertBody runs query with args followed by the JSON encoding of v.
func insertBody(ctx context.Context, tx *sql.Tx, query string, v any, args ...any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, append(args, string(body))...)
	return err
}
