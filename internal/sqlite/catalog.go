package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/conneroisu/storefront/internal/catalog"
)

// scanBodies decodes the JSON body column of every row into T.
func scanBodies[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(body), &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func queryOne[T any](ctx context.Context, db *sql.DB, query string, args ...any) (*T, error) {
	var body string
	err := db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	var v T
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("decode row: %w", err)
	}
	return &v, nil
}

func queryMany[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return scanBodies[T](rows)
}

// ProductByID implements catalog.Products.
func (d *DB) ProductByID(ctx context.Context, storeID, id string) (*catalog.Product, error) {
	return queryOne[catalog.Product](ctx, d.db,
		`SELECT body FROM products WHERE store_id = ? AND id = ?`, storeID, id)
}

// ProductByHandle implements catalog.Products.
func (d *DB) ProductByHandle(ctx context.Context, storeID, handle string) (*catalog.Product, error) {
	return queryOne[catalog.Product](ctx, d.db,
		`SELECT body FROM products WHERE store_id = ? AND handle = ?`, storeID, handle)
}

// FeaturedProducts implements catalog.Products.
func (d *DB) FeaturedProducts(ctx context.Context, storeID string, limit int) ([]catalog.Product, error) {
	return queryMany[catalog.Product](ctx, d.db,
		`SELECT body FROM products WHERE store_id = ? ORDER BY featured DESC, position LIMIT ?`,
		storeID, limit)
}

// SearchProducts implements catalog.Products.
func (d *DB) SearchProducts(ctx context.Context, storeID, query string, limit int) ([]catalog.Product, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	return queryMany[catalog.Product](ctx, d.db,
		`SELECT body FROM products WHERE store_id = ? AND instr(search_text, ?) > 0 ORDER BY position LIMIT ?`,
		storeID, q, limit)
}

// CollectionByID implements catalog.Collections.
func (d *DB) CollectionByID(ctx context.Context, storeID, id string) (*catalog.Collection, error) {
	return queryOne[catalog.Collection](ctx, d.db,
		`SELECT body FROM collections WHERE store_id = ? AND id = ?`, storeID, id)
}

// CollectionByHandle implements catalog.Collections.
func (d *DB) CollectionByHandle(ctx context.Context, storeID, handle string) (*catalog.Collection, error) {
	return queryOne[catalog.Collection](ctx, d.db,
		`SELECT body FROM collections WHERE store_id = ? AND handle = ?`, storeID, handle)
}

// Collections implements catalog.Collections.
func (d *DB) Collections(ctx context.Context, storeID string) ([]catalog.Collection, error) {
	return queryMany[catalog.Collection](ctx, d.db,
		`SELECT body FROM collections WHERE store_id = ? ORDER BY position`, storeID)
}

// CollectionProducts implements catalog.Collections.
func (d *DB) CollectionProducts(ctx context.Context, storeID, collectionID string, offset, limit int) ([]catalog.Product, int, error) {
	var total int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM collection_products WHERE store_id = ? AND collection_id = ?`,
		storeID, collectionID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count collection products: %w", err)
	}

	products, err := queryMany[catalog.Product](ctx, d.db, `
		SELECT p.body FROM collection_products cp
		JOIN products p ON p.store_id = cp.store_id AND p.id = cp.product_id
		WHERE cp.store_id = ? AND cp.collection_id = ?
		ORDER BY cp.position LIMIT ? OFFSET ?`,
		storeID, collectionID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

// PageByHandle implements catalog.Pages.
func (d *DB) PageByHandle(ctx context.Context, storeID, handle string) (*catalog.Page, error) {
	return queryOne[catalog.Page](ctx, d.db,
		`SELECT body FROM pages WHERE store_id = ? AND handle = ?`, storeID, handle)
}

// Cart implements catalog.Carts.
func (d *DB) Cart(ctx context.Context, storeID, token string) (*catalog.Cart, error) {
	return queryOne[catalog.Cart](ctx, d.db,
		`SELECT body FROM carts WHERE store_id = ? AND token = ?`, storeID, token)
}

// Menus implements catalog.Navigation.
func (d *DB) Menus(ctx context.Context, storeID string) ([]catalog.Menu, error) {
	return queryMany[catalog.Menu](ctx, d.db,
		`SELECT body FROM menus WHERE store_id = ? ORDER BY position`, storeID)
}
