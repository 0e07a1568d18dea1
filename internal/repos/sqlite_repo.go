package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mugisham37/product-management-interview-project/internal/models"
	_ "modernc.org/sqlite"
)

const productColumns = `id, name, description, price, quantity, category, image_url, sku, weight,
	is_active, min_stock_level, cost_price, notes, revision, created_at, updated_at`

type SQLiteRepo struct {
	db   *sql.DB
	opts options
}

// OpenSQLite opens dsn with the modernc driver. SQLite allows a single
// writer, so the pool is capped at one connection; this also keeps
// in-memory databases from being split across connections.
func OpenSQLite(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return db, nil
}

func NewSQLiteRepo(db *sql.DB, opts ...Option) *SQLiteRepo {
	return &SQLiteRepo{db: db, opts: buildOptions(opts)}
}

func (r *SQLiteRepo) DB() *sql.DB {
	return r.db
}

func (r *SQLiteRepo) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepo) Create(ctx context.Context, p *models.Product) error {
	prepareCreate(r.opts, p)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.Description, p.Price, p.Quantity, p.Category, p.ImageURL, p.SKU, p.Weight,
		p.IsActive, p.MinStockLevel, p.CostPrice, p.Notes, p.Revision,
		models.Millis(p.CreatedAt), models.Millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) Get(ctx context.Context, id string) (*models.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (r *SQLiteRepo) getTx(ctx context.Context, tx *sql.Tx, id string) (*models.Product, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProduct(row)
}

func (r *SQLiteRepo) List(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *SQLiteRepo) ListStamps(ctx context.Context) ([]models.VersionStamp, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, revision, updated_at FROM products`)
	if err != nil {
		return nil, fmt.Errorf("failed to query product stamps: %w", err)
	}
	defer rows.Close()

	stamps := make([]models.VersionStamp, 0)
	for rows.Next() {
		var (
			s  models.VersionStamp
			ms int64
		)
		if err := rows.Scan(&s.ID, &s.Revision, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan product stamp: %w", err)
		}
		s.UpdatedAt = models.FromMillis(ms)
		stamps = append(stamps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stamps, nil
}

func (r *SQLiteRepo) Update(ctx context.Context, id string, mutate func(p *models.Product) error) (*models.Product, error) {
	var out *models.Product
	err := r.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := r.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		next := *current
		if err := mutate(&next); err != nil {
			return err
		}
		next.ID = current.ID
		next.CreatedAt = current.CreatedAt
		next.Revision = current.Revision + 1
		next.UpdatedAt = r.opts.stamp(current.UpdatedAt)

		res, err := tx.ExecContext(ctx, `
			UPDATE products SET
				name = ?, description = ?, price = ?, quantity = ?, category = ?, image_url = ?,
				sku = ?, weight = ?, is_active = ?, min_stock_level = ?, cost_price = ?, notes = ?,
				revision = ?, updated_at = ?
			WHERE id = ? AND revision = ?
		`, next.Name, next.Description, next.Price, next.Quantity, next.Category, next.ImageURL,
			next.SKU, next.Weight, next.IsActive, next.MinStockLevel, next.CostPrice, next.Notes,
			next.Revision, models.Millis(next.UpdatedAt), id, current.Revision)
		if err != nil {
			return fmt.Errorf("failed to update product: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrRevisionMismatch
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SQLiteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProduct(row interface{ Scan(dest ...any) error }) (*models.Product, error) {
	var (
		p                  models.Product
		createdAt, updated int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Category, &p.ImageURL,
		&p.SKU, &p.Weight, &p.IsActive, &p.MinStockLevel, &p.CostPrice, &p.Notes, &p.Revision,
		&createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.CreatedAt = models.FromMillis(createdAt)
	p.UpdatedAt = models.FromMillis(updated)
	return &p, nil
}
