package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mugisham37/product-management-interview-project/internal/models"
)

type PgRepo struct {
	db   *pgxpool.Pool
	opts options
}

func NewPgRepo(ctx context.Context, databaseURL string, opts ...Option) (*PgRepo, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	return &PgRepo{db: pool, opts: buildOptions(opts)}, nil
}

func (r *PgRepo) Close() {
	r.db.Close()
}

func (r *PgRepo) Create(ctx context.Context, p *models.Product) error {
	prepareCreate(r.opts, p)
	_, err := r.db.Exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, p.ID, p.Name, p.Description, p.Price, p.Quantity, p.Category, p.ImageURL, p.SKU, p.Weight,
		p.IsActive, p.MinStockLevel, p.CostPrice, p.Notes, p.Revision,
		models.Millis(p.CreatedAt), models.Millis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

func (r *PgRepo) Get(ctx context.Context, id string) (*models.Product, error) {
	return pgScanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (r *PgRepo) List(ctx context.Context) ([]models.Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		p, err := pgScanProduct(rows)
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

func (r *PgRepo) ListStamps(ctx context.Context) ([]models.VersionStamp, error) {
	rows, err := r.db.Query(ctx, `SELECT id, revision, updated_at FROM products`)
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

func (r *PgRepo) Update(ctx context.Context, id string, mutate func(p *models.Product) error) (*models.Product, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(context.Background())

	current, err := pgScanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	next := *current
	if err := mutate(&next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.Revision = current.Revision + 1
	next.UpdatedAt = r.opts.stamp(current.UpdatedAt)

	tag, err := tx.Exec(ctx, `
		UPDATE products SET
			name = $1, description = $2, price = $3, quantity = $4, category = $5, image_url = $6,
			sku = $7, weight = $8, is_active = $9, min_stock_level = $10, cost_price = $11, notes = $12,
			revision = $13, updated_at = $14
		WHERE id = $15 AND revision = $16
	`, next.Name, next.Description, next.Price, next.Quantity, next.Category, next.ImageURL,
		next.SKU, next.Weight, next.IsActive, next.MinStockLevel, next.CostPrice, next.Notes,
		next.Revision, models.Millis(next.UpdatedAt), id, current.Revision)
	if err != nil {
		return nil, fmt.Errorf("failed to update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrRevisionMismatch
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return &next, nil
}

func (r *PgRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pgScanProduct(row pgx.Row) (*models.Product, error) {
	var (
		p                  models.Product
		createdAt, updated int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.Category, &p.ImageURL,
		&p.SKU, &p.Weight, &p.IsActive, &p.MinStockLevel, &p.CostPrice, &p.Notes, &p.Revision,
		&createdAt, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan product: %w", err)
	}
	p.CreatedAt = models.FromMillis(createdAt)
	p.UpdatedAt = models.FromMillis(updated)
	return &p, nil
}
