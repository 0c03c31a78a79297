package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"tableside/internal/domain"
	"tableside/internal/infrastructure/database"
)

type SQLRepository struct {
	db *database.DB
}

func NewSQLRepository(db *database.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) FindByIDs(ctx context.Context, ids []int64) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := r.db.Rebind(fmt.Sprintf(`
		SELECT id, category_id, name, description, price, is_available
		FROM products
		WHERE id IN (%s)`,
		database.Placeholders(len(ids)),
	))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func (r *SQLRepository) ListActiveCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id, name, sort_order, is_active
		FROM categories
		WHERE is_active = ?
		ORDER BY sort_order ASC, id ASC`), true)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.SortOrder, &c.Active); err != nil {
			return nil, fmt.Errorf("scanning category row: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}

	return categories, nil
}

func (r *SQLRepository) ListAvailableProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT id, category_id, name, description, price, is_available
		FROM products
		WHERE is_available = ?
		ORDER BY name ASC, id ASC`), true)
	if err != nil {
		return nil, fmt.Errorf("querying available products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows *sql.Rows) ([]domain.Product, error) {
	var products []domain.Product
	for rows.Next() {
		var (
			p          domain.Product
			categoryID sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &categoryID, &p.Name, &p.Description, &p.Price, &p.Available); err != nil {
			return nil, fmt.Errorf("scanning product row: %w", err)
		}
		p.CategoryID = categoryID.Int64
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating product rows: %w", err)
	}

	return products, nil
}
