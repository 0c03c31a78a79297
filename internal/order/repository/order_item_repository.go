package repository

import (
	"context"
	"fmt"

	"tableside/internal/domain"
	"tableside/internal/infrastructure/database"
)

type SQLOrderItemRepository struct {
	db *database.DB
}

func NewSQLOrderItemRepository(db *database.DB) *SQLOrderItemRepository {
	return &SQLOrderItemRepository{db: db}
}

func (r *SQLOrderItemRepository) Insert(ctx context.Context, tx database.Querier, item domain.OrderItem) (int64, error) {
	id, err := r.db.InsertReturningID(ctx, tx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_time, notes)
		VALUES (?, ?, ?, ?, ?)`,
		item.OrderID, item.ProductID, item.Quantity, item.PriceAtTime, item.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting order item: %w", err)
	}
	return id, nil
}

// FindByOrderIDs loads the items of several orders at once, keyed by order id,
// with the product name resolved from the catalog table.
func (r *SQLOrderItemRepository) FindByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	out := make(map[int64][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(orderIDs))
	for i, id := range orderIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(fmt.Sprintf(`
		SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.price_at_time, i.notes
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id IN (%s)
		ORDER BY i.order_id ASC, i.id ASC`,
		database.Placeholders(len(orderIDs)),
	)), args...)
	if err != nil {
		return nil, fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.PriceAtTime, &item.Notes); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		out[item.OrderID] = append(out[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return out, nil
}
