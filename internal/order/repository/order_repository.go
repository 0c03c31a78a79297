package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tableside/internal/domain"
	"tableside/internal/dto"
	"tableside/internal/errors"
	"tableside/internal/infrastructure/database"
)

const orderColumns = `o.id, o.session_id, o.status, o.total_amount, o.created_at, o.updated_at`

type SQLOrderRepository struct {
	db *database.DB
}

func NewSQLOrderRepository(db *database.DB) *SQLOrderRepository {
	return &SQLOrderRepository{db: db}
}

func (r *SQLOrderRepository) Insert(ctx context.Context, tx database.Querier, order domain.Order) (int64, error) {
	id, err := r.db.InsertReturningID(ctx, tx, `
		INSERT INTO orders (session_id, status, total_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.SessionID, string(order.Status), order.TotalAmount, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting order: %w", err)
	}
	return id, nil
}

func (r *SQLOrderRepository) FindByID(ctx context.Context, q database.Querier, id int64) (*domain.Order, error) {
	return r.findByID(ctx, q, id, "")
}

// FindByIDForUpdate must run inside a transaction.
func (r *SQLOrderRepository) FindByIDForUpdate(ctx context.Context, tx database.Querier, id int64) (*domain.Order, error) {
	return r.findByID(ctx, tx, id, r.db.ForUpdate())
}

func (r *SQLOrderRepository) findByID(ctx context.Context, q database.Querier, id int64, suffix string) (*domain.Order, error) {
	query := r.db.Rebind(`SELECT ` + orderColumns + ` FROM orders o WHERE o.id = ?` + suffix)

	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("order %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying order by id: %w", err)
	}
	return order, nil
}

// UpdateStatus moves the order from one status to another. It fails with
// InvalidTransition when the order is no longer in from.
func (r *SQLOrderRepository) UpdateStatus(ctx context.Context, tx database.Querier, id int64, from, to domain.OrderStatus, updatedAt time.Time) error {
	result, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(to), updatedAt, id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewInvalidTransitionError(string(from), string(to))
	}
	return nil
}

// ListWithSession returns orders joined with their session's table and
// customer, oldest first. An empty statuses slice means every status.
func (r *SQLOrderRepository) ListWithSession(ctx context.Context, statuses []domain.OrderStatus) ([]dto.OrderDetail, error) {
	query := `
		SELECT ` + orderColumns + `, s.table_id, t.table_number, s.customer_name
		FROM orders o
		JOIN sessions s ON s.id = o.session_id
		JOIN dining_tables t ON t.id = s.table_id`

	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += fmt.Sprintf(` WHERE o.status IN (%s)`, database.Placeholders(len(statuses)))
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY o.created_at ASC, o.id ASC`

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	details := []dto.OrderDetail{}
	for rows.Next() {
		var (
			d      dto.OrderDetail
			status string
		)
		if err := rows.Scan(
			&d.Order.ID, &d.Order.SessionID, &status, &d.Order.TotalAmount, &d.Order.CreatedAt, &d.Order.UpdatedAt,
			&d.TableID, &d.TableNumber, &d.CustomerName,
		); err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		d.Order.Status = domain.OrderStatus(status)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating orders: %w", err)
	}
	return details, nil
}

// ListBySession returns a session's orders, newest first.
func (r *SQLOrderRepository) ListBySession(ctx context.Context, sessionID int64) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(`
		SELECT `+orderColumns+`
		FROM orders o
		WHERE o.session_id = ?
		ORDER BY o.created_at DESC, o.id DESC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session orders: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.SessionID, &status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	return &o, nil
}
