package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tableside/internal/domain"
	"tableside/internal/errors"
	"tableside/internal/infrastructure/database"
)

type SQLTableRepository struct {
	db *database.DB
}

func NewSQLTableRepository(db *database.DB) *SQLTableRepository {
	return &SQLTableRepository{db: db}
}

func (r *SQLTableRepository) FindByID(ctx context.Context, q database.Querier, id int64) (*domain.Table, error) {
	row := q.QueryRowContext(ctx, r.db.Rebind(`
		SELECT id, table_number, qr_code, current_session_id
		FROM dining_tables
		WHERE id = ?`), id)

	table, err := scanTable(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("table %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying table by id: %w", err)
	}
	return table, nil
}

func (r *SQLTableRepository) List(ctx context.Context) ([]domain.Table, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, table_number, qr_code, current_session_id
		FROM dining_tables
		ORDER BY table_number ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	tables := []domain.Table{}
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		tables = append(tables, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tables: %w", err)
	}
	return tables, nil
}

func (r *SQLTableRepository) SetCurrentSession(ctx context.Context, tx database.Querier, tableID, sessionID int64) error {
	result, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE dining_tables SET current_session_id = ? WHERE id = ?`),
		sessionID, tableID,
	)
	if err != nil {
		return fmt.Errorf("setting current session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("table %d not found", tableID))
	}
	return nil
}

// ClearCurrentSession frees the table only if it still points at sessionID.
func (r *SQLTableRepository) ClearCurrentSession(ctx context.Context, tx database.Querier, tableID, sessionID int64) error {
	_, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE dining_tables SET current_session_id = NULL
		WHERE id = ? AND current_session_id = ?`),
		tableID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("clearing current session: %w", err)
	}
	return nil
}

func scanTable(row rowScanner) (*domain.Table, error) {
	var (
		t       domain.Table
		current sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.Number, &t.QRCode, &current); err != nil {
		return nil, err
	}
	if current.Valid {
		id := current.Int64
		t.CurrentSessionID = &id
	}
	return &t, nil
}
