package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tableside/internal/domain"
	"tableside/internal/errors"
	"tableside/internal/infrastructure/database"
)

const sessionColumns = `s.id, s.table_id, t.table_number, s.customer_name, s.status, s.start_time, s.end_time, s.created_at`

// lockColumns reads a session without the join so that FOR UPDATE locks the
// session row only.
const lockColumns = `id, table_id, 0, customer_name, status, start_time, end_time, created_at`

type SQLSessionRepository struct {
	db *database.DB
}

func NewSQLSessionRepository(db *database.DB) *SQLSessionRepository {
	return &SQLSessionRepository{db: db}
}

func (r *SQLSessionRepository) FindByID(ctx context.Context, q database.Querier, id int64) (*domain.Session, error) {
	query := r.db.Rebind(`
		SELECT ` + sessionColumns + `
		FROM sessions s
		JOIN dining_tables t ON t.id = s.table_id
		WHERE s.id = ?`)

	session, err := scanSession(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("session %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying session by id: %w", err)
	}
	return session, nil
}

// FindByIDForUpdate must run inside a transaction. TableNumber is not loaded.
func (r *SQLSessionRepository) FindByIDForUpdate(ctx context.Context, tx database.Querier, id int64) (*domain.Session, error) {
	query := r.db.Rebind(`SELECT ` + lockColumns + ` FROM sessions WHERE id = ?` + r.db.ForUpdate())

	session, err := scanSession(tx.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(fmt.Sprintf("session %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("locking session: %w", err)
	}
	return session, nil
}

// FindOpenByTable returns the pending or active session holding tableID, or
// nil when the table is free. With forUpdate the row is locked.
func (r *SQLSessionRepository) FindOpenByTable(ctx context.Context, q database.Querier, tableID int64, forUpdate bool) (*domain.Session, error) {
	var query string
	if forUpdate {
		query = `SELECT ` + lockColumns + ` FROM sessions WHERE open_table_id = ?` + r.db.ForUpdate()
	} else {
		query = `
			SELECT ` + sessionColumns + `
			FROM sessions s
			JOIN dining_tables t ON t.id = s.table_id
			WHERE s.open_table_id = ?`
	}

	session, err := scanSession(q.QueryRowContext(ctx, r.db.Rebind(query), tableID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying open session for table: %w", err)
	}
	return session, nil
}

// Insert creates a pending session. It claims the table's open slot, so a
// second open session for the same table fails with a unique violation.
func (r *SQLSessionRepository) Insert(ctx context.Context, tx database.Querier, tableID int64, customerName string, createdAt time.Time) (int64, error) {
	id, err := r.db.InsertReturningID(ctx, tx, `
		INSERT INTO sessions (table_id, customer_name, status, open_table_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tableID, customerName, string(domain.SessionStatusPending), tableID, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	return id, nil
}

func (r *SQLSessionRepository) Activate(ctx context.Context, tx database.Querier, id int64, startTime time.Time) error {
	result, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE sessions SET status = ?, start_time = ?
		WHERE id = ? AND status = ?`),
		string(domain.SessionStatusActive), startTime, id, string(domain.SessionStatusPending),
	)
	if err != nil {
		return fmt.Errorf("activating session: %w", err)
	}
	return expectOneRow(result, id, "pending")
}

// Close marks the session closed and releases the table's open slot.
func (r *SQLSessionRepository) Close(ctx context.Context, tx database.Querier, id int64, endTime time.Time) error {
	result, err := tx.ExecContext(ctx, r.db.Rebind(`
		UPDATE sessions SET status = ?, end_time = ?, open_table_id = NULL
		WHERE id = ? AND status <> ?`),
		string(domain.SessionStatusClosed), endTime, id, string(domain.SessionStatusClosed),
	)
	if err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	return expectOneRow(result, id, "open")
}

// List returns sessions ordered by id, optionally filtered to one status.
func (r *SQLSessionRepository) List(ctx context.Context, status *domain.SessionStatus) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions s
		JOIN dining_tables t ON t.id = s.table_id`
	var args []any
	if status != nil {
		query += ` WHERE s.status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY s.id ASC`

	return r.query(ctx, query, args...)
}

// ListPendingCreatedBefore finds pending requests nobody answered since cutoff.
func (r *SQLSessionRepository) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Session, error) {
	return r.query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions s
		JOIN dining_tables t ON t.id = s.table_id
		WHERE s.status = ? AND s.created_at < ?
		ORDER BY s.id ASC`,
		string(domain.SessionStatusPending), cutoff,
	)
}

func (r *SQLSessionRepository) query(ctx context.Context, query string, args ...any) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s          domain.Session
		status     string
		start, end sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.TableID, &s.TableNumber, &s.CustomerName, &status, &start, &end, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	if start.Valid {
		t := start.Time
		s.StartTime = &t
	}
	if end.Valid {
		t := end.Time
		s.EndTime = &t
	}
	return &s, nil
}

func expectOneRow(result sql.Result, id int64, want string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewInvalidStateError("", fmt.Sprintf("session %d is no longer %s", id, want))
	}
	return nil
}
