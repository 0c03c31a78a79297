package testutil

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"tableside/internal/domain"
	"tableside/internal/infrastructure/database"
	"tableside/internal/infrastructure/sqlite"
)

// SetupTestDB opens a migrated SQLite database in a per-test temp dir. It is
// closed automatically when the test ends.
func SetupTestDB(t *testing.T) *database.DB {
	t.Helper()

	sqlDB, err := sqlite.NewConnection(filepath.Join(t.TempDir(), "tableside_test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	db := database.New(sqlDB, database.SQLite)
	if err := database.Migrate(context.Background(), db); err != nil {
		db.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func CreateTable(t *testing.T, db *database.DB, number int) int64 {
	t.Helper()

	id, err := db.InsertReturningID(context.Background(), db,
		`INSERT INTO dining_tables (table_number, qr_code) VALUES (?, ?)`,
		number, "table-"+strconv.Itoa(number),
	)
	if err != nil {
		t.Fatalf("failed to create table %d: %v", number, err)
	}
	return id
}

func CreateCategory(t *testing.T, db *database.DB, name string, sortOrder int, active bool) int64 {
	t.Helper()

	id, err := db.InsertReturningID(context.Background(), db,
		`INSERT INTO categories (name, sort_order, is_active) VALUES (?, ?, ?)`,
		name, sortOrder, active,
	)
	if err != nil {
		t.Fatalf("failed to create category %s: %v", name, err)
	}
	return id
}

func CreateProduct(t *testing.T, db *database.DB, categoryID int64, name string, price float64, available bool) int64 {
	t.Helper()

	var category any
	if categoryID > 0 {
		category = categoryID
	}

	id, err := db.InsertReturningID(context.Background(), db,
		`INSERT INTO products (category_id, name, description, price, is_available) VALUES (?, ?, ?, ?, ?)`,
		category, name, "", price, available,
	)
	if err != nil {
		t.Fatalf("failed to create product %s: %v", name, err)
	}
	return id
}

// CreateSession inserts a session row directly, keeping open_table_id and the
// table's current_session_id consistent with status.
func CreateSession(t *testing.T, db *database.DB, tableID int64, customerName string, status domain.SessionStatus) int64 {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	var openTableID, startTime, endTime any
	switch status {
	case domain.SessionStatusPending:
		openTableID = tableID
	case domain.SessionStatusActive:
		openTableID = tableID
		startTime = now
	case domain.SessionStatusClosed:
		startTime = now
		endTime = now
	}

	id, err := db.InsertReturningID(ctx, db,
		`INSERT INTO sessions (table_id, customer_name, status, open_table_id, start_time, end_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tableID, customerName, string(status), openTableID, startTime, endTime, now,
	)
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	if status == domain.SessionStatusActive {
		if _, err := db.ExecContext(ctx,
			db.Rebind(`UPDATE dining_tables SET current_session_id = ? WHERE id = ?`), id, tableID,
		); err != nil {
			t.Fatalf("failed to occupy table: %v", err)
		}
	}

	return id
}

// BackdateSession moves a session's created_at into the past.
func BackdateSession(t *testing.T, db *database.DB, sessionID int64, age time.Duration) {
	t.Helper()

	_, err := db.ExecContext(context.Background(),
		db.Rebind(`UPDATE sessions SET created_at = ? WHERE id = ?`),
		time.Now().UTC().Add(-age), sessionID,
	)
	if err != nil {
		t.Fatalf("failed to backdate session: %v", err)
	}
}

func CountRows(t *testing.T, db *database.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return n
}

// CreateOrder inserts an order row without items.
func CreateOrder(t *testing.T, db *database.DB, sessionID int64, status domain.OrderStatus, total float64, createdAt time.Time) int64 {
	t.Helper()

	id, err := db.InsertReturningID(context.Background(), db,
		`INSERT INTO orders (session_id, status, total_amount, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, string(status), total, createdAt, createdAt,
	)
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}
	return id
}

func CreateOrderItem(t *testing.T, db *database.DB, orderID, productID int64, quantity int, price float64) int64 {
	t.Helper()

	id, err := db.InsertReturningID(context.Background(), db,
		`INSERT INTO order_items (order_id, product_id, quantity, price_at_time, notes) VALUES (?, ?, ?, ?, ?)`,
		orderID, productID, quantity, price, "",
	)
	if err != nil {
		t.Fatalf("failed to create order item: %v", err)
	}
	return id
}
