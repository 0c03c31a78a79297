package seed

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"tableside/internal/auth"
	"tableside/internal/domain"
	"tableside/internal/infrastructure/database"
)

type Fixtures struct {
	Tables     []int      `yaml:"tables"`
	Categories []Category `yaml:"categories"`
	Users      []User     `yaml:"users"`
}

type Category struct {
	Name      string    `yaml:"name"`
	SortOrder int       `yaml:"sort_order"`
	Inactive  bool      `yaml:"inactive"`
	Products  []Product `yaml:"products"`
}

type Product struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Unavailable bool    `yaml:"unavailable"`
}

// User passwords are plain text in the fixture file and hashed on load.
type User struct {
	Username string      `yaml:"username"`
	Password string      `yaml:"password"`
	Role     domain.Role `yaml:"role"`
}

type Result struct {
	Tables     int
	Categories int
	Products   int
	Users      int
}

func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}

	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	for _, u := range f.Users {
		switch u.Role {
		case domain.RoleAdmin, domain.RoleStaff, domain.RoleKitchen:
		default:
			return nil, fmt.Errorf("seed user %q has invalid role %q", u.Username, u.Role)
		}
	}

	return &f, nil
}

// Apply writes the fixtures in one transaction. Each section is skipped when
// its table already has rows, so applying twice is harmless.
func Apply(ctx context.Context, db *database.DB, f *Fixtures, logger *zap.Logger) (Result, error) {
	var res Result

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("beginning seed transaction: %w", err)
	}
	defer tx.Rollback()

	empty, err := isEmpty(ctx, tx, "dining_tables")
	if err != nil {
		return res, err
	}
	if empty {
		for _, number := range f.Tables {
			if _, err := db.InsertReturningID(ctx, tx,
				`INSERT INTO dining_tables (table_number, qr_code) VALUES (?, ?)`,
				number, "table-"+strconv.Itoa(number),
			); err != nil {
				return res, fmt.Errorf("seeding table %d: %w", number, err)
			}
			res.Tables++
		}
	}

	empty, err = isEmpty(ctx, tx, "categories")
	if err != nil {
		return res, err
	}
	if empty {
		for _, c := range f.Categories {
			categoryID, err := db.InsertReturningID(ctx, tx,
				`INSERT INTO categories (name, sort_order, is_active) VALUES (?, ?, ?)`,
				c.Name, c.SortOrder, !c.Inactive,
			)
			if err != nil {
				return res, fmt.Errorf("seeding category %s: %w", c.Name, err)
			}
			res.Categories++

			for _, p := range c.Products {
				if _, err := db.InsertReturningID(ctx, tx,
					`INSERT INTO products (category_id, name, description, price, is_available) VALUES (?, ?, ?, ?, ?)`,
					categoryID, p.Name, p.Description, domain.RoundMoney(p.Price), !p.Unavailable,
				); err != nil {
					return res, fmt.Errorf("seeding product %s: %w", p.Name, err)
				}
				res.Products++
			}
		}
	}

	empty, err = isEmpty(ctx, tx, "users")
	if err != nil {
		return res, err
	}
	if empty {
		for _, u := range f.Users {
			hash, err := auth.HashPassword(u.Password)
			if err != nil {
				return res, fmt.Errorf("hashing password for %s: %w", u.Username, err)
			}
			if _, err := db.InsertReturningID(ctx, tx,
				`INSERT INTO users (username, password_hash, role) VALUES (?, ?, ?)`,
				u.Username, hash, string(u.Role),
			); err != nil {
				return res, fmt.Errorf("seeding user %s: %w", u.Username, err)
			}
			res.Users++
		}
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("committing seed: %w", err)
	}

	logger.Info("seed applied",
		zap.Int("tables", res.Tables),
		zap.Int("categories", res.Categories),
		zap.Int("products", res.Products),
		zap.Int("users", res.Users),
	)
	return res, nil
}

func isEmpty(ctx context.Context, q database.Querier, table string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return false, fmt.Errorf("counting %s: %w", table, err)
	}
	return n == 0, nil
}
