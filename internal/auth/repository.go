package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
	"tableside/internal/infrastructure/database"
)

type SQLUserRepository struct {
	db *database.DB
}

func NewSQLUserRepository(db *database.DB) *SQLUserRepository {
	return &SQLUserRepository{db: db}
}

func (r *SQLUserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := r.db.Rebind(`
		SELECT id, username, password_hash, role
		FROM users
		WHERE username = ?
	`)

	var (
		user domain.User
		role string
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("user %s not found", username))
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}
	user.Role = domain.Role(role)

	return &user, nil
}
