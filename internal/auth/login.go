package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"tableside/internal/domain"
	apperrors "tableside/internal/errors"
)

type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
}

type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      domain.User
}

type LoginService struct {
	users  UserRepository
	tokens *TokenService
	logger *zap.Logger
}

func NewLoginService(users UserRepository, tokens *TokenService, logger *zap.Logger) *LoginService {
	return &LoginService{users: users, tokens: tokens, logger: logger}
}

// Login checks a staff user's password and issues a staff token. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *LoginService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			return nil, apperrors.NewUnauthorizedError("invalid credentials")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login rejected", zap.String("username", username))
		return nil, apperrors.NewUnauthorizedError("invalid credentials")
	}

	if !user.Role.IsStaff() {
		return nil, apperrors.NewForbiddenError("account has no staff role")
	}

	token, expiresAt, err := s.tokens.IssueStaffToken(*user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("staff logged in", zap.String("username", user.Username), zap.String("role", string(user.Role)))

	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
