package auth

import (
	"go.uber.org/zap"

	"tableside/internal/config"
	"tableside/internal/infrastructure/database"
)

type Module struct {
	Controller *Controller
	Middleware *Middleware
	Tokens     *TokenService
}

func NewModule(db *database.DB, cfg config.AuthConfig, logger *zap.Logger) *Module {
	tokens := NewTokenService(cfg.JWTSecret, cfg.SessionTTL, cfg.StaffTTL)
	users := NewSQLUserRepository(db)
	login := NewLoginService(users, tokens, logger)

	return &Module{
		Controller: NewController(login, logger),
		Middleware: NewMiddleware(tokens, logger),
		Tokens:     tokens,
	}
}
