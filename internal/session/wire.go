package session

import (
	"go.uber.org/zap"

	"tableside/internal/config"
	"tableside/internal/infrastructure/database"
	"tableside/internal/session/controller"
	"tableside/internal/session/repository"
	"tableside/internal/session/service"
)

type Module struct {
	Registry   *service.Registry
	Controller *controller.SessionController
}

func NewModule(
	db *database.DB,
	cfg *config.Config,
	issuer service.CredentialIssuer,
	notifier service.Notifier,
	logger *zap.Logger,
) *Module {
	registry := service.NewRegistry(
		db,
		repository.NewSQLSessionRepository(db),
		repository.NewSQLTableRepository(db),
		issuer,
		notifier,
		logger.Named("sessions"),
		cfg.Session.TxTimeout,
		cfg.Session.MaxRetryAttempts,
	)

	return &Module{
		Registry:   registry,
		Controller: controller.NewSessionController(registry, cfg.Server.PublicBaseURL, logger),
	}
}
