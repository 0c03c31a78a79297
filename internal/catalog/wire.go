package catalog

import (
	"go.uber.org/zap"

	"tableside/internal/infrastructure/database"
)

type Module struct {
	Service    Service
	Controller *Controller
}

func NewModule(db *database.DB, logger *zap.Logger) *Module {
	svc := NewService(NewSQLRepository(db))
	return &Module{
		Service:    svc,
		Controller: NewController(svc, logger),
	}
}
