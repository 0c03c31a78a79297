package order

import (
	"go.uber.org/zap"

	"tableside/internal/config"
	"tableside/internal/infrastructure/database"
	"tableside/internal/order/controller"
	orderrepo "tableside/internal/order/repository"
	"tableside/internal/order/service"
	"tableside/internal/order/usecase"
	sessionrepo "tableside/internal/session/repository"
)

type Module struct {
	PlaceOrder   *usecase.PlaceOrderUseCase
	UpdateStatus *usecase.UpdateOrderStatusUseCase
	Queries      *usecase.QueryOrdersUseCase
	Controller   *controller.OrderController
}

func NewModule(
	db *database.DB,
	cfg *config.Config,
	sessions usecase.SessionReader,
	catalog usecase.ProductCatalog,
	notifier usecase.Notifier,
	logger *zap.Logger,
) *Module {
	logger = logger.Named("orders")
	orderRepo := orderrepo.NewSQLOrderRepository(db)
	orderItemRepo := orderrepo.NewSQLOrderItemRepository(db)

	ledger := service.NewLedgerService(
		db,
		sessionrepo.NewSQLSessionRepository(db),
		orderRepo,
		orderItemRepo,
		logger,
		cfg.Order.TxTimeout,
	)

	placeOrder := usecase.NewPlaceOrderUseCase(ledger, db, sessions, catalog, notifier, logger, cfg.Order.MaxRetryAttempts)
	updateStatus := usecase.NewUpdateOrderStatusUseCase(ledger, db, notifier, logger, cfg.Order.MaxRetryAttempts)
	queries := usecase.NewQueryOrdersUseCase(orderRepo, orderItemRepo)

	return &Module{
		PlaceOrder:   placeOrder,
		UpdateStatus: updateStatus,
		Queries:      queries,
		Controller:   controller.NewOrderController(placeOrder, updateStatus, queries, logger),
	}
}
