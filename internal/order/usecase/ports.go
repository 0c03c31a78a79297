package usecase

import (
	"context"

	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/dto"
	"tableside/internal/order/service"
)

type Ledger interface {
	CreateOrder(ctx context.Context, sessionID, tableID int64, items []domain.OrderItem) (domain.Order, []domain.OrderItem, error)
	ChangeStatus(ctx context.Context, orderID int64, to domain.OrderStatus) (service.StatusChange, error)
}

// Retrier replays fn while the store reports lock contention.
type Retrier interface {
	WithRetry(ctx context.Context, maxAttempts int, logger *zap.Logger, fn func(ctx context.Context) error) error
}

type SessionReader interface {
	GetSession(ctx context.Context, sessionID int64) (*domain.Session, error)
}

type ProductCatalog interface {
	Lookup(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
}

type OrderReader interface {
	ListWithSession(ctx context.Context, statuses []domain.OrderStatus) ([]dto.OrderDetail, error)
	ListBySession(ctx context.Context, sessionID int64) ([]domain.Order, error)
}

type OrderItemReader interface {
	FindByOrderIDs(ctx context.Context, orderIDs []int64) (map[int64][]domain.OrderItem, error)
}

type Notifier interface {
	Publish(group, event string, payload any)
}
