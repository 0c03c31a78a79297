package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/infrastructure/database"
)

type TransactionManager interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type SessionRepository interface {
	FindByID(ctx context.Context, q database.Querier, id int64) (*domain.Session, error)
	FindByIDForUpdate(ctx context.Context, tx database.Querier, id int64) (*domain.Session, error)
}

type OrderRepository interface {
	Insert(ctx context.Context, tx database.Querier, order domain.Order) (int64, error)
	FindByIDForUpdate(ctx context.Context, tx database.Querier, id int64) (*domain.Order, error)
	UpdateStatus(ctx context.Context, tx database.Querier, id int64, from, to domain.OrderStatus, updatedAt time.Time) error
}

type OrderItemRepository interface {
	Insert(ctx context.Context, tx database.Querier, item domain.OrderItem) (int64, error)
}

// StatusChange is the outcome of a committed order status update.
type StatusChange struct {
	Order   domain.Order
	From    domain.OrderStatus
	TableID int64
}

// LedgerService runs the transactional half of the order ledger. Callers are
// expected to have resolved prices and to retry on lock contention.
type LedgerService struct {
	db            TransactionManager
	sessionRepo   SessionRepository
	orderRepo     OrderRepository
	orderItemRepo OrderItemRepository
	logger        *zap.Logger
	txTimeout     time.Duration
	now           func() time.Time
}

func NewLedgerService(
	db TransactionManager,
	sessionRepo SessionRepository,
	orderRepo OrderRepository,
	orderItemRepo OrderItemRepository,
	logger *zap.Logger,
	txTimeout time.Duration,
) *LedgerService {
	return &LedgerService{
		db:            db,
		sessionRepo:   sessionRepo,
		orderRepo:     orderRepo,
		orderItemRepo: orderItemRepo,
		logger:        logger,
		txTimeout:     txTimeout,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder writes the order and all of its items in one transaction. The
// session row is locked and must still be active and seated at tableID.
func (s *LedgerService) CreateOrder(ctx context.Context, sessionID, tableID int64, items []domain.OrderItem) (domain.Order, []domain.OrderItem, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return domain.Order{}, nil, err
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback()

	session, err := s.sessionRepo.FindByIDForUpdate(txCtx, tx, sessionID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if session.Status != domain.SessionStatusActive {
		return domain.Order{}, nil, apperrors.NewInvalidStateError(string(session.Status),
			fmt.Sprintf("session %d is %s; orders require an active session", sessionID, session.Status))
	}
	if session.TableID != tableID {
		return domain.Order{}, nil, apperrors.NewForbiddenError("credential does not belong to this session's table")
	}

	now := s.now()
	order := domain.Order{
		SessionID:   sessionID,
		Status:      domain.OrderStatusPending,
		TotalAmount: domain.OrderTotal(items),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	order.ID, err = s.orderRepo.Insert(txCtx, tx, order)
	if err != nil {
		s.logger.Error("failed to insert order", zap.Int64("sessionId", sessionID), zap.Error(err))
		return domain.Order{}, nil, err
	}

	saved := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		item.OrderID = order.ID
		item.ID, err = s.orderItemRepo.Insert(txCtx, tx, item)
		if err != nil {
			s.logger.Error("failed to insert order item", zap.Int64("orderId", order.ID), zap.Int64("productId", item.ProductID), zap.Error(err))
			return domain.Order{}, nil, err
		}
		saved = append(saved, item)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", zap.Int64("orderId", order.ID), zap.Error(err))
		return domain.Order{}, nil, err
	}

	s.logger.Info("order committed",
		zap.Int64("orderId", order.ID),
		zap.Int64("sessionId", sessionID),
		zap.Int("itemCount", len(saved)),
		zap.Float64("totalAmount", order.TotalAmount),
	)
	return order, saved, nil
}

// ChangeStatus applies one transition of the order state machine.
func (s *LedgerService) ChangeStatus(ctx context.Context, orderID int64, to domain.OrderStatus) (StatusChange, error) {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(txCtx, nil)
	if err != nil {
		s.logger.Error("failed to begin transaction", zap.Error(err))
		return StatusChange{}, err
	}
	defer tx.Rollback()

	order, err := s.orderRepo.FindByIDForUpdate(txCtx, tx, orderID)
	if err != nil {
		return StatusChange{}, err
	}

	from := order.Status
	if !from.CanTransition(to) {
		return StatusChange{}, apperrors.NewInvalidTransitionError(string(from), string(to))
	}

	now := s.now()
	if err := s.orderRepo.UpdateStatus(txCtx, tx, orderID, from, to, now); err != nil {
		return StatusChange{}, err
	}

	session, err := s.sessionRepo.FindByID(txCtx, tx, order.SessionID)
	if err != nil {
		return StatusChange{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("failed to commit transaction", zap.Int64("orderId", orderID), zap.Error(err))
		return StatusChange{}, err
	}

	order.Status = to
	order.UpdatedAt = now
	return StatusChange{Order: *order, From: from, TableID: session.TableID}, nil
}

// Detail composes the wire view of a freshly created order.
func Detail(order domain.Order, items []domain.OrderItem, session domain.Session) dto.OrderDetail {
	return dto.OrderDetail{
		Order:        order,
		Items:        items,
		TableID:      session.TableID,
		TableNumber:  session.TableNumber,
		CustomerName: session.CustomerName,
	}
}
