package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/notify"
	"tableside/internal/order/service"
)

type UpdateOrderStatusUseCase struct {
	ledger           Ledger
	retrier          Retrier
	notifier         Notifier
	logger           *zap.Logger
	maxRetryAttempts int
}

func NewUpdateOrderStatusUseCase(
	ledger Ledger,
	retrier Retrier,
	notifier Notifier,
	logger *zap.Logger,
	maxRetryAttempts int,
) *UpdateOrderStatusUseCase {
	return &UpdateOrderStatusUseCase{
		ledger:           ledger,
		retrier:          retrier,
		notifier:         notifier,
		logger:           logger,
		maxRetryAttempts: maxRetryAttempts,
	}
}

// UpdateStatus moves an order along pending → preparing → ready → served, or
// pending → cancelled, and tells the order's table and the staff.
func (uc *UpdateOrderStatusUseCase) UpdateStatus(ctx context.Context, orderID int64, rawStatus string) (domain.Order, error) {
	to, ok := domain.ParseOrderStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if !ok {
		return domain.Order{}, apperrors.NewBadRequestError(apperrors.ReasonUnknownStatus,
			fmt.Sprintf("unknown order status %q", rawStatus))
	}

	var change service.StatusChange
	err := uc.retrier.WithRetry(ctx, uc.maxRetryAttempts, uc.logger, func(ctx context.Context) error {
		var err error
		change, err = uc.ledger.ChangeStatus(ctx, orderID, to)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	uc.logger.Info("order status changed",
		zap.Int64("orderId", orderID),
		zap.String("from", string(change.From)),
		zap.String("to", string(to)),
	)

	event := dto.OrderUpdateEvent{
		OrderID:   change.Order.ID,
		SessionID: change.Order.SessionID,
		Status:    string(change.Order.Status),
	}
	uc.notifier.Publish(notify.TableGroup(change.TableID), notify.EventOrderUpdate, event)
	uc.notifier.Publish(notify.GroupStaff, notify.EventOrderUpdate, event)
	uc.notifier.Publish(notify.GroupKitchen, notify.EventOrderUpdate, event)

	return change.Order, nil
}
