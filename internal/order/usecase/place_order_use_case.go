package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/notify"
	"tableside/internal/order/service"
	"tableside/internal/validation"
)

type PlaceOrderUseCase struct {
	ledger           Ledger
	retrier          Retrier
	sessions         SessionReader
	catalog          ProductCatalog
	notifier         Notifier
	logger           *zap.Logger
	maxRetryAttempts int
}

func NewPlaceOrderUseCase(
	ledger Ledger,
	retrier Retrier,
	sessions SessionReader,
	catalog ProductCatalog,
	notifier Notifier,
	logger *zap.Logger,
	maxRetryAttempts int,
) *PlaceOrderUseCase {
	return &PlaceOrderUseCase{
		ledger:           ledger,
		retrier:          retrier,
		sessions:         sessions,
		catalog:          catalog,
		notifier:         notifier,
		logger:           logger,
		maxRetryAttempts: maxRetryAttempts,
	}
}

// PlaceOrder records an order for the caller's session. Prices come from the
// catalog; any price the client sent is ignored.
func (uc *PlaceOrderUseCase) PlaceOrder(ctx context.Context, identity domain.Identity, req dto.PlaceOrderRequest) (dto.OrderDetail, error) {
	if identity.Role != domain.RoleCustomer || identity.SessionID <= 0 {
		return dto.OrderDetail{}, apperrors.NewForbiddenError("a customer session credential is required")
	}
	if details := validation.Struct(req); len(details) > 0 {
		return dto.OrderDetail{}, apperrors.NewValidationError("validation failed", details...)
	}

	uc.logger.Info("place order started", zap.Int64("sessionId", identity.SessionID), zap.Int("itemCount", len(req.Items)))

	// Pre-validations outside the transaction.
	session, err := uc.sessions.GetSession(ctx, identity.SessionID)
	if err != nil {
		return dto.OrderDetail{}, err
	}
	if session.Status != domain.SessionStatusActive {
		return dto.OrderDetail{}, apperrors.NewInvalidStateError(string(session.Status),
			fmt.Sprintf("session %d is %s; orders require an active session", session.ID, session.Status))
	}
	if session.TableID != identity.TableID {
		return dto.OrderDetail{}, apperrors.NewForbiddenError("credential does not belong to this session's table")
	}

	items, err := uc.priceItems(ctx, req.Items)
	if err != nil {
		return dto.OrderDetail{}, err
	}

	// Lines are written in productId order so concurrent orders touch rows in
	// the same sequence.
	sort.SliceStable(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	var (
		order domain.Order
		saved []domain.OrderItem
	)
	err = uc.retrier.WithRetry(ctx, uc.maxRetryAttempts, uc.logger, func(ctx context.Context) error {
		var err error
		order, saved, err = uc.ledger.CreateOrder(ctx, session.ID, identity.TableID, items)
		return err
	})
	if err != nil {
		uc.logger.Warn("place order failed", zap.Int64("sessionId", session.ID), zap.Error(err))
		return dto.OrderDetail{}, err
	}

	detail := service.Detail(order, saved, *session)
	resp := dto.NewOrderResponse(detail)
	event := dto.NewOrderEvent{
		Order:        resp,
		Items:        resp.Items,
		TableID:      detail.TableID,
		TableNumber:  detail.TableNumber,
		CustomerName: detail.CustomerName,
	}
	uc.notifier.Publish(notify.GroupStaff, notify.EventNewOrder, event)
	uc.notifier.Publish(notify.GroupKitchen, notify.EventNewOrder, event)

	return detail, nil
}

// priceItems resolves every line against the catalog before anything is
// written.
func (uc *PlaceOrderUseCase) priceItems(ctx context.Context, lines []dto.PlaceOrderItem) ([]domain.OrderItem, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}

	products, err := uc.catalog.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, 0, len(lines))
	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, apperrors.NewBadRequestError(apperrors.ReasonProductNotFound,
				fmt.Sprintf("product %d not found", line.ProductID))
		}
		if !product.Available {
			return nil, apperrors.NewBadRequestError(apperrors.ReasonProductUnavailable,
				fmt.Sprintf("product %d (%s) is unavailable", product.ID, product.Name))
		}
		items = append(items, domain.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			PriceAtTime: product.Price,
			Notes:       strings.TrimSpace(line.Notes),
		})
	}
	return items, nil
}
