package usecase

import (
	"context"
	"fmt"
	"strings"

	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
)

type QueryOrdersUseCase struct {
	orders OrderReader
	items  OrderItemReader
}

func NewQueryOrdersUseCase(orders OrderReader, items OrderItemReader) *QueryOrdersUseCase {
	return &QueryOrdersUseCase{orders: orders, items: items}
}

// ListOrders returns orders oldest first. filter is a comma-separated list of
// statuses; empty means all.
func (uc *QueryOrdersUseCase) ListOrders(ctx context.Context, filter string) ([]dto.OrderDetail, error) {
	statuses, err := ParseStatusFilter(filter)
	if err != nil {
		return nil, err
	}

	details, err := uc.orders.ListWithSession(ctx, statuses)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(details))
	for _, d := range details {
		ids = append(ids, d.Order.ID)
	}
	items, err := uc.items.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range details {
		details[i].Items = items[details[i].Order.ID]
	}
	return details, nil
}

// GetSessionOrders returns a session's orders newest first.
func (uc *QueryOrdersUseCase) GetSessionOrders(ctx context.Context, sessionID int64) ([]dto.OrderDetail, error) {
	orders, err := uc.orders.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := uc.items.FindByOrderIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]dto.OrderDetail, 0, len(orders))
	for _, o := range orders {
		details = append(details, dto.OrderDetail{Order: o, Items: items[o.ID]})
	}
	return details, nil
}

func ParseStatusFilter(filter string) ([]domain.OrderStatus, error) {
	if strings.TrimSpace(filter) == "" {
		return nil, nil
	}

	var statuses []domain.OrderStatus
	for _, part := range strings.Split(filter, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		status, ok := domain.ParseOrderStatus(strings.ToLower(part))
		if !ok {
			return nil, apperrors.NewValidationError("invalid status filter", apperrors.ValidationDetail{
				Field:   "status",
				Message: fmt.Sprintf("unknown order status %q", part),
			})
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
