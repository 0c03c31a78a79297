package controller

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tableside/internal/auth"
	"tableside/internal/domain"
	"tableside/internal/dto"
	apperrors "tableside/internal/errors"
	"tableside/internal/httpjson"
	"tableside/internal/validation"
)

type PlaceOrderUseCase interface {
	PlaceOrder(ctx context.Context, identity domain.Identity, req dto.PlaceOrderRequest) (dto.OrderDetail, error)
}

type UpdateOrderStatusUseCase interface {
	UpdateStatus(ctx context.Context, orderID int64, status string) (domain.Order, error)
}

type QueryOrdersUseCase interface {
	ListOrders(ctx context.Context, filter string) ([]dto.OrderDetail, error)
	GetSessionOrders(ctx context.Context, sessionID int64) ([]dto.OrderDetail, error)
}

type OrderController struct {
	placeOrder   PlaceOrderUseCase
	updateStatus UpdateOrderStatusUseCase
	queries      QueryOrdersUseCase
	logger       *zap.Logger
}

func NewOrderController(
	placeOrder PlaceOrderUseCase,
	updateStatus UpdateOrderStatusUseCase,
	queries QueryOrdersUseCase,
	logger *zap.Logger,
) *OrderController {
	return &OrderController{
		placeOrder:   placeOrder,
		updateStatus: updateStatus,
		queries:      queries,
		logger:       logger,
	}
}

func (c *OrderController) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httpjson.WriteError(w, logger, traceID, apperrors.NewUnauthorizedError("missing credential"))
		return
	}

	var req dto.PlaceOrderRequest
	if err := httpjson.DecodeJSON(r, &req); err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}
	if details := validation.Struct(req); len(details) > 0 {
		httpjson.WriteValidationError(w, logger, traceID, "validation failed", details...)
		return
	}

	detail, err := c.placeOrder.PlaceOrder(r.Context(), identity, req)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusCreated, dto.NewOrderResponse(detail))
}

func (c *OrderController) ListOrders(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	details, err := c.queries.ListOrders(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, dto.NewOrderResponses(details))
}

func (c *OrderController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	orderID, err := httpjson.PathID(r, "orderId")
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	var req dto.UpdateOrderStatusRequest
	if err := httpjson.DecodeJSON(r, &req); err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}
	if details := validation.Struct(req); len(details) > 0 {
		httpjson.WriteValidationError(w, logger, traceID, "validation failed", details...)
		return
	}

	order, err := c.updateStatus.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, dto.NewOrderResponse(dto.OrderDetail{Order: order}))
}

func (c *OrderController) GetSessionOrders(w http.ResponseWriter, r *http.Request) {
	traceID := uuid.New().String()
	logger := c.logger.With(zap.String("traceId", traceID))

	sessionID, err := httpjson.PathID(r, "sessionId")
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	// Customers may only read their own session.
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Role == domain.RoleCustomer && identity.SessionID != sessionID {
		httpjson.WriteError(w, logger, traceID, apperrors.NewForbiddenError("credential does not belong to this session"))
		return
	}

	details, err := c.queries.GetSessionOrders(r.Context(), sessionID)
	if err != nil {
		httpjson.WriteError(w, logger, traceID, err)
		return
	}

	httpjson.WriteJSON(w, logger, http.StatusOK, dto.NewOrderResponses(details))
}
