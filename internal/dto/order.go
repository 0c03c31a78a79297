package dto

import (
	"time"

	"tableside/internal/domain"
)

type PlaceOrderRequest struct {
	Items []PlaceOrderItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// PlaceOrderItem accepts a price field so older clients keep working, but the
// value is never read: prices always come from the catalog.
type PlaceOrderItem struct {
	ProductID int64    `json:"productId" validate:"required,gt=0"`
	Quantity  int      `json:"quantity" validate:"required,gt=0,max=100"`
	Notes     string   `json:"notes" validate:"max=500"`
	Price     *float64 `json:"price,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type OrderItemResponse struct {
	ID          int64   `json:"id"`
	ProductID   int64   `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	Quantity    int     `json:"quantity"`
	PriceAtTime float64 `json:"priceAtTime"`
	Subtotal    float64 `json:"subtotal"`
	Notes       string  `json:"notes,omitempty"`
}

type OrderResponse struct {
	ID           int64               `json:"id"`
	SessionID    int64               `json:"sessionId"`
	TableID      int64               `json:"tableId,omitempty"`
	TableNumber  int                 `json:"tableNumber,omitempty"`
	CustomerName string              `json:"customerName,omitempty"`
	Status       string              `json:"status"`
	TotalAmount  float64             `json:"totalAmount"`
	Items        []OrderItemResponse `json:"items"`
	CreatedAt    time.Time           `json:"createdAt"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

// OrderDetail is an order with its items and, when known, the table and
// customer of the owning session.
type OrderDetail struct {
	Order        domain.Order
	Items        []domain.OrderItem
	TableID      int64
	TableNumber  int
	CustomerName string
}

func NewOrderItemResponses(items []domain.OrderItem) []OrderItemResponse {
	out := make([]OrderItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			PriceAtTime: item.PriceAtTime,
			Subtotal:    domain.RoundMoney(item.Subtotal()),
			Notes:       item.Notes,
		})
	}
	return out
}

func NewOrderResponse(d OrderDetail) OrderResponse {
	return OrderResponse{
		ID:           d.Order.ID,
		SessionID:    d.Order.SessionID,
		TableID:      d.TableID,
		TableNumber:  d.TableNumber,
		CustomerName: d.CustomerName,
		Status:       string(d.Order.Status),
		TotalAmount:  d.Order.TotalAmount,
		Items:        NewOrderItemResponses(d.Items),
		CreatedAt:    d.Order.CreatedAt,
		UpdatedAt:    d.Order.UpdatedAt,
	}
}

func NewOrderResponses(details []OrderDetail) []OrderResponse {
	out := make([]OrderResponse, 0, len(details))
	for _, d := range details {
		out = append(out, NewOrderResponse(d))
	}
	return out
}
