package domain

import (
	"math"
	"time"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady},
	OrderStatusReady:     {OrderStatusServed},
}

// ParseOrderStatus reports whether s names a known order status.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusPreparing, OrderStatusReady, OrderStatusServed, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

// CanTransition reports whether an order may move from one status to the next.
// served and cancelled are terminal.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

type Order struct {
	ID          int64
	SessionID   int64
	Status      OrderStatus
	TotalAmount float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type OrderItem struct {
	ID          int64
	OrderID     int64
	ProductID   int64
	ProductName string
	Quantity    int
	PriceAtTime float64
	Notes       string
}

func (i OrderItem) Subtotal() float64 {
	return i.PriceAtTime * float64(i.Quantity)
}

// OrderTotal sums price × quantity over items, rounded to cents.
func OrderTotal(items []OrderItem) float64 {
	total := 0.0
	for _, item := range items {
		total += item.Subtotal()
	}
	return RoundMoney(total)
}

func RoundMoney(amount float64) float64 {
	return math.Round(amount*100) / 100
}
