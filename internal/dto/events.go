package dto

import "time"

// Realtime payloads. Field names are part of the client contract.

type NewRequestEvent struct {
	SessionID    int64  `json:"sessionId"`
	TableID      int64  `json:"tableId"`
	TableNumber  int    `json:"tableNumber,omitempty"`
	CustomerName string `json:"customerName"`
	Status       string `json:"status"`
}

type SessionUpdateEvent struct {
	SessionID int64  `json:"sessionId"`
	TableID   int64  `json:"tableId"`
	Status    string `json:"status"`
}

type SessionApprovedEvent struct {
	SessionID int64     `json:"sessionId"`
	Token     string    `json:"token"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type SessionClosedEvent struct {
	SessionID int64  `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

type NewOrderEvent struct {
	Order        OrderResponse       `json:"order"`
	Items        []OrderItemResponse `json:"items"`
	TableID      int64               `json:"tableId"`
	TableNumber  int                 `json:"tableNumber,omitempty"`
	CustomerName string              `json:"customerName"`
}

type OrderUpdateEvent struct {
	OrderID   int64  `json:"orderId"`
	SessionID int64  `json:"sessionId,omitempty"`
	Status    string `json:"status"`
}
