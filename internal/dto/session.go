package dto

import (
	"time"

	"tableside/internal/domain"
)

type RequestSessionRequest struct {
	TableID      int64  `json:"tableId" validate:"required,gt=0"`
	CustomerName string `json:"customerName" validate:"required,max=100"`
}

type SessionResponse struct {
	ID           int64      `json:"id"`
	TableID      int64      `json:"tableId"`
	TableNumber  int        `json:"tableNumber,omitempty"`
	CustomerName string     `json:"customerName"`
	Status       string     `json:"status"`
	StartTime    *time.Time `json:"startTime"`
	EndTime      *time.Time `json:"endTime"`
	CreatedAt    time.Time  `json:"createdAt"`
}

func NewSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		TableID:      s.TableID,
		TableNumber:  s.TableNumber,
		CustomerName: s.CustomerName,
		Status:       string(s.Status),
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		CreatedAt:    s.CreatedAt,
	}
}

// ApproveSessionResponse deliberately omits the credential: it is delivered to
// the table group, not to the approving staff member.
type ApproveSessionResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type CloseSessionRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type TableResponse struct {
	ID               int64  `json:"id"`
	Number           int    `json:"tableNumber"`
	QRCode           string `json:"qrCode"`
	CurrentSessionID *int64 `json:"currentSessionId"`
	Occupied         bool   `json:"occupied"`
}

func NewTableResponse(t domain.Table) TableResponse {
	return TableResponse{
		ID:               t.ID,
		Number:           t.Number,
		QRCode:           t.QRCode,
		CurrentSessionID: t.CurrentSessionID,
		Occupied:         t.IsOccupied(),
	}
}
