package domain

import "time"

type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
)

func ParseSessionStatus(s string) (SessionStatus, bool) {
	switch st := SessionStatus(s); st {
	case SessionStatusPending, SessionStatusActive, SessionStatusClosed:
		return st, true
	}
	return "", false
}

// Session is one customer's claim on a table. A table has at most one
// pending or active session at any time; closed is terminal.
type Session struct {
	ID           int64
	TableID      int64
	TableNumber  int
	CustomerName string
	Status       SessionStatus
	StartTime    *time.Time
	EndTime      *time.Time
	CreatedAt    time.Time
}

func (s Session) IsOpen() bool {
	return s.Status == SessionStatusPending || s.Status == SessionStatusActive
}
