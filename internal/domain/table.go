package domain

type Table struct {
	ID               int64
	Number           int
	QRCode           string
	CurrentSessionID *int64
}

func (t Table) IsOccupied() bool {
	return t.CurrentSessionID != nil
}
