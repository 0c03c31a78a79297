package notify

import (
	"strconv"
	"strings"
)

const (
	GroupStaff = "staff"
	// GroupKitchen shares the staff membership; it only exists so kitchen
	// displays can tell kitchen events from floor events.
	GroupKitchen = "kitchen"

	tableGroupPrefix = "table:"
)

const (
	EventNewRequest      = "new_request"
	EventSessionUpdate   = "session_update"
	EventSessionApproved = "session_approved"
	EventSessionClosed   = "session_closed"
	EventNewOrder        = "new_order"
	EventOrderUpdate     = "order_update"
)

func TableGroup(tableID int64) string {
	return tableGroupPrefix + strconv.FormatInt(tableID, 10)
}

func ParseTableGroup(group string) (int64, bool) {
	if !strings.HasPrefix(group, tableGroupPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(group, tableGroupPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
