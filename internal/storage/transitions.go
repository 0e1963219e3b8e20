package storage

// TransitionTable lists the statuses reachable from each status.
type TransitionTable map[OrderStatus][]OrderStatus

func (t TransitionTable) Allows(from, to OrderStatus) bool {
	for _, next := range t[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StrictTransitions is the opt-in order lifecycle.
var StrictTransitions = TransitionTable{
	StatusPending:    {StatusProcessing, StatusCanceled},
	StatusProcessing: {StatusShipped, StatusCanceled, StatusRefunded},
	StatusShipped:    {StatusDelivered, StatusCanceled, StatusRefunded},
	StatusDelivered:  {StatusRefunded},
	StatusCanceled:   {StatusRefunded},
	StatusRefunded:   {},
}

// PermissiveTransitions accepts any known status from any status.
var PermissiveTransitions = func() TransitionTable {
	table := make(TransitionTable, len(AllStatuses))
	for _, from := range AllStatuses {
		table[from] = append([]OrderStatus(nil), AllStatuses...)
	}
	return table
}()

// cancelBlocked holds the statuses an order can no longer be canceled from.
var cancelBlocked = map[OrderStatus]struct{}{
	StatusDelivered: {},
	StatusCanceled:  {},
	StatusRefunded:  {},
}

// milestoneColumn is the orders column stamped on entering a status.
func milestoneColumn(s OrderStatus) string {
	switch s {
	case StatusProcessing:
		return "approved_at"
	case StatusShipped:
		return "delivered_carrier_date"
	case StatusDelivered:
		return "delivered_customer_date"
	default:
		return ""
	}
}
