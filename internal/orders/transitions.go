package orders

import (
	"github.com/angelmondragon/minierp-console/pkg/enums"
)

// allowedTransitions is the admin allow-list. The backend stays the authority;
// this only keeps the console from offering or sending impossible moves.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusNew:      {enums.OrderStatusNew, enums.OrderStatusPaid, enums.OrderStatusCanceled},
	enums.OrderStatusPaid:     {enums.OrderStatusPaid, enums.OrderStatusShipped, enums.OrderStatusCanceled},
	enums.OrderStatusShipped:  {enums.OrderStatusShipped},
	enums.OrderStatusCanceled: {enums.OrderStatusCanceled},
}

// AllowedTargets lists the statuses an admin may pick for an order in from,
// including from itself. Unknown statuses allow nothing.
func AllowedTargets(from enums.OrderStatus) []enums.OrderStatus {
	targets := allowedTransitions[from]
	out := make([]enums.OrderStatus, len(targets))
	copy(out, targets)
	return out
}

// CanTransition reports whether from -> to is on the allow-list.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
