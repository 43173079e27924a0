package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks the lifecycle of a storefront order on the backend.
type OrderStatus string

const (
	OrderStatusNew      OrderStatus = "NEW"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusShipped  OrderStatus = "SHIPPED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusCanceled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusShipped || s == OrderStatusCanceled
}

// ParseOrderStatus converts raw input into an OrderStatus. Matching is
// case-insensitive since the backend and users disagree on casing.
func ParseOrderStatus(value string) (OrderStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validOrderStatuses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
