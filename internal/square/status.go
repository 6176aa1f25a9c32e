package square

import (
	"strings"

	orderdomain "github.com/harvestline/storefront/internal/order/domain"
)

// OrderStatusFromState maps Square's order state vocabulary to the internal
// order status. OPEN means the order is awaiting payment, so it maps to
// PENDING rather than PROCESSING; PROCESSING is only ever set by an actual
// payment transition. Unknown or missing states fall back to PENDING, the
// safest non-committal status.
func OrderStatusFromState(state string) orderdomain.OrderStatus {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "OPEN":
		return orderdomain.OrderStatusPending
	case "COMPLETED":
		return orderdomain.OrderStatusCompleted
	case "CANCELED", "CANCELLED":
		return orderdomain.OrderStatusCancelled
	case "DRAFT":
		return orderdomain.OrderStatusPending
	default:
		return orderdomain.OrderStatusPending
	}
}

// PaymentStatusFromState maps Square's payment state vocabulary to the
// internal payment status. APPROVED means authorized but not yet captured,
// so it stays PENDING.
func PaymentStatusFromState(state string) orderdomain.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "COMPLETED":
		return orderdomain.PaymentStatusPaid
	case "FAILED", "CANCELED":
		return orderdomain.PaymentStatusFailed
	case "REFUNDED":
		return orderdomain.PaymentStatusRefunded
	case "PENDING", "APPROVED":
		return orderdomain.PaymentStatusPending
	default:
		return orderdomain.PaymentStatusPending
	}
}

// OrderStatusFromFulfillmentState maps a fulfillment sub-state to an order
// status. The second return is false when the sub-state does not resolve to
// any order status; callers skip the write in that case.
func OrderStatusFromFulfillmentState(state string) (orderdomain.OrderStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "PROPOSED", "RESERVED":
		return orderdomain.OrderStatusProcessing, true
	case "PREPARED":
		return orderdomain.OrderStatusReady, true
	case "COMPLETED":
		return orderdomain.OrderStatusCompleted, true
	case "CANCELED", "CANCELLED":
		return orderdomain.OrderStatusCancelled, true
	default:
		return "", false
	}
}

// FulfillmentTypeFromSquare maps Square fulfillment types to the storefront's
// descriptor. Unrecognized types default to pickup.
func FulfillmentTypeFromSquare(fulfillmentType string) orderdomain.FulfillmentType {
	switch strings.ToUpper(strings.TrimSpace(fulfillmentType)) {
	case "SHIPMENT":
		return orderdomain.FulfillmentNationwideShipping
	case "DELIVERY":
		return orderdomain.FulfillmentLocalDelivery
	case "PICKUP":
		return orderdomain.FulfillmentPickup
	default:
		return orderdomain.FulfillmentPickup
	}
}
