package domain

import (
	"context"

	orderdomain "github.com/harvestline/storefront/internal/order/domain"
)

// Service dispatches order notifications. Every method is best-effort: a
// delivery failure is recorded on the alert row and logged, never returned to
// the reconciliation transaction that triggered it.
type Service interface {
	// NewOrderAlert notifies admins that an order moved to paid.
	NewOrderAlert(ctx context.Context, order *orderdomain.Order)
	// OrderConfirmationEmail sends the customer their confirmation.
	OrderConfirmationEmail(ctx context.Context, order *orderdomain.Order)
	// StatusChangeAlert notifies customer and admins of a status transition.
	StatusChangeAlert(ctx context.Context, order *orderdomain.Order, from, to orderdomain.OrderStatus)
	// LabelFollowUpAlert flags a shipping label that needs manual follow-up.
	LabelFollowUpAlert(ctx context.Context, order *orderdomain.Order, reason string)
}
