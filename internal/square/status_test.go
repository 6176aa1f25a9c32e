package square

import (
	"testing"

	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusFromState(t *testing.T) {
	cases := []struct {
		state string
		want  orderdomain.OrderStatus
	}{
		{"OPEN", orderdomain.OrderStatusPending},
		{"open", orderdomain.OrderStatusPending},
		{"COMPLETED", orderdomain.OrderStatusCompleted},
		{"CANCELED", orderdomain.OrderStatusCancelled},
		{"CANCELLED", orderdomain.OrderStatusCancelled},
		{"DRAFT", orderdomain.OrderStatusPending},
		{"", orderdomain.OrderStatusPending},
		{"SOMETHING_NEW", orderdomain.OrderStatusPending},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OrderStatusFromState(tc.state), "state %q", tc.state)
	}
}

func TestPaymentStatusFromState(t *testing.T) {
	cases := []struct {
		state string
		want  orderdomain.PaymentStatus
	}{
		{"COMPLETED", orderdomain.PaymentStatusPaid},
		{"FAILED", orderdomain.PaymentStatusFailed},
		{"CANCELED", orderdomain.PaymentStatusFailed},
		{"REFUNDED", orderdomain.PaymentStatusRefunded},
		{"PENDING", orderdomain.PaymentStatusPending},
		{"APPROVED", orderdomain.PaymentStatusPending},
		{"", orderdomain.PaymentStatusPending},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, PaymentStatusFromState(tc.state), "state %q", tc.state)
	}
}

func TestOrderStatusFromFulfillmentState(t *testing.T) {
	cases := []struct {
		state string
		want  orderdomain.OrderStatus
		ok    bool
	}{
		{"PROPOSED", orderdomain.OrderStatusProcessing, true},
		{"RESERVED", orderdomain.OrderStatusProcessing, true},
		{"PREPARED", orderdomain.OrderStatusReady, true},
		{"COMPLETED", orderdomain.OrderStatusCompleted, true},
		{"CANCELED", orderdomain.OrderStatusCancelled, true},
		{"UNMAPPED", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := OrderStatusFromFulfillmentState(tc.state)
		assert.Equal(t, tc.ok, ok, "state %q", tc.state)
		assert.Equal(t, tc.want, got, "state %q", tc.state)
	}
}

func TestFulfillmentTypeFromSquare(t *testing.T) {
	assert.Equal(t, orderdomain.FulfillmentNationwideShipping, FulfillmentTypeFromSquare("SHIPMENT"))
	assert.Equal(t, orderdomain.FulfillmentLocalDelivery, FulfillmentTypeFromSquare("DELIVERY"))
	assert.Equal(t, orderdomain.FulfillmentPickup, FulfillmentTypeFromSquare("PICKUP"))
	assert.Equal(t, orderdomain.FulfillmentPickup, FulfillmentTypeFromSquare("FUTURE_TYPE"))
}
