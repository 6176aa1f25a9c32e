// Package square holds the wire types, status vocabulary mapping and API
// client for the Square commerce provider.
package square

import (
	"encoding/json"
	"time"
)

// Webhook event types consumed by the reconciliation engine.
const (
	TypeOrderCreated            = "order.created"
	TypeOrderUpdated            = "order.updated"
	TypeOrderFulfillmentUpdated = "order.fulfillment.updated"
	TypePaymentCreated          = "payment.created"
	TypePaymentUpdated          = "payment.updated"
	TypeRefundCreated           = "refund.created"
	TypeRefundUpdated           = "refund.updated"
)

// Event is the webhook envelope delivered by Square.
type Event struct {
	MerchantID string    `json:"merchant_id"`
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	CreatedAt  time.Time `json:"created_at"`
	Data       EventData `json:"data"`
}

type EventData struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Object json.RawMessage `json:"object"`
}

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// OrderStateSummary is the slim order reference carried by order.created
// and order.updated events.
type OrderStateSummary struct {
	OrderID string `json:"order_id"`
	State   string `json:"state"`
	Version int64  `json:"version"`
}

type OrderCreatedObject struct {
	OrderCreated OrderStateSummary `json:"order_created"`
}

type OrderUpdatedObject struct {
	OrderUpdated OrderStateSummary `json:"order_updated"`
}

type FulfillmentStateChange struct {
	FulfillmentUID string `json:"fulfillment_uid"`
	OldState       string `json:"old_state"`
	NewState       string `json:"new_state"`
}

type FulfillmentUpdate struct {
	OrderID string                   `json:"order_id"`
	State   string                   `json:"state"`
	Updates []FulfillmentStateChange `json:"fulfillment_update"`
}

type OrderFulfillmentUpdatedObject struct {
	OrderFulfillmentUpdated FulfillmentUpdate `json:"order_fulfillment_updated"`
}

// Payment is the provider-side payment carried by payment.* events.
type Payment struct {
	ID                string   `json:"id"`
	OrderID           string   `json:"order_id"`
	Status            string   `json:"status"`
	AmountMoney       Money    `json:"amount_money"`
	TipMoney          *Money   `json:"tip_money"`
	BuyerEmailAddress string   `json:"buyer_email_address"`
	BillingAddress    *Address `json:"billing_address"`
	ShippingAddress   *Address `json:"shipping_address"`
}

type PaymentObject struct {
	Payment Payment `json:"payment"`
}

type Refund struct {
	ID          string `json:"id"`
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	AmountMoney Money  `json:"amount_money"`
}

type RefundObject struct {
	Refund Refund `json:"refund"`
}

// Order is the authoritative order returned by the orders API, used by the
// backfill path when a webhook references an order unknown locally.
type Order struct {
	ID           string        `json:"id"`
	State        string        `json:"state"`
	TotalMoney   Money         `json:"total_money"`
	Fulfillments []Fulfillment `json:"fulfillments"`
	Source       OrderSource   `json:"source"`
}

type Fulfillment struct {
	UID   string `json:"uid"`
	Type  string `json:"type"`
	State string `json:"state"`
}

type OrderSource struct {
	Name string `json:"name"`
}
