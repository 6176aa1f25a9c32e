package reconcile

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestline/storefront/internal/clock"
	"github.com/harvestline/storefront/internal/config"
	"github.com/harvestline/storefront/internal/dedupe"
	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	orderrepo "github.com/harvestline/storefront/internal/order/repository"
	paymentdomain "github.com/harvestline/storefront/internal/payment/domain"
	paymentrepo "github.com/harvestline/storefront/internal/payment/repository"
	"github.com/harvestline/storefront/internal/shipping"
	"github.com/harvestline/storefront/internal/square"
	dbpkg "github.com/harvestline/storefront/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeOrderFetcher struct {
	mu     sync.Mutex
	orders map[string]*square.Order
	calls  int
}

func (f *fakeOrderFetcher) RetrieveOrder(ctx context.Context, orderID string) (*square.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	ord, ok := f.orders[orderID]
	if !ok {
		return nil, square.ErrOrderNotFound
	}
	return ord, nil
}

type fakeAlerts struct {
	mu            sync.Mutex
	newOrder      int
	confirmations int
	statusChanges int
	labelFollowUp int
	lastReason    string
}

func (f *fakeAlerts) NewOrderAlert(ctx context.Context, order *orderdomain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newOrder++
}

func (f *fakeAlerts) OrderConfirmationEmail(ctx context.Context, order *orderdomain.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmations++
}

func (f *fakeAlerts) StatusChangeAlert(ctx context.Context, order *orderdomain.Order, from, to orderdomain.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusChanges++
}

func (f *fakeAlerts) LabelFollowUpAlert(ctx context.Context, order *orderdomain.Order, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labelFollowUp++
	f.lastReason = reason
}

type fakePurchaser struct {
	mu     sync.Mutex
	result shipping.Result
	calls  int
}

func (f *fakePurchaser) Purchase(ctx context.Context, orderID, rateID string) shipping.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	fetcher  *fakeOrderFetcher
	alerts   *fakeAlerts
	labels   *fakePurchaser
	orders   orderdomain.Repository
	payments paymentdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbConn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, dbConn.AutoMigrate(
		&orderdomain.Order{},
		&paymentdomain.Payment{},
		&paymentdomain.Refund{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		db:       dbConn,
		fetcher:  &fakeOrderFetcher{orders: map[string]*square.Order{}},
		alerts:   &fakeAlerts{},
		labels:   &fakePurchaser{result: shipping.Result{Success: true, TrackingNumber: "TRK-1", LabelURL: "https://labels/1"}},
		orders:   orderrepo.Provide(),
		payments: paymentrepo.Provide(),
	}
	f.svc = New(Params{
		DB:        dbConn,
		Log:       zap.NewNop(),
		GenID:     node,
		Orders:    f.orders,
		Payments:  f.payments,
		SquareAPI: f.fetcher,
		Dedupe:    dedupe.New(zap.NewNop(), dedupe.Options{TTL: time.Minute}),
		Alerts:    f.alerts,
		Labels:    f.labels,
		Clock:     clock.System(),
		Cfg: config.Config{
			DedupeTTL: time.Minute,
			// Long enough that background verification never fires during a
			// test; the deferred check is exercised directly.
			LabelVerifyDelay: time.Hour,
		},
	})
	return f
}

// resetDedupe simulates deliveries separated by more than the retention TTL.
func (f *fixture) resetDedupe() {
	f.svc.dedupe = dedupe.New(zap.NewNop(), dedupe.Options{TTL: time.Minute})
}

func (f *fixture) seedOrder(t *testing.T, mutate func(*orderdomain.Order)) *orderdomain.Order {
	t.Helper()
	extID := "sq-order-1"
	ord := &orderdomain.Order{
		ID:              f.svc.genID.Generate(),
		ExternalOrderID: &extID,
		Channel:         orderdomain.ChannelStorefront,
		Status:          orderdomain.OrderStatusPending,
		PaymentStatus:   orderdomain.PaymentStatusPending,
		TotalAmount:     4200,
		CustomerName:    "Ada Example",
		CustomerEmail:   "ada@example.com",
		CustomerPhone:   "+15550001111",
		FulfillmentType: orderdomain.FulfillmentPickup,
		Source:          orderdomain.SourceCheckout,
	}
	if mutate != nil {
		mutate(ord)
	}
	require.NoError(t, f.orders.Create(context.Background(), f.db, ord))
	return ord
}

func (f *fixture) reloadOrder(t *testing.T, externalID string) *orderdomain.Order {
	t.Helper()
	ord, err := f.orders.FindByExternalID(context.Background(), f.db, externalID)
	require.NoError(t, err)
	require.NotNil(t, ord)
	return ord
}

func paymentEvent(t *testing.T, eventType, eventID string, p square.Payment) (*square.Event, []byte) {
	t.Helper()
	obj, err := json.Marshal(square.PaymentObject{Payment: p})
	require.NoError(t, err)
	evt := &square.Event{
		MerchantID: "merchant-1",
		Type:       eventType,
		EventID:    eventID,
		CreatedAt:  time.Now().UTC(),
		Data:       square.EventData{Type: "payment", ID: p.ID, Object: obj},
	}
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return evt, raw
}

func orderEvent(t *testing.T, eventType, eventID, orderID, state string) (*square.Event, []byte) {
	t.Helper()
	summary := square.OrderStateSummary{OrderID: orderID, State: state}
	var obj []byte
	var err error
	if eventType == square.TypeOrderCreated {
		obj, err = json.Marshal(square.OrderCreatedObject{OrderCreated: summary})
	} else {
		obj, err = json.Marshal(square.OrderUpdatedObject{OrderUpdated: summary})
	}
	require.NoError(t, err)
	evt := &square.Event{
		MerchantID: "merchant-1",
		Type:       eventType,
		EventID:    eventID,
		CreatedAt:  time.Now().UTC(),
		Data:       square.EventData{Type: "order", ID: orderID, Object: obj},
	}
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return evt, raw
}

func fulfillmentEvent(t *testing.T, eventID, orderID, newState string) (*square.Event, []byte) {
	t.Helper()
	obj, err := json.Marshal(square.OrderFulfillmentUpdatedObject{
		OrderFulfillmentUpdated: square.FulfillmentUpdate{
			OrderID: orderID,
			State:   newState,
			Updates: []square.FulfillmentStateChange{{FulfillmentUID: "f1", OldState: "PROPOSED", NewState: newState}},
		},
	})
	require.NoError(t, err)
	evt := &square.Event{
		MerchantID: "merchant-1",
		Type:       square.TypeOrderFulfillmentUpdated,
		EventID:    eventID,
		CreatedAt:  time.Now().UTC(),
		Data:       square.EventData{Type: "order_fulfillment_updated", ID: orderID, Object: obj},
	}
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return evt, raw
}

func refundEvent(t *testing.T, eventID string, r square.Refund) (*square.Event, []byte) {
	t.Helper()
	obj, err := json.Marshal(square.RefundObject{Refund: r})
	require.NoError(t, err)
	evt := &square.Event{
		MerchantID: "merchant-1",
		Type:       square.TypeRefundCreated,
		EventID:    eventID,
		CreatedAt:  time.Now().UTC(),
		Data:       square.EventData{Type: "refund", ID: r.ID, Object: obj},
	}
	raw, err := json.Marshal(evt)
	require.NoError(t, err)
	return evt, raw
}

func TestPaymentUpdatedAppliesPaidTransition(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, nil)

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200, Currency: "USD"},
		TipMoney:    &square.Money{Amount: 500, Currency: "USD"},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.PaymentStatusPaid, ord.PaymentStatus)
	assert.Equal(t, orderdomain.OrderStatusProcessing, ord.Status)
	assert.Equal(t, int64(500), ord.GratuityAmount)
	require.NotNil(t, ord.LastEventID)
	assert.Equal(t, "evt-1", *ord.LastEventID)

	pay, err := f.payments.FindByExternalID(context.Background(), f.db, "sq-pay-1")
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.Equal(t, orderdomain.PaymentStatusPaid, pay.Status)
	assert.Equal(t, int64(4200), pay.Amount)
	assert.Equal(t, int64(500), pay.TipAmount)

	assert.Equal(t, 1, f.alerts.newOrder)
	assert.Equal(t, 1, f.alerts.confirmations)
}

func TestPaymentUpdatedReplaySameEventIsDuplicate(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, nil)

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, disp)

	f.resetDedupe()
	disp, err = f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, disp)

	assert.Equal(t, 1, f.alerts.newOrder)
	assert.Equal(t, 1, f.alerts.confirmations)
}

func TestPaymentUpdatedNoOpUnderNovelEventID(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, nil)

	p := square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200},
	}

	evt1, raw1 := paymentEvent(t, square.TypePaymentUpdated, "evt-1", p)
	disp, err := f.svc.Handle(context.Background(), evt1, raw1)
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, disp)

	// Same logical content redelivered under a fresh event ID: the watermark
	// cannot catch it, no-op detection must.
	f.resetDedupe()
	evt2, raw2 := paymentEvent(t, square.TypePaymentUpdated, "evt-2", p)
	disp, err = f.svc.Handle(context.Background(), evt2, raw2)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	require.NotNil(t, ord.LastEventID)
	assert.Equal(t, "evt-1", *ord.LastEventID, "a skipped no-op must not advance the watermark")
	assert.Equal(t, 1, f.alerts.newOrder)
	assert.Equal(t, 0, f.labels.calls)
}

func TestPaymentUpdatedConcurrentDeliveriesCoalesce(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, nil)

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200},
	})

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Handle(context.Background(), evt, raw)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.alerts.newOrder, "coalesced deliveries must produce one alert")
	assert.Equal(t, 1, f.alerts.confirmations)
}

func TestPaymentCreatedUnknownOrderNeverFabricates(t *testing.T) {
	f := newFixture(t)

	evt, raw := paymentEvent(t, square.TypePaymentCreated, "evt-1", square.Payment{
		ID:          "sq-pay-9",
		OrderID:     "sq-order-missing",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 100},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)

	ord, err := f.orders.FindByExternalID(context.Background(), f.db, "sq-order-missing")
	require.NoError(t, err)
	assert.Nil(t, ord)
	assert.Equal(t, 0, f.fetcher.calls, "payment.created must not hit the orders API")
}

func TestPaymentUpdatedUnknownOrderBackfillsFromAPI(t *testing.T) {
	f := newFixture(t)
	f.fetcher.orders["sq-order-pos"] = &square.Order{
		ID:         "sq-order-pos",
		State:      "OPEN",
		TotalMoney: square.Money{Amount: 1800},
		Fulfillments: []square.Fulfillment{
			{UID: "f1", Type: "PICKUP", State: "PROPOSED"},
		},
	}

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-pos",
		OrderID:     "sq-order-pos",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 1800},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-pos")
	assert.Equal(t, orderdomain.SourceSquareAPI, ord.Source)
	assert.Equal(t, orderdomain.ChannelPOS, ord.Channel)
	require.NotNil(t, ord.SyncReason)
	assert.Equal(t, "payment_update_for_unknown_order", *ord.SyncReason)
	assert.Equal(t, orderdomain.PaymentStatusPaid, ord.PaymentStatus)
}

func TestPaymentUpdatedBackfillRefusedWhenProviderUnknown(t *testing.T) {
	f := newFixture(t)

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-ghost",
		OrderID:     "sq-order-ghost",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 100},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)

	ord, err := f.orders.FindByExternalID(context.Background(), f.db, "sq-order-ghost")
	require.NoError(t, err)
	assert.Nil(t, ord)
}

func TestPaymentUpdatedBackfillsPlaceholderContact(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.CustomerName = orderdomain.PlaceholderName
		o.CustomerEmail = orderdomain.PlaceholderEmail
		o.CustomerPhone = orderdomain.PlaceholderPhone
	})

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:                "sq-pay-1",
		OrderID:           "sq-order-1",
		Status:            "COMPLETED",
		AmountMoney:       square.Money{Amount: 4200},
		BuyerEmailAddress: "real@example.com",
		BillingAddress:    &square.Address{FirstName: "Grace", LastName: "Hopper"},
		ShippingAddress:   &square.Address{Phone: "+15550002222"},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, "real@example.com", ord.CustomerEmail)
	assert.Equal(t, "Grace Hopper", ord.CustomerName)
	assert.Equal(t, "+15550002222", ord.CustomerPhone)
}

func TestPaymentUpdatedPreservesRealContact(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, nil)

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:                "sq-pay-1",
		OrderID:           "sq-order-1",
		Status:            "COMPLETED",
		AmountMoney:       square.Money{Amount: 4200},
		BuyerEmailAddress: "other@example.com",
		BillingAddress:    &square.Address{FirstName: "Mallory", LastName: "Intruder"},
	})

	_, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, "ada@example.com", ord.CustomerEmail)
	assert.Equal(t, "Ada Example", ord.CustomerName)
}

func TestPaidShippingOrderPurchasesLabelOnce(t *testing.T) {
	f := newFixture(t)
	rateID := "rate-7"
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.FulfillmentType = orderdomain.FulfillmentNationwideShipping
		o.ShippingRateID = &rateID
	})

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, disp)
	assert.Equal(t, 1, f.labels.calls)

	ord := f.reloadOrder(t, "sq-order-1")
	require.NotNil(t, ord.TrackingNumber)
	assert.Equal(t, "TRK-1", *ord.TrackingNumber)
	assert.Equal(t, orderdomain.OrderStatusShipping, ord.Status)

	// Replay under the same and a novel event ID: no second purchase either way.
	f.resetDedupe()
	_, err = f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, 1, f.labels.calls)
}

func TestBlockedLabelPurchaseFlagsMissingTracking(t *testing.T) {
	f := newFixture(t)
	rateID := "rate-7"
	seeded := f.seedOrder(t, func(o *orderdomain.Order) {
		o.FulfillmentType = orderdomain.FulfillmentNationwideShipping
		o.ShippingRateID = &rateID
	})
	f.labels.result = shipping.Result{BlockedByConcurrent: true}

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	require.Equal(t, DispositionApplied, disp)
	assert.Equal(t, 1, f.labels.calls)
	assert.Equal(t, 0, f.alerts.labelFollowUp, "blocked is not a failure")

	// The concurrent owner never produced a label; the deferred check flags it.
	f.svc.VerifyLabel(context.Background(), seeded.ID)
	assert.Equal(t, 1, f.alerts.labelFollowUp)
}

func TestFailedLabelPurchaseAlertsImmediately(t *testing.T) {
	f := newFixture(t)
	rateID := "rate-7"
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.FulfillmentType = orderdomain.FulfillmentNationwideShipping
		o.ShippingRateID = &rateID
	})
	f.labels.result = shipping.Result{Err: shipping.ErrNotConfigured}

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 4200},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp, "a label failure never unwinds the paid transition")
	assert.Equal(t, 1, f.alerts.labelFollowUp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.PaymentStatusPaid, ord.PaymentStatus)
}

func TestCateringPaymentConfirmsWithoutStorefrontAlerts(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.Channel = orderdomain.ChannelCatering
	})

	evt, raw := paymentEvent(t, square.TypePaymentUpdated, "evt-1", square.Payment{
		ID:          "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 90000},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.OrderStatusConfirmed, ord.Status)
	assert.Equal(t, orderdomain.PaymentStatusPaid, ord.PaymentStatus)
	assert.Equal(t, 0, f.alerts.newOrder)
	assert.Equal(t, 0, f.alerts.confirmations)
}

func TestOrderCreatedUnknownOrderIsNotPhantom(t *testing.T) {
	f := newFixture(t)

	evt, raw := orderEvent(t, square.TypeOrderCreated, "evt-1", "sq-order-new", "OPEN")
	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)

	ord, err := f.orders.FindByExternalID(context.Background(), f.db, "sq-order-new")
	require.NoError(t, err)
	assert.Nil(t, ord)
}

func TestOrderUpdatedNonTerminalStateIsNotWritten(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.OrderStatusProcessing
		o.PaymentStatus = orderdomain.PaymentStatusPaid
	})

	evt, raw := orderEvent(t, square.TypeOrderUpdated, "evt-1", "sq-order-1", "OPEN")
	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.OrderStatusProcessing, ord.Status, "coarse order state must not clobber fine-grained status")
	assert.Nil(t, ord.LastEventID)
}

func TestOrderUpdatedCancellationPropagates(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.OrderStatusProcessing
		o.PaymentStatus = orderdomain.PaymentStatusPaid
	})

	evt, raw := orderEvent(t, square.TypeOrderUpdated, "evt-1", "sq-order-1", "CANCELED")
	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.OrderStatusCancelled, ord.Status)
	assert.Equal(t, orderdomain.PaymentStatusRefunded, ord.PaymentStatus)
	assert.Equal(t, 1, f.alerts.statusChanges)
}

func TestFulfillmentUpdateMovesOrderToReady(t *testing.T) {
	f := newFixture(t)
	f.seedOrder(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.OrderStatusProcessing
		o.PaymentStatus = orderdomain.PaymentStatusPaid
	})

	evt, raw := fulfillmentEvent(t, "evt-1", "sq-order-1", "PREPARED")
	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.OrderStatusReady, ord.Status)
}

func TestFulfillmentUpdateUnknownOrderBackfills(t *testing.T) {
	f := newFixture(t)
	f.fetcher.orders["sq-order-pos"] = &square.Order{
		ID:         "sq-order-pos",
		State:      "OPEN",
		TotalMoney: square.Money{Amount: 2500},
	}

	evt, raw := fulfillmentEvent(t, "evt-1", "sq-order-pos", "PREPARED")
	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ord := f.reloadOrder(t, "sq-order-pos")
	assert.Equal(t, orderdomain.SourceSquareAPI, ord.Source)
	assert.Equal(t, orderdomain.OrderStatusReady, ord.Status)
	assert.Equal(t, orderdomain.PlaceholderEmail, ord.CustomerEmail)
}

func TestRefundCompletedPropagatesToPaymentAndOrder(t *testing.T) {
	f := newFixture(t)
	seeded := f.seedOrder(t, func(o *orderdomain.Order) {
		o.Status = orderdomain.OrderStatusProcessing
		o.PaymentStatus = orderdomain.PaymentStatusPaid
	})
	pay := &paymentdomain.Payment{
		ID:                f.svc.genID.Generate(),
		ExternalPaymentID: "sq-pay-1",
		OrderID:           seeded.ID,
		Amount:            4200,
		Status:            orderdomain.PaymentStatusPaid,
	}
	require.NoError(t, f.payments.Upsert(context.Background(), f.db, pay))

	evt, raw := refundEvent(t, "evt-1", square.Refund{
		ID:          "sq-ref-1",
		PaymentID:   "sq-pay-1",
		OrderID:     "sq-order-1",
		Status:      "COMPLETED",
		Reason:      "customer request",
		AmountMoney: square.Money{Amount: 4200},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, disp)

	ref, err := f.payments.FindRefundByExternalID(context.Background(), f.db, "sq-ref-1")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.Equal(t, paymentdomain.RefundStatusCompleted, ref.Status)
	assert.Equal(t, int64(4200), ref.Amount)

	payRow, err := f.payments.FindByExternalID(context.Background(), f.db, "sq-pay-1")
	require.NoError(t, err)
	assert.Equal(t, orderdomain.PaymentStatusRefunded, payRow.Status)

	ord := f.reloadOrder(t, "sq-order-1")
	assert.Equal(t, orderdomain.PaymentStatusRefunded, ord.PaymentStatus)

	// Same event redelivered.
	disp, err = f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionDuplicate, disp)
}

func TestRefundForUnknownPaymentIsDropped(t *testing.T) {
	f := newFixture(t)

	evt, raw := refundEvent(t, "evt-1", square.Refund{
		ID:          "sq-ref-9",
		PaymentID:   "sq-pay-missing",
		Status:      "COMPLETED",
		AmountMoney: square.Money{Amount: 100},
	})

	disp, err := f.svc.Handle(context.Background(), evt, raw)
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)

	ref, err := f.payments.FindRefundByExternalID(context.Background(), f.db, "sq-ref-9")
	require.NoError(t, err)
	assert.Nil(t, ref)
}

func TestUnconsumedEventTypeIsAcknowledged(t *testing.T) {
	f := newFixture(t)

	evt := &square.Event{
		MerchantID: "merchant-1",
		Type:       "catalog.version.updated",
		EventID:    "evt-1",
		CreatedAt:  time.Now().UTC(),
		Data:       square.EventData{Type: "catalog", ID: "x", Object: json.RawMessage(`{}`)},
	}
	disp, err := f.svc.Handle(context.Background(), evt, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, DispositionSkipped, disp)
}
