package reconcile

import (
	"context"
	"encoding/json"

	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	"github.com/harvestline/storefront/internal/square"
	"github.com/harvestline/storefront/pkg/db"
	"go.uber.org/zap"
)

// handleOrderCreated links a checkout-created order to its provider state.
// Webhooks never create a primary order: if the external ID is unknown the
// event is acknowledged and dropped, trusting checkout to have created (or to
// soon create) the row.
func (s *Service) handleOrderCreated(ctx context.Context, evt *square.Event, raw []byte) (Disposition, error) {
	var obj square.OrderCreatedObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		s.log.Warn("malformed order.created object", zap.String("event_id", evt.EventID), zap.Error(err))
		return DispositionSkipped, nil
	}
	externalID := firstNonEmpty(obj.OrderCreated.OrderID, evt.Data.ID)

	ord, err := s.findOrder(ctx, externalID)
	if err != nil {
		return DispositionSkipped, err
	}
	if ord == nil {
		s.log.Info("order.created for unknown order, awaiting checkout",
			zap.String("external_order_id", externalID))
		return DispositionSkipped, nil
	}
	if ord.SeenEvent(evt.EventID) {
		return DispositionDuplicate, nil
	}
	if ord.Channel == orderdomain.ChannelCatering {
		// The catering pipeline manages its own Square correlation; its
		// orders share the merchant webhook stream but must not be touched
		// here.
		return DispositionSkipped, nil
	}

	ord.Status = square.OrderStatusFromState(obj.OrderCreated.State)
	stampOrder(ord, evt, raw)
	if err := s.updateOrder(ctx, ord); err != nil {
		return DispositionSkipped, err
	}
	return DispositionApplied, nil
}

// handleOrderUpdated applies only terminal provider states. Non-terminal
// computed statuses are deliberately not written: the payment and fulfillment
// events carry finer-grained status and must not be clobbered by the coarse
// order state.
func (s *Service) handleOrderUpdated(ctx context.Context, evt *square.Event, raw []byte) (Disposition, error) {
	var obj square.OrderUpdatedObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		s.log.Warn("malformed order.updated object", zap.String("event_id", evt.EventID), zap.Error(err))
		return DispositionSkipped, nil
	}
	externalID := firstNonEmpty(obj.OrderUpdated.OrderID, evt.Data.ID)

	ord, err := s.findOrder(ctx, externalID)
	if err != nil {
		return DispositionSkipped, err
	}
	if ord == nil {
		// Wait for order.created; the provider will redeliver interleaved
		// updates and the terminal check is order-insensitive.
		s.log.Info("order.updated for unknown order, waiting",
			zap.String("external_order_id", externalID))
		return DispositionSkipped, nil
	}
	if ord.SeenEvent(evt.EventID) {
		return DispositionDuplicate, nil
	}
	if ord.Channel == orderdomain.ChannelCatering {
		return DispositionSkipped, nil
	}

	target := square.OrderStatusFromState(obj.OrderUpdated.State)
	if !target.IsTerminal() {
		return DispositionSkipped, nil
	}
	if target == ord.Status {
		return DispositionSkipped, nil
	}

	prev := ord.Status
	ord.Status = target
	if target == orderdomain.OrderStatusCancelled {
		ord.PaymentStatus = orderdomain.PaymentStatusRefunded
	}
	stampOrder(ord, evt, raw)
	if err := s.updateOrder(ctx, ord); err != nil {
		return DispositionSkipped, err
	}

	// After the write committed; a notification failure never unwinds the
	// transition.
	s.alerts.StatusChangeAlert(ctx, ord, prev, target)
	return DispositionApplied, nil
}

// handleFulfillmentUpdated maps the fulfillment sub-state onto order status.
// Orders created through point-of-sale never pass the storefront checkout, so
// an unknown order here is materialized from the Square API before applying
// the update; if backfill fails the event is deferred for redelivery rather
// than dropped.
func (s *Service) handleFulfillmentUpdated(ctx context.Context, evt *square.Event, raw []byte) (Disposition, error) {
	var obj square.OrderFulfillmentUpdatedObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		s.log.Warn("malformed fulfillment object", zap.String("event_id", evt.EventID), zap.Error(err))
		return DispositionSkipped, nil
	}
	fu := obj.OrderFulfillmentUpdated
	externalID := firstNonEmpty(fu.OrderID, evt.Data.ID)

	state := fu.State
	if n := len(fu.Updates); n > 0 {
		state = fu.Updates[n-1].NewState
	}
	target, ok := square.OrderStatusFromFulfillmentState(state)
	if !ok {
		return DispositionSkipped, nil
	}

	ord, err := s.findOrder(ctx, externalID)
	if err != nil {
		return DispositionSkipped, err
	}
	if ord == nil {
		ord, err = s.backfillOrder(ctx, externalID, "fulfillment_update_for_unknown_order")
		if err != nil {
			// Never silently drop a legitimate fulfillment transition.
			return DispositionSkipped, err
		}
		if ord == nil {
			return DispositionSkipped, nil
		}
	}
	if ord.SeenEvent(evt.EventID) {
		return DispositionDuplicate, nil
	}
	if ord.Channel == orderdomain.ChannelCatering {
		return DispositionSkipped, nil
	}
	if ord.Status == target {
		return DispositionSkipped, nil
	}

	ord.Status = target
	stampOrder(ord, evt, raw)
	if err := s.updateOrder(ctx, ord); err != nil {
		return DispositionSkipped, err
	}
	return DispositionApplied, nil
}

func (s *Service) findOrder(ctx context.Context, externalID string) (*orderdomain.Order, error) {
	var ord *orderdomain.Order
	err := db.WithRetry(ctx, s.log, func(ctx context.Context) error {
		var err error
		ord, err = s.orders.FindByExternalID(ctx, s.db, externalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ord, nil
}

func (s *Service) updateOrder(ctx context.Context, ord *orderdomain.Order) error {
	return db.WithRetry(ctx, s.log, func(ctx context.Context) error {
		return s.orders.Update(ctx, s.db, ord)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
