package reconcile

import (
	"context"
	"errors"
	"fmt"

	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	"github.com/harvestline/storefront/internal/square"
	"github.com/harvestline/storefront/pkg/db"
	"go.uber.org/zap"
)

// backfillOrder materializes a local order from Square's orders API. It is
// the only path that creates orders from webhook traffic, reserved for
// payment and fulfillment events whose order genuinely exists on the
// provider but was never recorded locally (POS sales, lost checkout writes).
// Returns a transient error when the API is unreachable so the event is
// redelivered.
func (s *Service) backfillOrder(ctx context.Context, externalOrderID, syncReason string) (*orderdomain.Order, error) {
	remote, err := s.squareAPI.RetrieveOrder(ctx, externalOrderID)
	if err != nil {
		if errors.Is(err, square.ErrOrderNotFound) {
			s.log.Warn("backfill refused, provider does not know the order",
				zap.String("external_order_id", externalOrderID))
			return nil, nil
		}
		return nil, fmt.Errorf("retrieve order for backfill: %w", err)
	}

	extID := remote.ID
	reason := syncReason
	ord := &orderdomain.Order{
		ID:              s.genID.Generate(),
		ExternalOrderID: &extID,
		Channel:         orderdomain.ChannelPOS,
		Status:          square.OrderStatusFromState(remote.State),
		PaymentStatus:   orderdomain.PaymentStatusPending,
		TotalAmount:     remote.TotalMoney.Amount,
		CustomerName:    orderdomain.PlaceholderName,
		CustomerEmail:   orderdomain.PlaceholderEmail,
		CustomerPhone:   orderdomain.PlaceholderPhone,
		FulfillmentType: backfillFulfillmentType(remote),
		Source:          orderdomain.SourceSquareAPI,
		SyncReason:      &reason,
		CreatedAt:       s.clock.Now(),
		UpdatedAt:       s.clock.Now(),
	}

	err = db.WithRetry(ctx, s.log, func(ctx context.Context) error {
		createErr := s.orders.Create(ctx, s.db, ord)
		if createErr != nil && db.IsDuplicateKeyErr(createErr) {
			// Another webhook raced us to the same backfill; adopt its row.
			existing, findErr := s.orders.FindByExternalID(ctx, s.db, externalOrderID)
			if findErr != nil {
				return findErr
			}
			if existing != nil {
				ord = existing
				return nil
			}
		}
		return createErr
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("backfilled order from provider API",
		zap.String("external_order_id", externalOrderID),
		zap.String("order_id", ord.ID.String()),
		zap.String("sync_reason", syncReason))
	return ord, nil
}

func backfillFulfillmentType(remote *square.Order) orderdomain.FulfillmentType {
	if len(remote.Fulfillments) == 0 {
		return orderdomain.FulfillmentPickup
	}
	return square.FulfillmentTypeFromSquare(remote.Fulfillments[0].Type)
}
