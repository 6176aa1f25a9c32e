package reconcile

import (
	"context"
	"encoding/json"

	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	paymentdomain "github.com/harvestline/storefront/internal/payment/domain"
	"github.com/harvestline/storefront/internal/square"
	"github.com/harvestline/storefront/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// handleRefund serves both refund.created and refund.updated; the two carry
// the same object and converge to the same row. A refund against a payment
// we never recorded is dropped, not deferred, since redelivery would not
// make the payment appear.
func (s *Service) handleRefund(ctx context.Context, evt *square.Event, raw []byte) (Disposition, error) {
	var obj square.RefundObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		s.log.Warn("malformed refund object", zap.String("event_id", evt.EventID), zap.Error(err))
		return DispositionSkipped, nil
	}
	r := obj.Refund

	payRow, err := s.findPayment(ctx, r.PaymentID)
	if err != nil {
		return DispositionSkipped, err
	}
	if payRow == nil {
		s.log.Info("refund for unknown payment, dropping",
			zap.String("external_refund_id", r.ID),
			zap.String("external_payment_id", r.PaymentID))
		return DispositionSkipped, nil
	}

	var refRow *paymentdomain.Refund
	err = db.WithRetry(ctx, s.log, func(ctx context.Context) error {
		var err error
		refRow, err = s.payments.FindRefundByExternalID(ctx, s.db, r.ID)
		return err
	})
	if err != nil {
		return DispositionSkipped, err
	}
	if refRow != nil && refRow.SeenEvent(evt.EventID) {
		return DispositionDuplicate, nil
	}

	target := refundStatusFromState(r.Status)
	if refRow != nil && refRow.Status == target && refRow.Amount == r.AmountMoney.Amount {
		return DispositionSkipped, nil
	}

	row := refRow
	if row == nil {
		row = &paymentdomain.Refund{
			ID:               s.genID.Generate(),
			ExternalRefundID: r.ID,
			PaymentID:        payRow.ID,
		}
	}
	row.Amount = r.AmountMoney.Amount
	row.Status = target
	row.Reason = r.Reason
	stampRefund(row, evt, raw)

	completed := target == paymentdomain.RefundStatusCompleted

	err = db.WithRetry(ctx, s.log, func(ctx context.Context) error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.payments.UpsertRefund(ctx, tx, row); err != nil {
				return err
			}
			if !completed {
				return nil
			}
			// A completed refund propagates to both payment and order. The
			// propagation is idempotent: rows already refunded are left alone.
			if payRow.Status != orderdomain.PaymentStatusRefunded {
				payRow.Status = orderdomain.PaymentStatusRefunded
				stampPayment(payRow, evt, raw)
				if err := s.payments.Upsert(ctx, tx, payRow); err != nil {
					return err
				}
			}
			ord, err := s.orders.FindByID(ctx, tx, payRow.OrderID)
			if err != nil || ord == nil {
				return err
			}
			if ord.PaymentStatus != orderdomain.PaymentStatusRefunded {
				ord.PaymentStatus = orderdomain.PaymentStatusRefunded
				stampOrder(ord, evt, raw)
				return s.orders.Update(ctx, tx, ord)
			}
			return nil
		})
	})
	if err != nil {
		return DispositionSkipped, err
	}
	return DispositionApplied, nil
}

func refundStatusFromState(state string) paymentdomain.RefundStatus {
	switch state {
	case "COMPLETED":
		return paymentdomain.RefundStatusCompleted
	case "REJECTED":
		return paymentdomain.RefundStatusRejected
	case "FAILED":
		return paymentdomain.RefundStatusFailed
	default:
		return paymentdomain.RefundStatusPending
	}
}
