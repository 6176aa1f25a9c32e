// Package reconcile converges persistent order state with the stream of
// Square webhook events. Deliveries are at-least-once, unordered and
// frequently concurrent; every handler is idempotent through the event-ID
// watermark stamped on each row plus no-op detection against current
// persisted state.
package reconcile

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/harvestline/storefront/internal/alert/domain"
	"github.com/harvestline/storefront/internal/clock"
	"github.com/harvestline/storefront/internal/config"
	"github.com/harvestline/storefront/internal/dedupe"
	"github.com/harvestline/storefront/internal/locks"
	obsmetrics "github.com/harvestline/storefront/internal/observability/metrics"
	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	paymentdomain "github.com/harvestline/storefront/internal/payment/domain"
	"github.com/harvestline/storefront/internal/shipping"
	"github.com/harvestline/storefront/internal/square"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Orders    orderdomain.Repository
	Payments  paymentdomain.Repository
	SquareAPI square.OrderFetcher
	Dedupe    *dedupe.Group
	Locker    *locks.Locker `optional:"true"`
	Alerts    alertdomain.Service
	Labels    shipping.Purchaser
	Clock     clock.Clock
	Cfg       config.Config
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	orders    orderdomain.Repository
	payments  paymentdomain.Repository
	squareAPI square.OrderFetcher
	dedupe    *dedupe.Group
	locker    *locks.Locker
	alerts    alertdomain.Service
	labels    shipping.Purchaser
	clock     clock.Clock
	metrics   *obsmetrics.Metrics

	lockTTL          time.Duration
	labelVerifyDelay time.Duration
}

func New(p Params) *Service {
	return &Service{
		db:               p.DB,
		log:              p.Log.Named("reconcile"),
		genID:            p.GenID,
		orders:           p.Orders,
		payments:         p.Payments,
		squareAPI:        p.SquareAPI,
		dedupe:           p.Dedupe,
		locker:           p.Locker,
		alerts:           p.Alerts,
		labels:           p.Labels,
		clock:            p.Clock,
		metrics:          p.Metrics,
		lockTTL:          p.Cfg.DedupeTTL,
		labelVerifyDelay: p.Cfg.LabelVerifyDelay,
	}
}

// Handle dispatches one webhook event to its handler. raw is the undecoded
// request body, stored as the audit payload alongside the watermark. A
// non-nil error signals a transient failure: the transport should answer
// with a retryable status so Square redelivers.
func (s *Service) Handle(ctx context.Context, evt *square.Event, raw []byte) (Disposition, error) {
	start := time.Now()
	disp, err := s.dispatch(ctx, evt, raw)
	s.metrics.ObserveHandleDuration(evt.Type, time.Since(start))
	s.metrics.RecordWebhookEvent(evt.Type, string(disp))

	log := s.log.With(
		zap.String("event_id", evt.EventID),
		zap.String("event_type", evt.Type),
		zap.String("disposition", string(disp)),
	)
	if err != nil {
		log.Warn("event deferred for redelivery", zap.Error(err))
	} else {
		log.Info("event handled")
	}
	return disp, err
}

func (s *Service) dispatch(ctx context.Context, evt *square.Event, raw []byte) (Disposition, error) {
	switch evt.Type {
	case square.TypeOrderCreated:
		return s.handleOrderCreated(ctx, evt, raw)
	case square.TypeOrderUpdated:
		return s.handleOrderUpdated(ctx, evt, raw)
	case square.TypeOrderFulfillmentUpdated:
		return s.handleFulfillmentUpdated(ctx, evt, raw)
	case square.TypePaymentCreated:
		return s.handlePaymentCreated(ctx, evt, raw)
	case square.TypePaymentUpdated:
		return s.handlePaymentUpdated(ctx, evt, raw)
	case square.TypeRefundCreated, square.TypeRefundUpdated:
		return s.handleRefund(ctx, evt, raw)
	default:
		s.log.Info("ignoring unconsumed event type", zap.String("type", evt.Type))
		return DispositionSkipped, nil
	}
}

// stampOrder records the dedup watermark on the order row.
func stampOrder(ord *orderdomain.Order, evt *square.Event, raw []byte) {
	eventID := evt.EventID
	at := evt.CreatedAt.UTC()
	ord.LastEventID = &eventID
	ord.LastEventAt = &at
	ord.RawPayload = raw
}

func stampPayment(p *paymentdomain.Payment, evt *square.Event, raw []byte) {
	eventID := evt.EventID
	at := evt.CreatedAt.UTC()
	p.LastEventID = &eventID
	p.LastEventAt = &at
	p.RawPayload = raw
}

func stampRefund(r *paymentdomain.Refund, evt *square.Event, raw []byte) {
	eventID := evt.EventID
	at := evt.CreatedAt.UTC()
	r.LastEventID = &eventID
	r.LastEventAt = &at
	r.RawPayload = raw
}

var Module = fx.Module("reconcile",
	fx.Provide(New),
)
