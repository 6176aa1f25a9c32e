package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/harvestline/storefront/internal/alert/domain"
	"github.com/harvestline/storefront/internal/clock"
	"github.com/harvestline/storefront/internal/config"
	obsmetrics "github.com/harvestline/storefront/internal/observability/metrics"
	orderdomain "github.com/harvestline/storefront/internal/order/domain"
	"github.com/harvestline/storefront/internal/providers/email"
	"github.com/harvestline/storefront/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const dispatchTimeout = 30 * time.Second

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Mail    email.Provider
	Slack   slack.Provider
	Cfg     config.Config
	Notify  *config.NotifyConfigHolder
	Clock   clock.Clock
	Metrics *obsmetrics.Metrics `optional:"true"`
}

// Service persists an audit row for every outbound notification and
// delivers it through the configured providers. It is constructed and
// injected explicitly; no global client state.
type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         domain.Repository
	mail         email.Provider
	slack        slack.Provider
	slackChannel string
	notify       *config.NotifyConfigHolder
	clock        clock.Clock
	metrics      *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("alert.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		mail:         p.Mail,
		slack:        p.Slack,
		slackChannel: p.Cfg.Slack.Channel,
		notify:       p.Notify,
		clock:        p.Clock,
		metrics:      p.Metrics,
	}
}

func (s *Service) NewOrderAlert(ctx context.Context, order *orderdomain.Order) {
	subject := fmt.Sprintf("New paid order %s", orderRef(order))
	body := fmt.Sprintf("Order %s is paid: total %s, gratuity %s, fulfillment %s.",
		orderRef(order), cents(order.TotalAmount), cents(order.GratuityAmount), order.FulfillmentType)

	for _, recipient := range s.notify.Get().AdminRecipients {
		s.dispatch(ctx, &domain.Alert{
			OrderID:   order.ID,
			Type:      domain.AlertTypeNewOrder,
			Priority:  domain.AlertPriorityHigh,
			Channel:   domain.AlertChannelEmail,
			Recipient: recipient,
			Subject:   subject,
			Body:      body,
		})
	}
	s.dispatch(ctx, &domain.Alert{
		OrderID:   order.ID,
		Type:      domain.AlertTypeNewOrder,
		Priority:  domain.AlertPriorityHigh,
		Channel:   domain.AlertChannelSlack,
		Recipient: s.slackChannel,
		Subject:   subject,
		Body:      body,
	})
}

func (s *Service) OrderConfirmationEmail(ctx context.Context, order *orderdomain.Order) {
	if order.CustomerEmail == "" || order.CustomerEmail == orderdomain.PlaceholderEmail {
		s.log.Info("skipping confirmation email, no customer address",
			zap.String("order_id", order.ID.String()))
		return
	}
	s.dispatch(ctx, &domain.Alert{
		OrderID:   order.ID,
		Type:      domain.AlertTypeOrderConfirmation,
		Priority:  domain.AlertPriorityNormal,
		Channel:   domain.AlertChannelEmail,
		Recipient: order.CustomerEmail,
		Subject:   fmt.Sprintf("Your order %s is confirmed", orderRef(order)),
		Body: fmt.Sprintf("Thanks %s! We received your payment of %s and are getting your order ready.",
			order.CustomerName, cents(order.TotalAmount)),
	})
}

func (s *Service) StatusChangeAlert(ctx context.Context, order *orderdomain.Order, from, to orderdomain.OrderStatus) {
	subject := fmt.Sprintf("Order %s is now %s", orderRef(order), to)
	body := fmt.Sprintf("Order %s moved from %s to %s.", orderRef(order), from, to)

	if order.CustomerEmail != "" && order.CustomerEmail != orderdomain.PlaceholderEmail {
		s.dispatch(ctx, &domain.Alert{
			OrderID:   order.ID,
			Type:      domain.AlertTypeStatusChange,
			Priority:  domain.AlertPriorityNormal,
			Channel:   domain.AlertChannelEmail,
			Recipient: order.CustomerEmail,
			Subject:   subject,
			Body:      body,
		})
	}
	s.dispatch(ctx, &domain.Alert{
		OrderID:   order.ID,
		Type:      domain.AlertTypeStatusChange,
		Priority:  domain.AlertPriorityNormal,
		Channel:   domain.AlertChannelSlack,
		Recipient: s.slackChannel,
		Subject:   subject,
		Body:      body,
	})
}

func (s *Service) LabelFollowUpAlert(ctx context.Context, order *orderdomain.Order, reason string) {
	s.dispatch(ctx, &domain.Alert{
		OrderID:   order.ID,
		Type:      domain.AlertTypeLabelFollowUp,
		Priority:  domain.AlertPriorityHigh,
		Channel:   domain.AlertChannelSlack,
		Recipient: s.slackChannel,
		Subject:   fmt.Sprintf("Shipping label needs follow-up for order %s", orderRef(order)),
		Body:      reason,
	})
}

// dispatch persists the alert in PENDING, attempts delivery, and records the
// outcome. Failures are logged and left for the retry sweep; they never
// propagate to the caller.
func (s *Service) dispatch(ctx context.Context, alert *domain.Alert) {
	ctx, cancel := context.WithTimeout(withoutCancel(ctx), dispatchTimeout)
	defer cancel()

	alert.ID = s.genID.Generate()
	alert.Status = domain.AlertStatusPending
	if err := s.repo.Create(ctx, s.db, alert); err != nil {
		s.log.Error("failed to persist alert", zap.Error(err),
			zap.String("type", string(alert.Type)))
		return
	}

	s.attempt(ctx, alert)
}

// attempt delivers one alert and updates its row. Shared by the initial
// dispatch and the retry sweep.
func (s *Service) attempt(ctx context.Context, alert *domain.Alert) {
	messageID, err := s.deliver(ctx, alert)
	now := s.clock.Now()
	if err != nil {
		alert.Status = domain.AlertStatusFailed
		alert.LastError = err.Error()
		alert.RetryCount++
		next := now.Add(s.backoff(alert.RetryCount))
		alert.NextAttemptAt = &next
		s.metrics.RecordAlert(string(alert.Type), "failed")
		s.log.Warn("alert delivery failed",
			zap.String("type", string(alert.Type)),
			zap.String("recipient", alert.Recipient),
			zap.Int("retry_count", alert.RetryCount),
			zap.Error(err),
		)
	} else {
		alert.Status = domain.AlertStatusSent
		alert.ProviderMessageID = messageID
		alert.LastError = ""
		alert.NextAttemptAt = nil
		s.metrics.RecordAlert(string(alert.Type), "sent")
	}

	if err := s.repo.Update(ctx, s.db, alert); err != nil {
		s.log.Error("failed to record alert outcome", zap.Error(err))
	}
}

func (s *Service) deliver(ctx context.Context, alert *domain.Alert) (string, error) {
	switch alert.Channel {
	case domain.AlertChannelSlack:
		if err := s.slack.PostMessage(ctx, alert.Recipient, alert.Subject+"\n"+alert.Body); err != nil {
			return "", err
		}
		return "", nil
	default:
		return s.mail.Send(ctx, []string{alert.Recipient}, alert.Subject, alert.Body)
	}
}

// backoff returns base * 2^(retryCount-1), capped.
func (s *Service) backoff(retryCount int) time.Duration {
	cfg := s.notify.Get()
	delay := cfg.RetryBase
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= cfg.RetryCap {
			return cfg.RetryCap
		}
	}
	if delay > cfg.RetryCap {
		return cfg.RetryCap
	}
	return delay
}

func orderRef(order *orderdomain.Order) string {
	if order.ExternalOrderID != nil && *order.ExternalOrderID != "" {
		return *order.ExternalOrderID
	}
	return order.ID.String()
}

func cents(amount int64) string {
	return fmt.Sprintf("$%d.%02d", amount/100, amount%100)
}

// withoutCancel detaches the dispatch from the request context so an aborted
// webhook delivery does not abandon a notification mid-send.
func withoutCancel(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
