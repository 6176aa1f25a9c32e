package email

import "context"

// Provider delivers customer-facing mail. Send returns the provider message
// ID on success so alert audit rows can reference the delivery.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) (string, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) (string, error) {
	return "noop", nil
}
