package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/refund"

	"github.com/example/ride-ops/internal/observability"
)

// Refunder reverses a captured payment.
type Refunder interface {
	Refund(ctx context.Context, paymentIntentID string) (string, error)
}

// StripeClient is a thin wrapper around stripe-go for refunds.
type StripeClient struct{}

// NewStripeClient sets the package-level stripe key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// Refund issues a full refund of a PaymentIntent and returns the refund ID.
func (s *StripeClient) Refund(ctx context.Context, paymentIntentID string) (id string, err error) {
	defer func() { observability.ProviderCalls.WithLabelValues("stripe", observability.Outcome(err)).Inc() }()
	params := &stripe.RefundParams{PaymentIntent: stripe.String(paymentIntentID)}
	params.Context = ctx
	r, err := refund.New(params)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}
