// Package local simulates a payment provider for environments without a
// provider account. Sessions are completed through the local checkout route.
package local

import (
	"context"
	"strings"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
)

const (
	ProviderName = "local"

	SessionPrefix = "local_cs_"
	IntentPrefix  = "local_pi_"
	refundPrefix  = "local_re_"
)

type Provider struct {
	baseURL string
}

func New(publicBaseURL string) *Provider {
	return &Provider{baseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (p *Provider) Name() string { return ProviderName }

func (p *Provider) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	ref := SessionPrefix + uuid.NewString()
	return &paymentdomain.CheckoutSession{
		Reference: ref,
		URL:       p.CheckoutURL(ref),
	}, nil
}

func (p *Provider) CheckoutURL(ref string) string {
	return p.baseURL + "/api/v1/payments/local-checkout/" + ref
}

func (p *Provider) Refund(ctx context.Context, payment paymentdomain.Payment) (string, error) {
	return refundPrefix + uuid.NewString(), nil
}

// IntentReference derives the external reference recorded when a local
// session completes, so replays map to the same payment.
func IntentReference(sessionRef string) string {
	return IntentPrefix + strings.TrimSpace(sessionRef)
}
