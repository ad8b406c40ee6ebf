package webhook

import (
	"context"
	"encoding/json"
	"net/http"

	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	Verifier   paymentdomain.Verifier `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	paymentSvc paymentdomain.Service
	verifier   paymentdomain.Verifier
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		verifier:   p.Verifier,
	}
}

// Ingest authenticates a provider delivery and records it. Deliveries are
// rejected before any state is read when the signature does not verify.
func (s *Service) Ingest(ctx context.Context, payload []byte, headers http.Header) (*paymentdomain.EventResult, error) {
	if s.verifier == nil {
		s.log.Warn("payment webhook received but no webhook secret is configured")
		return nil, paymentdomain.ErrInvalidSignature
	}
	if !json.Valid(payload) {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if err := s.verifier.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("payment webhook signature rejected", zap.Error(err))
		return nil, err
	}

	event, err := s.verifier.Parse(ctx, payload)
	if err != nil {
		return nil, err
	}
	return s.paymentSvc.RecordExternalEvent(ctx, *event)
}
