package payment

import (
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/payment/adapters/local"
	"github.com/smallbiznis/carebill/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/internal/payment/repository"
	paymentservice "github.com/smallbiznis/carebill/internal/payment/service"
	"github.com/smallbiznis/carebill/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(provideProviders),
	fx.Provide(provideVerifier),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)

func provideProviders(cfg config.Config, clk clock.Clock, log *zap.Logger) paymentservice.Providers {
	localProvider := local.New(cfg.PublicBaseURL)
	if !cfg.Stripe.Enabled() {
		log.Info("stripe not configured, using local checkout")
		return paymentservice.Providers{Primary: localProvider, Local: localProvider}
	}
	return paymentservice.Providers{
		Primary: stripe.New(cfg.Stripe, clk),
		Local:   localProvider,
	}
}

func provideVerifier(cfg config.Config, clk clock.Clock) paymentdomain.Verifier {
	if cfg.Stripe.WebhookSecret == "" {
		return nil
	}
	return stripe.New(cfg.Stripe, clk)
}
