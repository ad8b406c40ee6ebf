package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/carebill/internal/apperror"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/payment/adapters/local"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Providers holds the configured processor and the local simulator used for
// fallback sessions and for refunding payments that never touched a provider.
type Providers struct {
	Primary paymentdomain.Provider
	Local   *local.Provider
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	InvoiceSvc invoicedomain.Service
	Providers  Providers
	AuditSvc   auditdomain.Service
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	invoiceSvc invoicedomain.Service
	providers  Providers
	auditSvc   auditdomain.Service
	metrics    *metrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	providers := p.Providers
	if providers.Local == nil {
		providers.Local = local.New("")
	}
	if providers.Primary == nil {
		providers.Primary = providers.Local
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		invoiceSvc: p.InvoiceSvc,
		providers:  providers,
		auditSvc:   p.AuditSvc,
		metrics:    p.Metrics,
	}
}

// errDiscard aborts a recording transaction without treating it as a failure.
type errDiscard struct{ reason string }

func (e *errDiscard) Error() string { return "discarded: " + e.reason }

func (s *Service) RecordManualPayment(ctx context.Context, req paymentdomain.ManualPaymentRequest) (*paymentdomain.Payment, error) {
	if req.Amount <= 0 {
		return nil, apperror.Validation("amount", "must be positive")
	}
	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(string(req.Method))))
	if !method.Manual() {
		return nil, apperror.Validation("method", "must be cash, card or bank_transfer")
	}

	invoice, err := s.invoiceSvc.Resolve(ctx, req.InvoiceRef)
	if err != nil {
		return nil, err
	}
	currency, err := matchCurrency(req.Currency, invoice.Currency)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	received := now
	if req.ReceivedAt != nil {
		received = req.ReceivedAt.UTC()
	}
	raw, err := json.Marshal(map[string]any{
		"method": method,
		"note":   strings.TrimSpace(req.Note),
	})
	if err != nil {
		return nil, err
	}
	payment := &paymentdomain.Payment{
		ID:                s.genID.Generate(),
		InvoiceID:         invoice.ID,
		ExternalReference: "manual_" + ulid.Make().String(),
		Amount:            req.Amount,
		Currency:          currency,
		Status:            paymentdomain.StatusSucceeded,
		Method:            method,
		ReceivedAt:        received,
		RawEvent:          datatypes.JSON(raw),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var outcome *invoicedomain.PaymentOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.invoiceSvc.LockTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if locked.Status == invoicedomain.InvoiceStatusCancelled {
			return apperror.InvalidState("invoice", string(locked.Status), "record_payment")
		}
		inserted, err := s.repo.Insert(ctx, tx, payment)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if !inserted {
			return apperror.AlreadyExists("payment", payment.ExternalReference)
		}
		outcome, err = s.invoiceSvc.ApplyPaymentTx(ctx, tx, invoice.ID, payment.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(ctx, string(method))
	s.audit(ctx, auditdomain.Entry{
		Action:     "payment.record_manual",
		TargetType: "payment",
		TargetID:   payment.ID.String(),
		Details: map[string]any{
			"invoice_id": invoice.ID.String(),
			"amount":     payment.Amount,
			"currency":   payment.Currency,
			"method":     string(method),
			"note":       strings.TrimSpace(req.Note),
		},
	})
	s.announce(ctx, "invoice.apply_payment", outcome)
	return payment, nil
}

// RecordExternalEvent records a provider checkout completion at most once per
// external reference. Events that cannot be attributed to the invoice they
// claim are discarded without mutation.
func (s *Service) RecordExternalEvent(ctx context.Context, event paymentdomain.ExternalEvent) (*paymentdomain.EventResult, error) {
	provider := strings.TrimSpace(event.Provider)
	if provider == "" {
		provider = "unknown"
	}
	result, err := s.recordExternalEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordPaymentEvent(ctx, provider, event.Type, string(result.Outcome))
	if result.Outcome == paymentdomain.OutcomeDiscarded {
		s.log.Warn("payment event discarded",
			zap.String("provider", provider),
			zap.String("event_id", event.ProviderEventID),
			zap.String("external_reference", event.ExternalReference),
			zap.String("reason", result.Reason),
		)
	}
	return result, nil
}

func (s *Service) recordExternalEvent(ctx context.Context, event paymentdomain.ExternalEvent) (*paymentdomain.EventResult, error) {
	if event.Type != paymentdomain.EventTypeCheckoutCompleted {
		return discarded(paymentdomain.DiscardUnsupportedEvent), nil
	}
	reference := strings.TrimSpace(event.ExternalReference)
	if reference == "" {
		return nil, apperror.Validation("external_reference", "is required")
	}

	existing, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if existing != nil {
		return &paymentdomain.EventResult{Outcome: paymentdomain.OutcomeDuplicate, Payment: existing}, nil
	}

	invoice, err := s.targetInvoice(ctx, event)
	if err != nil {
		if apperror.IsNotFound(err) {
			return discarded(paymentdomain.DiscardInvoiceNotFound), nil
		}
		return nil, err
	}
	if reason := sessionMismatch(invoice, event.CheckoutSessionRef); reason != "" {
		return discarded(reason), nil
	}

	currency := strings.ToUpper(strings.TrimSpace(event.Currency))
	if currency == "" {
		currency = invoice.Currency
	}
	amount := event.Amount
	if amount <= 0 {
		amount = invoice.TotalAmount
	}
	method := event.Method
	if method == "" {
		method = paymentdomain.MethodOnline
	}
	received := event.OccurredAt
	if received.IsZero() {
		received = s.clock.Now()
	}
	raw := event.RawPayload
	if !json.Valid(raw) {
		raw = []byte("{}")
	}

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:                s.genID.Generate(),
		InvoiceID:         invoice.ID,
		ExternalReference: reference,
		Amount:            amount,
		Currency:          currency,
		Status:            paymentdomain.StatusSucceeded,
		Method:            method,
		ReceivedAt:        received,
		RawEvent:          datatypes.JSON(raw),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var (
		outcome  *invoicedomain.PaymentOutcome
		inserted bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.invoiceSvc.LockTx(ctx, tx, invoice.ID)
		if err != nil {
			return err
		}
		if reason := sessionMismatch(locked, event.CheckoutSessionRef); reason != "" {
			return &errDiscard{reason: reason}
		}
		if locked.Status == invoicedomain.InvoiceStatusCancelled {
			return &errDiscard{reason: paymentdomain.DiscardInvoiceCancelled}
		}

		inserted, err = s.repo.Insert(ctx, tx, payment)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
		if !inserted {
			return nil
		}
		outcome, err = s.invoiceSvc.MarkSettledTx(ctx, tx, invoice.ID)
		return err
	})
	var discard *errDiscard
	if errors.As(err, &discard) {
		return discarded(discard.reason), nil
	}
	if err != nil {
		return nil, err
	}

	if !inserted {
		winner, err := s.repo.FindByReference(ctx, s.db, reference)
		if err != nil {
			return nil, fmt.Errorf("find payment: %w", err)
		}
		return &paymentdomain.EventResult{Outcome: paymentdomain.OutcomeDuplicate, Payment: winner}, nil
	}

	s.metrics.RecordPayment(ctx, string(method))
	s.audit(ctx, auditdomain.Entry{
		Action:     "payment.checkout_completed",
		ActorType:  actorForProvider(event.Provider),
		TargetType: "payment",
		TargetID:   payment.ID.String(),
		Details: map[string]any{
			"invoice_id":         invoice.ID.String(),
			"amount":             payment.Amount,
			"currency":           payment.Currency,
			"provider":           event.Provider,
			"provider_event_id":  event.ProviderEventID,
			"session_id":         event.CheckoutSessionRef,
			"external_reference": reference,
		},
	})
	s.announce(ctx, "invoice.settle", outcome)
	return &paymentdomain.EventResult{Outcome: paymentdomain.OutcomeRecorded, Payment: payment}, nil
}

func (s *Service) targetInvoice(ctx context.Context, event paymentdomain.ExternalEvent) (*invoicedomain.Invoice, error) {
	if event.InvoiceID != nil {
		return s.invoiceSvc.Get(ctx, *event.InvoiceID)
	}
	if ref := strings.TrimSpace(event.CheckoutSessionRef); ref != "" {
		return s.invoiceSvc.FindByCheckoutReference(ctx, ref)
	}
	return nil, apperror.NotFound("invoice", "")
}

// sessionMismatch reports why an event for sessionRef cannot credit invoice,
// or "" when the invoice's stored session matches.
func sessionMismatch(invoice *invoicedomain.Invoice, sessionRef string) string {
	if invoice.ExternalCheckoutReference == nil || *invoice.ExternalCheckoutReference == "" {
		return paymentdomain.DiscardNoSession
	}
	if strings.TrimSpace(sessionRef) != *invoice.ExternalCheckoutReference {
		return paymentdomain.DiscardSessionMismatch
	}
	return ""
}

// Refund returns a SUCCEEDED payment through the provider that collected it.
// The invoice status is left untouched.
func (s *Service) Refund(ctx context.Context, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != paymentdomain.StatusSucceeded {
		return nil, apperror.InvalidState("payment", string(payment.Status), "refund")
	}

	provider := paymentdomain.Provider(s.providers.Local)
	if payment.Method == paymentdomain.MethodOnline {
		provider = s.providers.Primary
	}
	refundRef, err := provider.Refund(ctx, *payment)
	if err != nil {
		return nil, apperror.ExternalProvider(provider.Name(), err)
	}

	now := s.clock.Now()
	ok, err := s.repo.MarkRefunded(ctx, s.db, payment.ID, refundRef, now)
	if err != nil {
		return nil, fmt.Errorf("mark payment refunded: %w", err)
	}
	if !ok {
		s.log.Error("refund issued but payment changed concurrently",
			zap.String("payment_id", payment.ID.String()),
			zap.String("refund_reference", refundRef),
		)
		return nil, apperror.ConcurrencyConflict("payment", payment.ID.String())
	}
	payment.Status = paymentdomain.StatusRefunded
	payment.RefundReference = &refundRef
	payment.UpdatedAt = now

	s.audit(ctx, auditdomain.Entry{
		Action:     "payment.refund",
		TargetType: "payment",
		TargetID:   payment.ID.String(),
		Details: map[string]any{
			"invoice_id":       payment.InvoiceID.String(),
			"amount":           payment.Amount,
			"provider":         provider.Name(),
			"refund_reference": refundRef,
		},
	})
	return payment, nil
}

// CreateCheckoutLink opens a hosted checkout session for the invoice. Provider
// failures fall back to a simulated local session so collection never blocks.
func (s *Service) CreateCheckoutLink(ctx context.Context, invoiceID snowflake.ID) (*paymentdomain.CheckoutLink, error) {
	invoice, err := s.invoiceSvc.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !invoice.Status.Payable() {
		return nil, apperror.InvalidState("invoice", string(invoice.Status), "checkout")
	}

	req := paymentdomain.CheckoutRequest{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.TotalAmount,
		Currency:      invoice.Currency,
	}
	simulated := s.providers.Primary.Name() == local.ProviderName
	session, err := s.providers.Primary.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.log.Warn("checkout session failed, using local checkout",
			zap.String("provider", s.providers.Primary.Name()),
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		session, err = s.providers.Local.CreateCheckoutSession(ctx, req)
		if err != nil {
			return nil, err
		}
		simulated = true
	}

	updated, err := s.invoiceSvc.SetCheckoutReference(ctx, invoice.ID, session.Reference)
	if err != nil {
		return nil, err
	}

	s.audit(ctx, auditdomain.Entry{
		Action:     "invoice.checkout_link",
		TargetType: "invoice",
		TargetID:   invoice.ID.String(),
		Details: map[string]any{
			"session_id":   session.Reference,
			"checkout_url": session.URL,
			"simulated":    simulated,
		},
	})
	return &paymentdomain.CheckoutLink{
		Invoice:     *updated,
		CheckoutURL: session.URL,
		SessionRef:  session.Reference,
		Simulated:   simulated,
	}, nil
}

// CompleteLocalCheckout settles a simulated session through the same path as
// provider events, so repeated completions are absorbed.
func (s *Service) CompleteLocalCheckout(ctx context.Context, sessionRef string) (*paymentdomain.EventResult, error) {
	sessionRef = strings.TrimSpace(sessionRef)
	if !strings.HasPrefix(sessionRef, local.SessionPrefix) {
		return nil, apperror.Validation("session_ref", "not a local checkout session")
	}
	invoice, err := s.invoiceSvc.FindByCheckoutReference(ctx, sessionRef)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(map[string]any{
		"local_checkout": true,
		"session_id":     sessionRef,
		"invoice_id":     invoice.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	invoiceID := invoice.ID
	return s.RecordExternalEvent(ctx, paymentdomain.ExternalEvent{
		Provider:           local.ProviderName,
		ProviderEventID:    sessionRef,
		Type:               paymentdomain.EventTypeCheckoutCompleted,
		ExternalReference:  local.IntentReference(sessionRef),
		CheckoutSessionRef: sessionRef,
		Amount:             invoice.TotalAmount,
		Currency:           invoice.Currency,
		InvoiceID:          &invoiceID,
		Method:             paymentdomain.MethodLocalCheckout,
		OccurredAt:         s.clock.Now(),
		RawPayload:         raw,
	})
}

func (s *Service) audit(ctx context.Context, entry auditdomain.Entry) {
	if s.auditSvc != nil {
		s.auditSvc.Emit(ctx, entry)
	}
}

func (s *Service) announce(ctx context.Context, action string, outcome *invoicedomain.PaymentOutcome) {
	if outcome == nil {
		return
	}
	s.invoiceSvc.Announce(ctx, invoicedomain.Transition{
		Action:  action,
		Invoice: outcome.Invoice,
		From:    outcome.PreviousStatus,
		Details: map[string]any{"paid": outcome.Paid},
	})
}

func discarded(reason string) *paymentdomain.EventResult {
	return &paymentdomain.EventResult{Outcome: paymentdomain.OutcomeDiscarded, Reason: reason}
}

func actorForProvider(provider string) string {
	if provider == "stripe" {
		return auditdomain.ActorTypeStripe
	}
	return auditdomain.ActorTypeSystem
}

func matchCurrency(raw, invoiceCurrency string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		return invoiceCurrency, nil
	}
	if len(currency) != 3 {
		return "", apperror.Validation("currency", "must be a 3-letter code")
	}
	if currency != invoiceCurrency {
		return "", apperror.Validation("currency", "does not match invoice currency")
	}
	return currency, nil
}
