package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/mock/gomock"
	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/carebill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/carebill/internal/invoice/service"
	"github.com/smallbiznis/carebill/internal/payment/adapters/local"
	"github.com/smallbiznis/carebill/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/carebill/internal/payment/repository"
	"github.com/smallbiznis/carebill/internal/payment/service"
	"github.com/smallbiznis/carebill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	invoices invoicedomain.Service
	payments domain.Service
	audit    *testutil.RecordingAudit
}

func newFixture(t *testing.T, primary domain.Provider) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(testutil.Epoch)
	cfg := config.DefaultBillingConfig()
	cfg.RetryBaseDelay = time.Millisecond
	audit := &testutil.RecordingAudit{}

	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:      invoicerepo.Provide(),
		Billing:   config.NewStaticBillingConfig(cfg),
		AuditSvc:  audit,
		Publisher: &testutil.RecordingPublisher{},
	})
	payments := service.NewService(service.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:       paymentrepo.Provide(),
		InvoiceSvc: invoices,
		Providers:  service.Providers{Primary: primary, Local: local.New("http://clinic.test")},
		AuditSvc:   audit,
	})
	return &fixture{db: db, node: node, clock: clk, invoices: invoices, payments: payments, audit: audit}
}

// issued creates an ISSUED invoice totalling 10850 USD.
func (f *fixture) issued(t *testing.T) *invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	invoice, err := f.invoices.Create(ctx, invoicedomain.CreateInvoiceRequest{
		PatientID: f.node.Generate(),
		Items:     []invoicedomain.ItemInput{{Description: "Room stay", Quantity: 1, UnitPrice: 10000, Tax: 850}},
	})
	require.NoError(t, err)
	invoice, err = f.invoices.Issue(ctx, invoice.ID)
	require.NoError(t, err)
	return invoice
}

func (f *fixture) withSession(t *testing.T, invoice *invoicedomain.Invoice, ref string) {
	t.Helper()
	_, err := f.invoices.SetCheckoutReference(context.Background(), invoice.ID, ref)
	require.NoError(t, err)
}

func completed(invoice *invoicedomain.Invoice, session, reference string) domain.ExternalEvent {
	id := invoice.ID
	return domain.ExternalEvent{
		Provider:           "stripe",
		ProviderEventID:    "evt_" + reference,
		Type:               domain.EventTypeCheckoutCompleted,
		ExternalReference:  reference,
		CheckoutSessionRef: session,
		Amount:             invoice.TotalAmount,
		Currency:           "usd",
		InvoiceID:          &id,
		OccurredAt:         testutil.Epoch,
		RawPayload:         []byte(`{"id":"evt"}`),
	}
}

func TestRecordManualPaymentMovesInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	invoice := f.issued(t)

	payment, err := f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{
		InvoiceRef: invoice.InvoiceNumber,
		Amount:     5000,
		Method:     "CASH",
		Note:       "front desk",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MethodCash, payment.Method)
	assert.Equal(t, "USD", payment.Currency)
	assert.Equal(t, domain.StatusSucceeded, payment.Status)

	stored, err := f.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, stored.Status)

	_, err = f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{
		InvoiceRef: invoice.ID.String(),
		Amount:     5850,
		Currency:   "usd",
		Method:     domain.MethodCard,
	})
	require.NoError(t, err)
	stored, err = f.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	page, err := f.payments.List(ctx, domain.ListPaymentRequest{InvoiceID: invoice.ID})
	require.NoError(t, err)
	assert.Len(t, page.Payments, 2)
}

func TestRecordManualPaymentRejects(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	invoice := f.issued(t)

	var validation *apperror.ValidationError
	_, err := f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{InvoiceRef: invoice.InvoiceNumber, Amount: 0, Method: domain.MethodCash})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "amount", validation.Field)

	_, err = f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{InvoiceRef: invoice.InvoiceNumber, Amount: 1, Method: domain.MethodOnline})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "method", validation.Field)

	_, err = f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{InvoiceRef: invoice.InvoiceNumber, Amount: 1, Currency: "EUR", Method: domain.MethodCash})
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "currency", validation.Field)

	_, err = f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{InvoiceRef: "CLINIC-209901-0001", Amount: 1, Method: domain.MethodCash})
	assert.True(t, apperror.IsNotFound(err))

	_, err = f.invoices.Cancel(ctx, invoice.ID)
	require.NoError(t, err)
	_, err = f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{InvoiceRef: invoice.InvoiceNumber, Amount: 1, Method: domain.MethodCash})
	var invalid *apperror.InvalidStateError
	assert.ErrorAs(t, err, &invalid)
}

func TestExternalEventIsRecordedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	invoice := f.issued(t)
	f.withSession(t, invoice, "cs_test_1")
	event := completed(invoice, "cs_test_1", "pi_1")

	const deliveries = 5
	results := make([]*domain.EventResult, deliveries)
	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := f.payments.RecordExternalEvent(ctx, event)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	recorded := 0
	for _, result := range results {
		require.NotNil(t, result)
		switch result.Outcome {
		case domain.OutcomeRecorded:
			recorded++
		case domain.OutcomeDuplicate:
			require.NotNil(t, result.Payment)
			assert.Equal(t, "pi_1", result.Payment.ExternalReference)
		default:
			t.Fatalf("unexpected outcome %s", result.Outcome)
		}
	}
	assert.Equal(t, 1, recorded)

	var count int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Where("external_reference = ?", "pi_1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := f.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)
	assert.Contains(t, f.audit.Actions(), "payment.checkout_completed")
}

func TestExternalEventDiscards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	withSession := f.issued(t)
	f.withSession(t, withSession, "cs_good")
	withoutSession := f.issued(t)
	cancelled := f.issued(t)
	f.withSession(t, cancelled, "cs_cancelled")
	_, err := f.invoices.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	missing := f.node.Generate()
	unknown := completed(withSession, "cs_good", "pi_unknown")
	unknown.InvoiceID = &missing
	other := completed(withSession, "cs_good", "pi_other")
	other.Type = "payment_intent.created"

	cases := []struct {
		name   string
		event  domain.ExternalEvent
		reason string
	}{
		{"unsupported type", other, domain.DiscardUnsupportedEvent},
		{"session mismatch", completed(withSession, "cs_forged", "pi_forged"), domain.DiscardSessionMismatch},
		{"no stored session", completed(withoutSession, "cs_any", "pi_nosession"), domain.DiscardNoSession},
		{"unknown invoice", unknown, domain.DiscardInvoiceNotFound},
		{"cancelled invoice", completed(cancelled, "cs_cancelled", "pi_cancelled"), domain.DiscardInvoiceCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.payments.RecordExternalEvent(ctx, tc.event)
			require.NoError(t, err)
			assert.Equal(t, domain.OutcomeDiscarded, result.Outcome)
			assert.Equal(t, tc.reason, result.Reason)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&count).Error)
	assert.Zero(t, count)

	stored, err := f.invoices.Get(ctx, withSession.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusIssued, stored.Status)
}

func TestRefundUsesCollectingProvider(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	primary := domain.NewMockProvider(ctrl)
	primary.EXPECT().Name().Return("stripe").AnyTimes()

	f := newFixture(t, primary)
	invoice := f.issued(t)
	f.withSession(t, invoice, "cs_1")
	result, err := f.payments.RecordExternalEvent(ctx, completed(invoice, "cs_1", "pi_1"))
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeRecorded, result.Outcome)

	primary.EXPECT().
		Refund(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, p domain.Payment) (string, error) {
			assert.Equal(t, "pi_1", p.ExternalReference)
			return "re_1", nil
		})
	refunded, err := f.payments.Refund(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundReference)
	assert.Equal(t, "re_1", *refunded.RefundReference)

	// The invoice keeps its PAID status after a refund.
	stored, err := f.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	_, err = f.payments.Refund(ctx, result.Payment.ID)
	var invalid *apperror.InvalidStateError
	assert.ErrorAs(t, err, &invalid)

	// Manual payments never reach the primary provider.
	second := f.issued(t)
	manual, err := f.payments.RecordManualPayment(ctx, domain.ManualPaymentRequest{InvoiceRef: second.InvoiceNumber, Amount: 100, Method: domain.MethodCash})
	require.NoError(t, err)
	refunded, err = f.payments.Refund(ctx, manual.ID)
	require.NoError(t, err)
	assert.Contains(t, *refunded.RefundReference, "local_re_")
}

func TestRefundProviderFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	primary := domain.NewMockProvider(ctrl)
	primary.EXPECT().Name().Return("stripe").AnyTimes()
	primary.EXPECT().Refund(gomock.Any(), gomock.Any()).Return("", errors.New("card_declined"))

	f := newFixture(t, primary)
	invoice := f.issued(t)
	f.withSession(t, invoice, "cs_1")
	result, err := f.payments.RecordExternalEvent(ctx, completed(invoice, "cs_1", "pi_1"))
	require.NoError(t, err)

	_, err = f.payments.Refund(ctx, result.Payment.ID)
	var provider *apperror.ExternalProviderError
	require.ErrorAs(t, err, &provider)

	stored, err := f.payments.Get(ctx, result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, stored.Status)
}

func TestCheckoutLinkFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	primary := domain.NewMockProvider(ctrl)
	primary.EXPECT().Name().Return("stripe").AnyTimes()
	primary.EXPECT().CreateCheckoutSession(gomock.Any(), gomock.Any()).Return(nil, errors.New("provider down"))

	f := newFixture(t, primary)
	invoice := f.issued(t)

	link, err := f.payments.CreateCheckoutLink(ctx, invoice.ID)
	require.NoError(t, err)
	assert.True(t, link.Simulated)
	assert.Contains(t, link.SessionRef, local.SessionPrefix)
	assert.Equal(t, "http://clinic.test/api/v1/payments/local-checkout/"+link.SessionRef, link.CheckoutURL)
	require.NotNil(t, link.Invoice.ExternalCheckoutReference)
	assert.Equal(t, link.SessionRef, *link.Invoice.ExternalCheckoutReference)

	first, err := f.payments.CompleteLocalCheckout(ctx, link.SessionRef)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRecorded, first.Outcome)
	assert.Equal(t, domain.MethodLocalCheckout, first.Payment.Method)

	replay, err := f.payments.CompleteLocalCheckout(ctx, link.SessionRef)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDuplicate, replay.Outcome)
	assert.Equal(t, first.Payment.ID, replay.Payment.ID)

	stored, err := f.invoices.Get(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, stored.Status)

	_, err = f.payments.CreateCheckoutLink(ctx, invoice.ID)
	var invalid *apperror.InvalidStateError
	assert.ErrorAs(t, err, &invalid)

	_, err = f.payments.CompleteLocalCheckout(ctx, "cs_live_123")
	var validation *apperror.ValidationError
	assert.ErrorAs(t, err, &validation)
}
