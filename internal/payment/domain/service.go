package domain

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"gorm.io/gorm"
)

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
)

type ManualPaymentRequest struct {
	InvoiceRef string     `json:"invoice_id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	Method     Method     `json:"method"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
	Note       string     `json:"note,omitempty"`
}

type CheckoutLink struct {
	Invoice     invoicedomain.Invoice `json:"invoice"`
	CheckoutURL string                `json:"checkout_url"`
	SessionRef  string                `json:"session_ref"`
	Simulated   bool                  `json:"simulated"`
}

type ListPaymentRequest struct {
	pagination.Pagination
	InvoiceID snowflake.ID
	Status    Status
}

type ListPaymentResponse struct {
	pagination.PageInfo
	Payments []Payment `json:"payments"`
}

type Service interface {
	RecordManualPayment(ctx context.Context, req ManualPaymentRequest) (*Payment, error)
	RecordExternalEvent(ctx context.Context, event ExternalEvent) (*EventResult, error)
	Refund(ctx context.Context, paymentID snowflake.ID) (*Payment, error)
	CreateCheckoutLink(ctx context.Context, invoiceID snowflake.ID) (*CheckoutLink, error)
	CompleteLocalCheckout(ctx context.Context, sessionRef string) (*EventResult, error)
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, req ListPaymentRequest) (ListPaymentResponse, error)
}

// WebhookService verifies and ingests signed provider notifications.
type WebhookService interface {
	Ingest(ctx context.Context, payload []byte, headers http.Header) (*EventResult, error)
}

type CheckoutRequest struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	Amount        int64
	Currency      string
}

type CheckoutSession struct {
	Reference string
	URL       string
}

//go:generate mockgen -source=service.go -destination=mock_provider.go -package=domain Provider

// Provider is the external payment processor. Calls are made outside any
// database transaction.
type Provider interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Refund(ctx context.Context, payment Payment) (string, error)
}

// Verifier authenticates and decodes webhook deliveries.
type Verifier interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*ExternalEvent, error)
}

type ListFilter struct {
	InvoiceID snowflake.ID
	Status    Status
	BeforeID  int64
	Limit     int
}

type Repository interface {
	// Insert writes the payment unless its external reference already exists
	// and reports whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Payment, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Payment, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundRef string, at time.Time) (bool, error)
}
