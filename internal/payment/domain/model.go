package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

type Method string

const (
	MethodCash          Method = "cash"
	MethodCard          Method = "card"
	MethodBankTransfer  Method = "bank_transfer"
	MethodOnline        Method = "online"
	MethodLocalCheckout Method = "local_checkout"
)

// Manual reports whether staff may record the method by hand.
func (m Method) Manual() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer:
		return true
	default:
		return false
	}
}

// Payment is one credit against an invoice. ExternalReference is the
// idempotency key: provider events are recorded at most once per reference.
type Payment struct {
	ID                snowflake.ID   `json:"id" gorm:"primaryKey"`
	InvoiceID         snowflake.ID   `json:"invoice_id" gorm:"not null;index"`
	ExternalReference string         `json:"external_reference" gorm:"type:text;not null;uniqueIndex:ux_payments_external_reference"`
	Amount            int64          `json:"amount" gorm:"not null"`
	Currency          string         `json:"currency" gorm:"type:text;not null"`
	Status            Status         `json:"status" gorm:"type:text;not null"`
	Method            Method         `json:"method" gorm:"type:text;not null"`
	ReceivedAt        time.Time      `json:"received_at" gorm:"not null"`
	RawEvent          datatypes.JSON `json:"raw_event,omitempty" gorm:"type:jsonb"`
	RefundReference   *string        `json:"refund_reference,omitempty" gorm:"type:text"`
	CreatedAt         time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

const EventTypeCheckoutCompleted = "checkout.session.completed"

// ExternalEvent is the canonical provider notification parsed by adapters.
type ExternalEvent struct {
	Provider           string
	ProviderEventID    string
	Type               string
	ExternalReference  string
	CheckoutSessionRef string
	Amount             int64
	Currency           string
	InvoiceID          *snowflake.ID
	Method             Method
	OccurredAt         time.Time
	RawPayload         []byte
}

type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDiscarded Outcome = "discarded"
)

const (
	DiscardUnsupportedEvent = "unsupported_event"
	DiscardInvoiceNotFound  = "invoice_not_found"
	DiscardNoSession        = "no_checkout_session"
	DiscardSessionMismatch  = "session_mismatch"
	DiscardInvoiceCancelled = "invoice_cancelled"
)

// EventResult reports what recording an external event did. Payment is set
// for Recorded and Duplicate, Reason for Discarded.
type EventResult struct {
	Outcome Outcome  `json:"outcome"`
	Payment *Payment `json:"payment,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}
