package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"gorm.io/gorm"
)

type ItemInput struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Tax         int64  `json:"tax"`
}

type CreateInvoiceRequest struct {
	PatientID     snowflake.ID   `json:"patient_id"`
	AdmissionID   *snowflake.ID  `json:"admission_id,omitempty"`
	Currency      string         `json:"currency"`
	DueDate       *time.Time     `json:"due_date,omitempty"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
	Items         []ItemInput    `json:"items"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	PatientID snowflake.ID
	Status    InvoiceStatus
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// PaymentOutcome is the result of recomputing an invoice against its
// payment ledger.
type PaymentOutcome struct {
	Invoice        Invoice       `json:"invoice"`
	PreviousStatus InvoiceStatus `json:"previous_status"`
	Paid           int64         `json:"paid"`
	Changed        bool          `json:"changed"`
}

// Transition is an invoice change committed by a caller-owned transaction.
type Transition struct {
	Action  string
	Invoice Invoice
	From    InvoiceStatus
	Details map[string]any
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	CreateTx(ctx context.Context, tx *gorm.DB, req CreateInvoiceRequest) (*Invoice, error)
	AddItem(ctx context.Context, invoiceID snowflake.ID, item ItemInput) (*Invoice, error)
	Issue(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
	IssueTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*Invoice, error)
	Cancel(ctx context.Context, invoiceID snowflake.ID) (*Invoice, error)
	ApplyPaymentTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, delta int64) (*PaymentOutcome, error)
	MarkSettledTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*PaymentOutcome, error)
	SetCheckoutReference(ctx context.Context, invoiceID snowflake.ID, reference string) (*Invoice, error)
	// LockTx loads the invoice under a row lock for the rest of tx.
	LockTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*Invoice, error)
	// Announce emits audit and status notifications for a change made inside
	// a caller-owned transaction, once that transaction committed.
	Announce(ctx context.Context, transition Transition)

	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	Resolve(ctx context.Context, ref string) (*Invoice, error)
	FindByCheckoutReference(ctx context.Context, reference string) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Items(ctx context.Context, invoiceID snowflake.ID) ([]InvoiceItem, error)
	OutstandingBalance(ctx context.Context, patientID snowflake.ID) (int64, error)
}

type ListFilter struct {
	PatientID snowflake.ID
	Status    InvoiceStatus
	BeforeID  int64
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	InsertItem(ctx context.Context, db *gorm.DB, item *InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	FindByCheckoutReference(ctx context.Context, db *gorm.DB, reference string) (*Invoice, error)
	LatestNumber(ctx context.Context, db *gorm.DB, prefix string) (string, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Invoice, error)
	Items(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	// UpdateWhereStatus applies updates only while the invoice still has the
	// expected status and reports whether a row changed.
	UpdateWhereStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expected InvoiceStatus, updates map[string]any) (bool, error)
	SucceededPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error)
	Outstanding(ctx context.Context, db *gorm.DB, patientID snowflake.ID) (int64, error)
}
