// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusIssued        InvoiceStatus = "ISSUED"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusIssued, InvoiceStatusPartiallyPaid,
		InvoiceStatusPaid, InvoiceStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

// Payable reports whether payments may be credited against the invoice.
func (s InvoiceStatus) Payable() bool {
	return s == InvoiceStatusIssued || s == InvoiceStatusPartiallyPaid
}

type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodCash   PaymentMethod = "cash"
)

// Invoice represents a billed document owed by a patient.
type Invoice struct {
	ID                        snowflake.ID   `json:"id" gorm:"primaryKey"`
	InvoiceNumber             string         `json:"invoice_number" gorm:"type:text;not null;uniqueIndex:ux_invoices_invoice_number"`
	PatientID                 snowflake.ID   `json:"patient_id" gorm:"not null;index"`
	AdmissionID               *snowflake.ID  `json:"admission_id,omitempty" gorm:"index"`
	Currency                  string         `json:"currency" gorm:"type:text;not null"`
	TotalAmount               int64          `json:"total_amount" gorm:"not null;default:0"`
	Status                    InvoiceStatus  `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	IssuedAt                  *time.Time     `json:"issued_at,omitempty"`
	DueDate                   *time.Time     `json:"due_date,omitempty"`
	PaymentMethod             *PaymentMethod `json:"payment_method,omitempty" gorm:"type:text"`
	ExternalCheckoutReference *string        `json:"external_checkout_reference,omitempty" gorm:"type:text;index"`
	PaidAt                    *time.Time     `json:"paid_at,omitempty"`
	CancelledAt               *time.Time     `json:"cancelled_at,omitempty"`
	CreatedAt                 time.Time      `json:"created_at" gorm:"not null"`
	UpdatedAt                 time.Time      `json:"updated_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID   snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	Description string       `json:"description" gorm:"type:text;not null"`
	Quantity    int64        `json:"quantity" gorm:"not null"`
	UnitPrice   int64        `json:"unit_price" gorm:"not null"`
	Tax         int64        `json:"tax" gorm:"not null;default:0"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// Amount is the line total including tax.
func (i InvoiceItem) Amount() int64 {
	return i.Quantity*i.UnitPrice + i.Tax
}
