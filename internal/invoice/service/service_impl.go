package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/apperror"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/concurrency"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/events"
	"github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/invoice/format"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Billing   *config.BillingConfigHolder
	AuditSvc  auditdomain.Service
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	billing   *config.BillingConfigHolder
	auditSvc  auditdomain.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
	template  string
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		billing:   p.Billing,
		auditSvc:  p.AuditSvc,
		publisher: p.Publisher,
		metrics:   p.Metrics,
		template:  format.DefaultInvoiceNumberTemplate,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.CreateTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, domain.Transition{Action: "invoice.create", Invoice: *invoice})
	return invoice, nil
}

// CreateTx inserts a DRAFT invoice with its items inside tx. The invoice
// number is allocated in a savepoint so a collision with a concurrent creator
// can be retried without aborting tx.
func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	cfg := s.billing.Get()
	if req.PatientID == 0 {
		return nil, apperror.Validation("patient_id", "is required")
	}
	if len(req.Items) == 0 {
		return nil, apperror.Validation("items", "at least one item is required")
	}
	var total int64
	for i, item := range req.Items {
		if err := validateItem(item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		total += item.Quantity*item.UnitPrice + item.Tax
	}
	currency, err := normalizeCurrency(req.Currency, cfg.Currency)
	if err != nil {
		return nil, err
	}
	if req.PaymentMethod != nil {
		switch *req.PaymentMethod {
		case domain.PaymentMethodOnline, domain.PaymentMethodCash:
		default:
			return nil, apperror.Validation("payment_method", "must be online or cash")
		}
	}

	now := s.clock.Now()
	invoice := &domain.Invoice{
		ID:            s.genID.Generate(),
		PatientID:     req.PatientID,
		AdmissionID:   req.AdmissionID,
		Currency:      currency,
		TotalAmount:   total,
		Status:        domain.InvoiceStatusDraft,
		DueDate:       req.DueDate,
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = concurrency.RetryErr(ctx, func(ctx context.Context, attempt int) error {
		return tx.Transaction(func(sp *gorm.DB) error {
			number, err := s.nextNumber(ctx, sp, now)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
			return s.repo.Insert(ctx, sp, invoice)
		})
	}, pkgdb.IsDuplicateKeyErr, cfg.RetryMaxAttempts, cfg.RetryBaseDelay)
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, apperror.ConcurrencyConflict("invoice", invoice.InvoiceNumber)
		}
		return nil, fmt.Errorf("insert invoice: %w", err)
	}

	for _, in := range req.Items {
		item := &domain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Tax:         in.Tax,
			CreatedAt:   now,
		}
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return nil, fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return invoice, nil
}

func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, at time.Time) (string, error) {
	at = at.UTC()
	prefix, err := format.Prefix(s.template, at)
	if err != nil {
		return "", err
	}
	latest, err := s.repo.LatestNumber(ctx, tx, prefix)
	if err != nil {
		return "", fmt.Errorf("latest invoice number: %w", err)
	}
	seq := int64(1)
	if latest != "" {
		last, err := format.ParseSequence(prefix, latest)
		if err != nil {
			return "", err
		}
		seq = last + 1
	}
	return format.FormatInvoiceNumber(s.template, at, seq)
}

func (s *Service) AddItem(ctx context.Context, invoiceID snowflake.ID, in domain.ItemInput) (*domain.Invoice, error) {
	if err := validateItem(in); err != nil {
		return nil, err
	}

	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.LockTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status != domain.InvoiceStatusDraft {
			return apperror.InvalidStateTransition("invoice", string(invoice.Status), string(domain.InvoiceStatusDraft))
		}

		now := s.clock.Now()
		item := &domain.InvoiceItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Tax:         in.Tax,
			CreatedAt:   now,
		}
		if err := s.repo.InsertItem(ctx, tx, item); err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}

		total := invoice.TotalAmount + item.Amount()
		if err := s.update(ctx, tx, invoice, map[string]any{
			"total_amount": total,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		invoice.TotalAmount = total
		invoice.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Announce(ctx, domain.Transition{
		Action:  "invoice.add_item",
		Invoice: *invoice,
		From:    invoice.Status,
		Details: map[string]any{"description": strings.TrimSpace(in.Description)},
	})
	return invoice, nil
}

func (s *Service) Issue(ctx context.Context, invoiceID snowflake.ID) (*domain.Invoice, error) {
	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.IssueTx(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, domain.Transition{Action: "invoice.issue", Invoice: *invoice, From: domain.InvoiceStatusDraft})
	return invoice, nil
}

// IssueTx freezes a DRAFT invoice. The due date defaults to the configured
// number of days after issuance.
func (s *Service) IssueTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.LockTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoiceStatusDraft {
		return nil, apperror.InvalidStateTransition("invoice", string(invoice.Status), string(domain.InvoiceStatusIssued))
	}

	now := s.clock.Now()
	due := invoice.DueDate
	if due == nil {
		d := now.AddDate(0, 0, s.billing.Get().InvoiceDueDays)
		due = &d
	}
	if err := s.update(ctx, tx, invoice, map[string]any{
		"status":     domain.InvoiceStatusIssued,
		"issued_at":  now,
		"due_date":   *due,
		"updated_at": now,
	}); err != nil {
		return nil, err
	}
	invoice.Status = domain.InvoiceStatusIssued
	invoice.IssuedAt = &now
	invoice.DueDate = due
	invoice.UpdatedAt = now
	return invoice, nil
}

func (s *Service) Cancel(ctx context.Context, invoiceID snowflake.ID) (*domain.Invoice, error) {
	var (
		invoice *domain.Invoice
		from    domain.InvoiceStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.LockTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice.Status.Terminal() {
			return apperror.InvalidStateTransition("invoice", string(invoice.Status), string(domain.InvoiceStatusCancelled))
		}

		now := s.clock.Now()
		from = invoice.Status
		if err := s.update(ctx, tx, invoice, map[string]any{
			"status":       domain.InvoiceStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		invoice.Status = domain.InvoiceStatusCancelled
		invoice.CancelledAt = &now
		invoice.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, domain.Transition{Action: "invoice.cancel", Invoice: *invoice, From: from})
	return invoice, nil
}

// ApplyPaymentTx recomputes the invoice status from the SUCCEEDED payments
// recorded against it, including any inserted earlier in tx. delta is the
// amount the caller just recorded and is only reported.
func (s *Service) ApplyPaymentTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, delta int64) (*domain.PaymentOutcome, error) {
	invoice, err := s.LockTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	paid, err := s.repo.SucceededPayments(ctx, tx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}

	outcome := &domain.PaymentOutcome{PreviousStatus: invoice.Status, Paid: paid}
	if invoice.Status == domain.InvoiceStatusCancelled {
		outcome.Invoice = *invoice
		return outcome, nil
	}

	next := statusForPaid(invoice.Status, paid, invoice.TotalAmount)
	if next != invoice.Status {
		if err := s.moveTo(ctx, tx, invoice, next); err != nil {
			return nil, err
		}
		outcome.Changed = true
	}
	outcome.Invoice = *invoice

	s.log.Debug("payment applied",
		zap.String("invoice_id", invoice.ID.String()),
		zap.Int64("delta", delta),
		zap.Int64("paid", paid),
		zap.String("status", string(invoice.Status)),
	)
	return outcome, nil
}

// MarkSettledTx moves a non-cancelled invoice to PAID regardless of the
// running payment sum. Provider checkout completions settle the invoice in
// full.
func (s *Service) MarkSettledTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*domain.PaymentOutcome, error) {
	invoice, err := s.LockTx(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == domain.InvoiceStatusCancelled {
		return nil, apperror.InvalidState("invoice", string(invoice.Status), "settle")
	}
	paid, err := s.repo.SucceededPayments(ctx, tx, invoice.ID)
	if err != nil {
		return nil, fmt.Errorf("sum payments: %w", err)
	}

	outcome := &domain.PaymentOutcome{PreviousStatus: invoice.Status, Paid: paid}
	if invoice.Status != domain.InvoiceStatusPaid {
		if err := s.moveTo(ctx, tx, invoice, domain.InvoiceStatusPaid); err != nil {
			return nil, err
		}
		outcome.Changed = true
	}
	outcome.Invoice = *invoice
	return outcome, nil
}

func (s *Service) moveTo(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, next domain.InvoiceStatus) error {
	now := s.clock.Now()
	updates := map[string]any{
		"status":     next,
		"updated_at": now,
	}
	if invoice.IssuedAt == nil {
		updates["issued_at"] = now
		invoice.IssuedAt = &now
	}
	if next == domain.InvoiceStatusPaid {
		updates["paid_at"] = now
		invoice.PaidAt = &now
	}
	if err := s.update(ctx, tx, invoice, updates); err != nil {
		return err
	}
	invoice.Status = next
	invoice.UpdatedAt = now
	return nil
}

// statusForPaid derives the status implied by the paid sum. A DRAFT invoice
// without payments stays DRAFT; otherwise it is treated as issued.
func statusForPaid(current domain.InvoiceStatus, paid, total int64) domain.InvoiceStatus {
	switch {
	case paid > 0 && paid >= total:
		return domain.InvoiceStatusPaid
	case paid > 0:
		return domain.InvoiceStatusPartiallyPaid
	case current == domain.InvoiceStatusDraft:
		return current
	default:
		return domain.InvoiceStatusIssued
	}
}

func (s *Service) SetCheckoutReference(ctx context.Context, invoiceID snowflake.ID, reference string) (*domain.Invoice, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperror.Validation("checkout_reference", "is required")
	}

	var invoice *domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.LockTx(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if !invoice.Status.Payable() {
			return apperror.InvalidState("invoice", string(invoice.Status), "checkout")
		}
		now := s.clock.Now()
		if err := s.update(ctx, tx, invoice, map[string]any{
			"external_checkout_reference": reference,
			"updated_at":                  now,
		}); err != nil {
			return err
		}
		invoice.ExternalCheckoutReference = &reference
		invoice.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// update writes to the invoice only while it still holds the status the
// caller read.
func (s *Service) update(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice, updates map[string]any) error {
	ok, err := s.repo.UpdateWhereStatus(ctx, tx, invoice.ID, invoice.Status, updates)
	if err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	if !ok {
		s.metrics.RecordConflict(ctx, "invoice")
		return apperror.ConcurrencyConflict("invoice", invoice.ID.String())
	}
	return nil
}

func (s *Service) LockTx(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice", invoiceID.String())
	}
	return invoice, nil
}

func (s *Service) Announce(ctx context.Context, t domain.Transition) {
	invoice := t.Invoice
	details := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"patient_id":     invoice.PatientID.String(),
		"currency":       invoice.Currency,
		"total_amount":   invoice.TotalAmount,
		"status":         string(invoice.Status),
	}
	if t.From != "" && t.From != invoice.Status {
		details["previous_status"] = string(t.From)
	}
	for k, v := range t.Details {
		if k != "" {
			details[k] = v
		}
	}

	targetID := invoice.ID.String()
	if s.auditSvc != nil {
		s.auditSvc.Emit(ctx, auditdomain.Entry{
			Action:     t.Action,
			TargetType: "invoice",
			TargetID:   targetID,
			Details:    details,
		})
	}
	if t.From == invoice.Status {
		return
	}
	s.metrics.RecordInvoiceTransition(ctx, string(invoice.Status))
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.Event{
			Type:       events.TypeInvoiceStatus,
			Entity:     "invoice",
			EntityID:   targetID,
			Status:     string(invoice.Status),
			OccurredAt: s.clock.Now(),
			Data:       details,
		})
		if err != nil {
			s.log.Warn("publish invoice event failed", zap.String("invoice_id", targetID), zap.Error(err))
		}
	}
}

func validateItem(item domain.ItemInput) error {
	switch {
	case strings.TrimSpace(item.Description) == "":
		return apperror.Validation("description", "is required")
	case item.Quantity < 1:
		return apperror.Validation("quantity", "must be at least 1")
	case item.UnitPrice < 0:
		return apperror.Validation("unit_price", "must not be negative")
	case item.Tax < 0:
		return apperror.Validation("tax", "must not be negative")
	}
	return nil
}

func normalizeCurrency(raw, fallback string) (string, error) {
	currency := strings.ToUpper(strings.TrimSpace(raw))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(fallback))
	}
	if len(currency) != 3 {
		return "", apperror.Validation("currency", "must be a 3-letter code")
	}
	for _, r := range currency {
		if r < 'A' || r > 'Z' {
			return "", apperror.Validation("currency", "must be a 3-letter code")
		}
	}
	return currency, nil
}
