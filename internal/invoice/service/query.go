package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
)

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice", id.String())
	}
	return invoice, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	number = strings.TrimSpace(number)
	invoice, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice", number)
	}
	return invoice, nil
}

// Resolve accepts either an invoice id or a human invoice number.
func (s *Service) Resolve(ctx context.Context, ref string) (*domain.Invoice, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperror.Validation("invoice", "reference is required")
	}
	if id, err := snowflake.ParseString(ref); err == nil {
		invoice, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, fmt.Errorf("find invoice: %w", err)
		}
		if invoice != nil {
			return invoice, nil
		}
	}
	return s.GetByNumber(ctx, ref)
}

func (s *Service) FindByCheckoutReference(ctx context.Context, reference string) (*domain.Invoice, error) {
	invoice, err := s.repo.FindByCheckoutReference(ctx, s.db, strings.TrimSpace(reference))
	if err != nil {
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	if invoice == nil {
		return nil, apperror.NotFound("invoice", reference)
	}
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	filter := domain.ListFilter{PatientID: req.PatientID, Limit: req.Limit() + 1}
	if req.Status != "" {
		filter.Status = domain.InvoiceStatus(strings.ToUpper(string(req.Status)))
		if !filter.Status.Valid() {
			return domain.ListInvoiceResponse{}, apperror.Validation("status", "unknown invoice status")
		}
	}
	cursor, err := req.CursorID()
	if err != nil {
		return domain.ListInvoiceResponse{}, apperror.Validation("page_token", "malformed")
	}
	filter.BeforeID = cursor

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListInvoiceResponse{}, fmt.Errorf("list invoices: %w", err)
	}
	rows, info := pagination.Trim(rows, req.Limit(), func(i *domain.Invoice) int64 { return i.ID.Int64() })

	out := make([]domain.Invoice, 0, len(rows))
	for _, i := range rows {
		out = append(out, *i)
	}
	return domain.ListInvoiceResponse{PageInfo: info, Invoices: out}, nil
}

func (s *Service) Items(ctx context.Context, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	if _, err := s.Get(ctx, invoiceID); err != nil {
		return nil, err
	}
	items, err := s.repo.Items(ctx, s.db, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list invoice items: %w", err)
	}
	return items, nil
}

// OutstandingBalance sums what the patient still owes on issued invoices.
func (s *Service) OutstandingBalance(ctx context.Context, patientID snowflake.ID) (int64, error) {
	balance, err := s.repo.Outstanding(ctx, s.db, patientID)
	if err != nil {
		return 0, fmt.Errorf("outstanding balance: %w", err)
	}
	return balance, nil
}
