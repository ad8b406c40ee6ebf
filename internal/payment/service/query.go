package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/apperror"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
)

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		return nil, apperror.NotFound("payment", id.String())
	}
	return payment, nil
}

func (s *Service) List(ctx context.Context, req paymentdomain.ListPaymentRequest) (paymentdomain.ListPaymentResponse, error) {
	filter := paymentdomain.ListFilter{InvoiceID: req.InvoiceID, Limit: req.Limit() + 1}
	if req.Status != "" {
		filter.Status = paymentdomain.Status(strings.ToUpper(string(req.Status)))
		if !filter.Status.Valid() {
			return paymentdomain.ListPaymentResponse{}, apperror.Validation("status", "unknown payment status")
		}
	}
	if req.InvoiceID != 0 {
		if _, err := s.invoiceSvc.Get(ctx, req.InvoiceID); err != nil {
			return paymentdomain.ListPaymentResponse{}, err
		}
	}
	cursor, err := req.CursorID()
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, apperror.Validation("page_token", "malformed")
	}
	filter.BeforeID = cursor

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return paymentdomain.ListPaymentResponse{}, fmt.Errorf("list payments: %w", err)
	}
	rows, info := pagination.Trim(rows, req.Limit(), func(p *paymentdomain.Payment) int64 { return p.ID.Int64() })

	out := make([]paymentdomain.Payment, 0, len(rows))
	for _, p := range rows {
		out = append(out, *p)
	}
	return paymentdomain.ListPaymentResponse{PageInfo: info, Payments: out}, nil
}
