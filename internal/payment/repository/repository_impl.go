package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/pkg/db/option"
	"github.com/smallbiznis/carebill/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_reference"}}, DoNothing: true}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return repository.ProvideStore[domain.Payment](db).FindOne(ctx, nil, option.WithWhere("id = ?", id))
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Payment, error) {
	return repository.ProvideStore[domain.Payment](db).FindOne(ctx, nil,
		option.WithWhere("external_reference = ?", strings.TrimSpace(reference)))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Payment, error) {
	opts := []option.QueryOption{
		option.WithIDBefore(filter.BeforeID),
		option.WithOrder("id DESC"),
		option.WithLimit(filter.Limit),
	}
	if filter.InvoiceID != 0 {
		opts = append(opts, option.WithWhere("invoice_id = ?", filter.InvoiceID))
	}
	if filter.Status != "" {
		opts = append(opts, option.WithWhere("status = ?", filter.Status))
	}
	return repository.ProvideStore[domain.Payment](db).Find(ctx, nil, opts...)
}

func (r *repo) MarkRefunded(ctx context.Context, db *gorm.DB, id snowflake.ID, refundRef string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		SET status = ?, refund_reference = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.StatusRefunded,
		refundRef,
		at,
		id,
		domain.StatusSucceeded,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
