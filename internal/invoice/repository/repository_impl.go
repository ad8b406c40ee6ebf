package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/pkg/db/option"
	"github.com/smallbiznis/carebill/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return repository.ProvideStore[domain.Invoice](db).Create(ctx, invoice)
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.InvoiceItem) error {
	return repository.ProvideStore[domain.InvoiceItem](db).Create(ctx, item)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return repository.ProvideStore[domain.Invoice](db).FindOne(ctx, nil, option.WithWhere("id = ?", id))
}

// FindForUpdate takes a row lock on postgres. SQLite serialises writers on
// its own and the locking clause is dropped by its dialect.
func (r *repo) FindForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	locked := db.Clauses(clause.Locking{Strength: "UPDATE"})
	return repository.ProvideStore[domain.Invoice](locked).FindOne(ctx, nil, option.WithWhere("id = ?", id))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Invoice, error) {
	return repository.ProvideStore[domain.Invoice](db).FindOne(ctx, nil,
		option.WithWhere("invoice_number = ?", strings.TrimSpace(number)))
}

func (r *repo) FindByCheckoutReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Invoice, error) {
	return repository.ProvideStore[domain.Invoice](db).FindOne(ctx, nil,
		option.WithWhere("external_checkout_reference = ?", reference))
}

// LatestNumber returns the highest invoice number carrying prefix, or "" when
// the period has none. Longer numbers sort first so sequences past the pad
// width keep counting up.
func (r *repo) LatestNumber(ctx context.Context, db *gorm.DB, prefix string) (string, error) {
	var numbers []string
	err := db.WithContext(ctx).Raw(
		`SELECT invoice_number
		FROM invoices
		WHERE invoice_number LIKE ?
		ORDER BY LENGTH(invoice_number) DESC, invoice_number DESC
		LIMIT 1`,
		prefix+"%",
	).Scan(&numbers).Error
	if err != nil || len(numbers) == 0 {
		return "", err
	}
	return numbers[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Invoice, error) {
	opts := []option.QueryOption{
		option.WithIDBefore(filter.BeforeID),
		option.WithOrder("id DESC"),
		option.WithLimit(filter.Limit),
	}
	if filter.PatientID != 0 {
		opts = append(opts, option.WithWhere("patient_id = ?", filter.PatientID))
	}
	if filter.Status != "" {
		opts = append(opts, option.WithWhere("status = ?", filter.Status))
	}
	return repository.ProvideStore[domain.Invoice](db).Find(ctx, nil, opts...)
}

func (r *repo) Items(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) UpdateWhereStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, expected domain.InvoiceStatus, updates map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Table(domain.Invoice{}.TableName()).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SucceededPayments(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	var sum int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE invoice_id = ? AND status = 'SUCCEEDED'`,
		invoiceID,
	).Scan(&sum).Error
	return sum, err
}

func (r *repo) Outstanding(ctx context.Context, db *gorm.DB, patientID snowflake.ID) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(i.total_amount - COALESCE(p.paid, 0)), 0)
		FROM invoices i
		LEFT JOIN (
			SELECT invoice_id, SUM(amount) AS paid
			FROM payments
			WHERE status = 'SUCCEEDED'
			GROUP BY invoice_id
		) p ON p.invoice_id = i.id
		WHERE i.patient_id = ? AND i.status IN ('ISSUED', 'PARTIALLY_PAID')`,
		patientID,
	).Scan(&balance).Error
	return balance, err
}
