package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/admission/domain"
	"github.com/smallbiznis/carebill/pkg/db/option"
	"github.com/smallbiznis/carebill/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, admission *domain.Admission) error {
	return repository.ProvideStore[domain.Admission](db).Create(ctx, admission)
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Admission, error) {
	return repository.ProvideStore[domain.Admission](db).FindOne(ctx, nil, option.WithWhere("id = ?", id))
}

func (r *repo) FindActiveByPatient(ctx context.Context, db *gorm.DB, patientID snowflake.ID) (*domain.Admission, error) {
	return repository.ProvideStore[domain.Admission](db).FindOne(ctx, nil,
		option.WithWhere("patient_id = ? AND status = ?", patientID, domain.StatusActive))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Admission, error) {
	opts := append(filterOptions(filter),
		option.WithIDBefore(filter.BeforeID),
		option.WithOrder("id DESC"),
		option.WithLimit(filter.Limit),
	)
	return repository.ProvideStore[domain.Admission](db).Find(ctx, nil, opts...)
}

func (r *repo) Count(ctx context.Context, db *gorm.DB, filter domain.ListFilter) (int64, error) {
	return repository.ProvideStore[domain.Admission](db).Count(ctx, nil, filterOptions(filter)...)
}

func filterOptions(filter domain.ListFilter) []option.QueryOption {
	var opts []option.QueryOption
	if filter.PatientID != 0 {
		opts = append(opts, option.WithWhere("patient_id = ?", filter.PatientID))
	}
	if filter.RoomID != 0 {
		opts = append(opts, option.WithWhere("room_id = ?", filter.RoomID))
	}
	if filter.Status != "" {
		opts = append(opts, option.WithWhere("status = ?", filter.Status))
	}
	return opts
}
