package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/directory/domain"
	"github.com/smallbiznis/carebill/pkg/db/option"
	"github.com/smallbiznis/carebill/pkg/repository"
	"gorm.io/gorm"
)

type directory struct {
	patients repository.Repository[domain.Patient]
	staff    repository.Repository[domain.Staff]
}

func Provide(db *gorm.DB) domain.Directory {
	return &directory{
		patients: repository.ProvideStore[domain.Patient](db),
		staff:    repository.ProvideStore[domain.Staff](db),
	}
}

func (d *directory) FindPatient(ctx context.Context, id snowflake.ID) (domain.Lookup[domain.Patient], error) {
	row, err := d.patients.FindOne(ctx, nil, option.WithWhere("id = ?", id))
	if err != nil {
		return domain.NotFound[domain.Patient](), fmt.Errorf("find patient: %w", err)
	}
	if row == nil {
		return domain.NotFound[domain.Patient](), nil
	}
	return domain.Found(*row), nil
}

func (d *directory) FindStaff(ctx context.Context, id snowflake.ID) (domain.Lookup[domain.Staff], error) {
	row, err := d.staff.FindOne(ctx, nil, option.WithWhere("id = ?", id))
	if err != nil {
		return domain.NotFound[domain.Staff](), fmt.Errorf("find staff: %w", err)
	}
	if row == nil {
		return domain.NotFound[domain.Staff](), nil
	}
	return domain.Found(*row), nil
}
