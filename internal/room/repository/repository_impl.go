package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/room/domain"
	"github.com/smallbiznis/carebill/pkg/db/option"
	"github.com/smallbiznis/carebill/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert creates the room unless the room number is taken, reporting whether
// a row was written.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, room *domain.Room) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "room_number"}}, DoNothing: true}).
		Create(room)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Room, error) {
	return repository.ProvideStore[domain.Room](db).FindOne(ctx, nil, option.WithWhere("id = ?", id))
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, roomNumber string) (*domain.Room, error) {
	return repository.ProvideStore[domain.Room](db).FindOne(ctx, nil,
		option.WithWhere("room_number = ?", strings.TrimSpace(roomNumber)))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Room, error) {
	opts := []option.QueryOption{
		option.WithIDBefore(filter.BeforeID),
		option.WithOrder("id DESC"),
		option.WithLimit(filter.Limit),
	}
	if filter.Type != "" {
		opts = append(opts, option.WithWhere("type = ?", filter.Type))
	}
	if filter.Status != "" {
		opts = append(opts, option.WithWhere("status = ?", filter.Status))
	}
	return repository.ProvideStore[domain.Room](db).Find(ctx, nil, opts...)
}

func (r *repo) CountBy(ctx context.Context, db *gorm.DB) ([]domain.CountRow, error) {
	var rows []domain.CountRow
	err := db.WithContext(ctx).Raw(
		`SELECT type, status, COUNT(1) AS count
		FROM rooms
		GROUP BY type, status`,
	).Scan(&rows).Error
	return rows, err
}

func (r *repo) HasActiveAdmission(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM admissions WHERE room_id = ? AND status = 'ACTIVE'`,
		roomID,
	).Scan(&count).Error
	return count > 0, err
}
