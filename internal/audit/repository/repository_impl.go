package repository

import (
	"context"

	"github.com/smallbiznis/carebill/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, action, actor_type, actor_id, target_type, target_id, details, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Action,
		entry.ActorType,
		entry.ActorID,
		entry.TargetType,
		entry.TargetID,
		entry.Details,
		entry.CreatedAt,
	).Error
}
