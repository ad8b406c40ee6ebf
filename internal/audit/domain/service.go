package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActorTypeSystem = "system"
	ActorTypeStaff  = "staff"
	ActorTypeStripe = "stripe"
)

// Entry is one state change reported to the audit trail.
type Entry struct {
	Action     string
	ActorType  string
	ActorID    string
	TargetType string
	TargetID   string
	Details    map[string]any
	Timestamp  time.Time
}

// AuditLog is the persisted form of an Entry.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	Action     string         `gorm:"type:text;not null"`
	ActorType  string         `gorm:"type:text;not null"`
	ActorID    *string        `gorm:"type:text"`
	TargetType string         `gorm:"type:text;not null"`
	TargetID   *string        `gorm:"type:text"`
	Details    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"not null"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// Service accepts audit entries. Emit never fails the caller.
type Service interface {
	Emit(ctx context.Context, entry Entry)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
}
