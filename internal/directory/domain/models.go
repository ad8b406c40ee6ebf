package domain

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Patient and Staff rows are owned by the registration system; this service
// only reads them.
type Patient struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Email     string       `json:"email" gorm:"type:text"`
	Status    string       `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Patient) TableName() string { return "patients" }

// Eligible reports whether the patient may be admitted.
func (p Patient) Eligible() bool {
	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "active", "eligible":
		return true
	default:
		return false
	}
}

type Staff struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name" gorm:"type:text;not null"`
	Email     string       `json:"email" gorm:"type:text"`
	Role      string       `json:"role" gorm:"type:text;not null"`
	Status    string       `json:"status" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Staff) TableName() string { return "staff" }

// OnDuty reports whether the staff member is currently working.
func (s Staff) OnDuty() bool {
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case "active", "on_duty":
		return true
	default:
		return false
	}
}

// Lookup is the result of a directory query: either Found with a value, or
// not found.
type Lookup[T any] struct {
	Found bool
	Value T
}

func Found[T any](value T) Lookup[T] {
	return Lookup[T]{Found: true, Value: value}
}

func NotFound[T any]() Lookup[T] {
	return Lookup[T]{}
}

//go:generate mockgen -source=models.go -destination=mock_directory.go -package=domain

type Directory interface {
	FindPatient(ctx context.Context, id snowflake.ID) (Lookup[Patient], error)
	FindStaff(ctx context.Context, id snowflake.ID) (Lookup[Staff], error)
}
