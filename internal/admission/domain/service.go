package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/billing"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateAdmissionRequest struct {
	PatientID     snowflake.ID `json:"patient_id"`
	RoomID        snowflake.ID `json:"room_id"`
	StaffID       snowflake.ID `json:"staff_id"`
	AdmissionTime *time.Time   `json:"admission_time"`
}

type DischargeRequest struct {
	AdmissionID   snowflake.ID    `json:"-"`
	DischargeTime *time.Time      `json:"discharge_time"`
	Reason        DischargeReason `json:"discharge_reason"`
	Notes         string          `json:"discharge_notes"`
	// StaffID, when set, must belong to staff allowed to discharge.
	StaffID snowflake.ID `json:"staff_id,omitempty"`
}

type DischargeResult struct {
	Admission Admission             `json:"admission"`
	Invoice   invoicedomain.Invoice `json:"invoice"`
	Billing   billing.Summary       `json:"billing_summary"`
}

type ListAdmissionRequest struct {
	pagination.Pagination
	PatientID snowflake.ID
	RoomID    snowflake.ID
	Status    Status
}

type ListAdmissionResponse struct {
	pagination.PageInfo
	Admissions []Admission `json:"admissions"`
}

type Service interface {
	Create(ctx context.Context, req CreateAdmissionRequest) (*Admission, error)
	Discharge(ctx context.Context, req DischargeRequest) (*DischargeResult, error)
	Get(ctx context.Context, id snowflake.ID) (*Admission, error)
	List(ctx context.Context, req ListAdmissionRequest) (ListAdmissionResponse, error)
	History(ctx context.Context, patientID snowflake.ID) ([]Admission, error)
	Count(ctx context.Context, req ListAdmissionRequest) (int64, error)
}

type ListFilter struct {
	PatientID snowflake.ID
	RoomID    snowflake.ID
	Status    Status
	BeforeID  int64
	Limit     int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, admission *Admission) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Admission, error)
	FindActiveByPatient(ctx context.Context, db *gorm.DB, patientID snowflake.ID) (*Admission, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Admission, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
}
