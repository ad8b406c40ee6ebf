package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusDischarged Status = "DISCHARGED"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusDischarged
}

type DischargeReason string

const (
	ReasonRecovery         DischargeReason = "recovery"
	ReasonTransfer         DischargeReason = "transfer"
	ReasonPatientRequest   DischargeReason = "patient_request"
	ReasonMedicalNecessity DischargeReason = "medical_necessity"
	ReasonOther            DischargeReason = "other"
)

func (r DischargeReason) Valid() bool {
	switch r {
	case ReasonRecovery, ReasonTransfer, ReasonPatientRequest, ReasonMedicalNecessity, ReasonOther:
		return true
	default:
		return false
	}
}

const MaxDischargeNotes = 500

type Admission struct {
	ID              snowflake.ID     `json:"id" gorm:"primaryKey"`
	RoomID          snowflake.ID     `json:"room_id" gorm:"not null;index"`
	PatientID       snowflake.ID     `json:"patient_id" gorm:"not null;index"`
	StaffID         snowflake.ID     `json:"staff_id" gorm:"not null"`
	AdmissionTime   time.Time        `json:"admission_time" gorm:"not null"`
	DischargeTime   *time.Time       `json:"discharge_time,omitempty"`
	DischargeReason *DischargeReason `json:"discharge_reason,omitempty" gorm:"type:text"`
	DischargeNotes  *string          `json:"discharge_notes,omitempty" gorm:"type:text"`
	InvoiceID       *snowflake.ID    `json:"invoice_id,omitempty"`
	Status          Status           `json:"status" gorm:"type:text;not null;index"`
	Version         int64            `json:"version" gorm:"not null;default:1"`
	CreatedAt       time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"not null"`
}

func (Admission) TableName() string  { return "admissions" }
func (Admission) EntityName() string { return "admission" }
