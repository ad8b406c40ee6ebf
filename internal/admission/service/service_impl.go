package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/admission/domain"
	"github.com/smallbiznis/carebill/internal/apperror"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/billing"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/concurrency"
	"github.com/smallbiznis/carebill/internal/config"
	directorydomain "github.com/smallbiznis/carebill/internal/directory/domain"
	"github.com/smallbiznis/carebill/internal/events"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/observability/metrics"
	roomdomain "github.com/smallbiznis/carebill/internal/room/domain"
	pkgdb "github.com/smallbiznis/carebill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	RoomSvc    roomdomain.Service
	InvoiceSvc invoicedomain.Service
	Directory  directorydomain.Directory
	Authz      authorization.Service
	Billing    *config.BillingConfigHolder
	AuditSvc   auditdomain.Service
	Publisher  events.Publisher
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	roomSvc    roomdomain.Service
	invoiceSvc invoicedomain.Service
	directory  directorydomain.Directory
	authz      authorization.Service
	billing    *config.BillingConfigHolder
	auditSvc   auditdomain.Service
	publisher  events.Publisher
	metrics    *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("admission.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		roomSvc:    p.RoomSvc,
		invoiceSvc: p.InvoiceSvc,
		directory:  p.Directory,
		authz:      p.Authz,
		billing:    p.Billing,
		auditSvc:   p.AuditSvc,
		publisher:  p.Publisher,
		metrics:    p.Metrics,
	}
}

// Create binds a patient to an AVAILABLE room. The admission insert and the
// room flip to OCCUPIED commit together.
func (s *Service) Create(ctx context.Context, req domain.CreateAdmissionRequest) (*domain.Admission, error) {
	switch {
	case req.PatientID == 0:
		return nil, apperror.Validation("patient_id", "is required")
	case req.RoomID == 0:
		return nil, apperror.Validation("room_id", "is required")
	case req.StaffID == 0:
		return nil, apperror.Validation("staff_id", "is required")
	}

	cfg := s.billing.Get()
	now := s.clock.Now()
	admittedAt := now
	if req.AdmissionTime != nil {
		admittedAt = req.AdmissionTime.UTC()
		if admittedAt.After(now.Add(cfg.DischargeMaxFuture)) {
			return nil, apperror.Validation("admission_time", "too far in the future")
		}
	}

	var room *roomdomain.Room
	admission, err := concurrency.Retry(ctx, func(ctx context.Context, attempt int) (*domain.Admission, error) {
		var err error
		room, err = s.roomSvc.Get(ctx, req.RoomID)
		if err != nil {
			return nil, err
		}
		if room.Status != roomdomain.RoomStatusAvailable {
			return nil, apperror.ErrRoomNotAvailable
		}
		if attempt == 0 {
			if err := s.checkPatient(ctx, req.PatientID); err != nil {
				return nil, err
			}
			if err := s.authorize(ctx, req.StaffID, authorization.ActionAdmissionCreate); err != nil {
				return nil, err
			}
		}

		admission := &domain.Admission{
			ID:            s.genID.Generate(),
			RoomID:        room.ID,
			PatientID:     req.PatientID,
			StaffID:       req.StaffID,
			AdmissionTime: admittedAt,
			Status:        domain.StatusActive,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Insert(ctx, tx, admission); err != nil {
				return err
			}
			return s.roomSvc.SetStatusTx(ctx, tx, room, roomdomain.RoomStatusOccupied)
		})
		if err != nil {
			return nil, s.classifyCreateErr(ctx, req.PatientID, err)
		}
		return admission, nil
	}, apperror.IsConcurrencyConflict, cfg.RetryMaxAttempts, cfg.RetryBaseDelay)
	if err != nil {
		if apperror.IsConcurrencyConflict(err) {
			s.metrics.RecordConflict(ctx, "room")
		}
		return nil, err
	}

	s.metrics.RecordAdmission(ctx, string(room.Type))
	s.emit(ctx, events.TypeAdmissionCreated, "admission.create", admission, map[string]any{
		"room_id":        admission.RoomID.String(),
		"patient_id":     admission.PatientID.String(),
		"staff_id":       admission.StaffID.String(),
		"admission_time": admission.AdmissionTime,
	})
	s.emitRoom(ctx, room)
	return admission, nil
}

// classifyCreateErr maps a unique violation on the ACTIVE-admission indexes
// to the domain error of whichever side lost the race.
func (s *Service) classifyCreateErr(ctx context.Context, patientID snowflake.ID, err error) error {
	if !pkgdb.IsDuplicateKeyErr(err) {
		var transition *apperror.InvalidStateTransitionError
		if errors.As(err, &transition) {
			return apperror.ErrRoomNotAvailable
		}
		return err
	}
	active, findErr := s.repo.FindActiveByPatient(ctx, s.db, patientID)
	if findErr == nil && active != nil {
		return apperror.ErrPatientAlreadyAdmitted
	}
	return apperror.ErrRoomNotAvailable
}

func (s *Service) checkPatient(ctx context.Context, patientID snowflake.ID) error {
	lookup, err := s.directory.FindPatient(ctx, patientID)
	if err != nil {
		return fmt.Errorf("find patient: %w", err)
	}
	if !lookup.Found {
		return apperror.NotFound("patient", patientID.String())
	}
	if !lookup.Value.Eligible() {
		return apperror.Validation("patient_id", "patient is not eligible for admission")
	}
	active, err := s.repo.FindActiveByPatient(ctx, s.db, patientID)
	if err != nil {
		return fmt.Errorf("find active admission: %w", err)
	}
	if active != nil {
		return apperror.ErrPatientAlreadyAdmitted
	}
	return nil
}

func (s *Service) authorize(ctx context.Context, staffID snowflake.ID, action string) error {
	lookup, err := s.directory.FindStaff(ctx, staffID)
	if err != nil {
		return fmt.Errorf("find staff: %w", err)
	}
	if !lookup.Found || !lookup.Value.OnDuty() {
		return apperror.ErrStaffNotAuthorized
	}
	allowed, err := s.authz.Allowed(ctx, lookup.Value.Role, authorization.ObjectAdmission, action)
	if err != nil {
		if errors.Is(err, authorization.ErrInvalidRole) {
			return apperror.ErrStaffNotAuthorized
		}
		return fmt.Errorf("authorize staff: %w", err)
	}
	if !allowed {
		return apperror.ErrStaffNotAuthorized
	}
	return nil
}

// Discharge ends an ACTIVE stay. The invoice for the stay, the admission
// update and the room release commit in one transaction; a version conflict
// restarts the whole workflow from a fresh read.
func (s *Service) Discharge(ctx context.Context, req domain.DischargeRequest) (*domain.DischargeResult, error) {
	reason := domain.DischargeReason(strings.ToLower(strings.TrimSpace(string(req.Reason))))
	if reason != "" && !reason.Valid() {
		return nil, apperror.Validation("discharge_reason", "unknown discharge reason")
	}
	notes := strings.TrimSpace(req.Notes)
	if len([]rune(notes)) > domain.MaxDischargeNotes {
		return nil, apperror.Validation("discharge_notes", fmt.Sprintf("must be at most %d characters", domain.MaxDischargeNotes))
	}
	if req.StaffID != 0 {
		if err := s.authorize(ctx, req.StaffID, authorization.ActionAdmissionDischarge); err != nil {
			return nil, err
		}
	}

	cfg := s.billing.Get()
	tariff := billing.TariffFromConfig(cfg)
	attempts := 0

	var room *roomdomain.Room
	result, err := concurrency.Retry(ctx, func(ctx context.Context, attempt int) (*domain.DischargeResult, error) {
		attempts = attempt + 1
		admission, err := s.load(ctx, req.AdmissionID)
		if err != nil {
			return nil, err
		}
		if admission.Status != domain.StatusActive {
			return nil, apperror.ErrAlreadyDischarged
		}

		now := s.clock.Now()
		dischargedAt := now
		if req.DischargeTime != nil {
			dischargedAt = req.DischargeTime.UTC()
		}
		if err := validateDischargeTime(admission.AdmissionTime, dischargedAt, now, cfg); err != nil {
			return nil, err
		}

		room, err = s.roomSvc.Get(ctx, admission.RoomID)
		if err != nil {
			return nil, err
		}
		summary, err := billing.Compute(admission.AdmissionTime, dischargedAt, room.DailyRate, string(room.Type), tariff)
		if err != nil {
			return nil, err
		}

		var invoice *invoicedomain.Invoice
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			admissionID := admission.ID
			created, err := s.invoiceSvc.CreateTx(ctx, tx, invoicedomain.CreateInvoiceRequest{
				PatientID:   admission.PatientID,
				AdmissionID: &admissionID,
				Currency:    cfg.Currency,
				Items: []invoicedomain.ItemInput{{
					Description: fmt.Sprintf("Room %s (%s) stay: %s", room.RoomNumber, room.Type, summary.FormattedDuration),
					Quantity:    1,
					UnitPrice:   summary.Subtotal(),
					Tax:         summary.Tax,
				}},
			})
			if err != nil {
				return err
			}
			invoice, err = s.invoiceSvc.IssueTx(ctx, tx, created.ID)
			if err != nil {
				return err
			}

			updates := map[string]any{
				"status":         domain.StatusDischarged,
				"discharge_time": dischargedAt,
				"invoice_id":     invoice.ID,
				"updated_at":     now,
			}
			if reason != "" {
				updates["discharge_reason"] = reason
			}
			if notes != "" {
				updates["discharge_notes"] = notes
			}
			if err := concurrency.CompareAndSwap(ctx, tx, admission, admission.ID, admission.Version, updates); err != nil {
				return err
			}
			return s.roomSvc.SetStatusTx(ctx, tx, room, roomdomain.RoomStatusAvailable)
		})
		if err != nil {
			return nil, err
		}

		admission.Status = domain.StatusDischarged
		admission.DischargeTime = &dischargedAt
		admission.InvoiceID = &invoice.ID
		admission.Version++
		admission.UpdatedAt = now
		if reason != "" {
			admission.DischargeReason = &reason
		}
		if notes != "" {
			admission.DischargeNotes = &notes
		}
		return &domain.DischargeResult{Admission: *admission, Invoice: *invoice, Billing: summary}, nil
	}, apperror.IsConcurrencyConflict, cfg.RetryMaxAttempts, cfg.RetryBaseDelay)
	if err != nil {
		if apperror.IsConcurrencyConflict(err) {
			s.metrics.RecordConflict(ctx, "admission")
			s.log.Warn("discharge gave up after conflicts",
				zap.String("admission_id", req.AdmissionID.String()),
				zap.Int("attempts", attempts),
			)
		}
		return nil, err
	}

	s.metrics.RecordDischarge(ctx, string(room.Type), attempts)
	s.emit(ctx, events.TypeAdmissionDischarged, "admission.discharge", &result.Admission, map[string]any{
		"room_id":         result.Admission.RoomID.String(),
		"discharge_time":  result.Admission.DischargeTime,
		"reason":          string(reason),
		"discharge_notes": notes,
		"invoice_id":      result.Invoice.ID.String(),
		"total":           result.Billing.Total,
		"attempts":        attempts,
	})
	s.emitRoom(ctx, room)
	s.invoiceSvc.Announce(ctx, invoicedomain.Transition{
		Action:  "invoice.issue",
		Invoice: result.Invoice,
		Details: map[string]any{"admission_id": result.Admission.ID.String()},
	})
	return result, nil
}

// validateDischargeTime bounds the discharge instant by the admission time
// and the configured clock skew around now.
func validateDischargeTime(admittedAt, dischargedAt, now time.Time, cfg config.BillingConfig) error {
	switch {
	case dischargedAt.Before(admittedAt):
		return apperror.Validation("discharge_time", "must not be before admission_time")
	case dischargedAt.After(now.Add(cfg.DischargeMaxFuture)):
		return apperror.Validation("discharge_time", "too far in the future")
	case dischargedAt.Before(now.Add(-cfg.DischargeMaxPast)):
		return apperror.Validation("discharge_time", "too far in the past")
	}
	return nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.Admission, error) {
	admission, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("find admission: %w", err)
	}
	if admission == nil {
		return nil, apperror.NotFound("admission", id.String())
	}
	return admission, nil
}

func (s *Service) emit(ctx context.Context, eventType, action string, admission *domain.Admission, details map[string]any) {
	admissionID := admission.ID.String()
	if s.auditSvc != nil {
		s.auditSvc.Emit(ctx, auditdomain.Entry{
			Action:     action,
			TargetType: "admission",
			TargetID:   admissionID,
			Details:    details,
		})
	}
	s.publish(ctx, events.Event{
		Type:       eventType,
		Entity:     "admission",
		EntityID:   admissionID,
		Status:     string(admission.Status),
		OccurredAt: s.clock.Now(),
		Data:       details,
	})
}

func (s *Service) emitRoom(ctx context.Context, room *roomdomain.Room) {
	s.publish(ctx, events.Event{
		Type:       events.TypeRoomStatusChanged,
		Entity:     "room",
		EntityID:   room.ID.String(),
		Status:     string(room.Status),
		OccurredAt: s.clock.Now(),
		Data:       map[string]any{"room_number": room.RoomNumber, "version": room.Version},
	})
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.log.Warn("publish event failed", zap.String("type", event.Type), zap.Error(err))
	}
}
