package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/internal/apperror"
	auditdomain "github.com/smallbiznis/carebill/internal/audit/domain"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/concurrency"
	"github.com/smallbiznis/carebill/internal/events"
	"github.com/smallbiznis/carebill/internal/room/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var roomNumberPattern = regexp.MustCompile(`^[A-Za-z0-9\- ]+$`)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	AuditSvc  auditdomain.Service
	Publisher events.Publisher
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	auditSvc  auditdomain.Service
	publisher events.Publisher
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("room.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		auditSvc:  p.AuditSvc,
		publisher: p.Publisher,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRoomRequest) (*domain.Room, error) {
	number := strings.TrimSpace(req.RoomNumber)
	switch {
	case number == "" || len(number) > 50:
		return nil, apperror.Validation("room_number", "must be 1-50 characters")
	case !roomNumberPattern.MatchString(number):
		return nil, apperror.Validation("room_number", "may only contain letters, digits, hyphens and spaces")
	}
	roomType := domain.RoomType(strings.ToUpper(strings.TrimSpace(string(req.Type))))
	if !roomType.Valid() {
		return nil, apperror.Validation("type", "must be STANDARD, PRIVATE or ICU")
	}
	if req.DailyRate <= 0 {
		return nil, apperror.Validation("daily_rate", "must be positive")
	}

	now := s.clock.Now()
	room := &domain.Room{
		ID:         s.genID.Generate(),
		RoomNumber: number,
		Type:       roomType,
		Status:     domain.RoomStatusAvailable,
		DailyRate:  req.DailyRate,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	inserted, err := s.repo.Insert(ctx, s.db, room)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	if !inserted {
		return nil, apperror.AlreadyExists("room", number)
	}

	s.emit(ctx, events.TypeRoomCreated, "room.create", room, map[string]any{
		"room_number": room.RoomNumber,
		"type":        room.Type,
		"daily_rate":  room.DailyRate,
	})
	return room, nil
}

// SetStatus drives maintenance transitions. Occupancy is owned by the
// admission workflow and cannot be toggled directly.
func (s *Service) SetStatus(ctx context.Context, req domain.SetStatusRequest) (*domain.Room, error) {
	target := domain.RoomStatus(strings.ToUpper(strings.TrimSpace(string(req.Status))))
	if !target.Valid() {
		return nil, apperror.Validation("status", "must be AVAILABLE, OCCUPIED or MAINTENANCE")
	}

	room, err := s.load(ctx, s.db, req.RoomID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(room.Status, target) ||
		target == domain.RoomStatusOccupied || room.Status == domain.RoomStatusOccupied {
		return nil, apperror.InvalidStateTransition("room", string(room.Status), string(target))
	}

	from := room.Status
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.casStatus(ctx, tx, room, req.ExpectedVersion, target)
	}); err != nil {
		return nil, err
	}

	s.emit(ctx, events.TypeRoomStatusChanged, "room.set_status", room, map[string]any{
		"from": from,
		"to":   room.Status,
	})
	return room, nil
}

func (s *Service) SetStatusTx(ctx context.Context, tx *gorm.DB, room *domain.Room, status domain.RoomStatus) error {
	if !domain.CanTransition(room.Status, status) {
		return apperror.InvalidStateTransition("room", string(room.Status), string(status))
	}
	return s.casStatus(ctx, tx, room, room.Version, status)
}

func (s *Service) casStatus(ctx context.Context, tx *gorm.DB, room *domain.Room, expected int64, status domain.RoomStatus) error {
	now := s.clock.Now()
	if err := concurrency.CompareAndSwap(ctx, tx, room, room.ID, expected, map[string]any{
		"status":     status,
		"updated_at": now,
	}); err != nil {
		return err
	}
	room.Status = status
	room.Version = expected + 1
	room.UpdatedAt = now
	return nil
}

func (s *Service) UpdateRate(ctx context.Context, req domain.UpdateRateRequest) (*domain.Room, error) {
	if req.DailyRate <= 0 {
		return nil, apperror.Validation("daily_rate", "must be positive")
	}

	room, err := s.load(ctx, s.db, req.RoomID)
	if err != nil {
		return nil, err
	}

	previous := room.DailyRate
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		busy, err := s.repo.HasActiveAdmission(ctx, tx, room.ID)
		if err != nil {
			return fmt.Errorf("check active admission: %w", err)
		}
		if busy || room.Status == domain.RoomStatusOccupied {
			return apperror.ErrRoomBusy
		}

		now := s.clock.Now()
		if err := concurrency.CompareAndSwap(ctx, tx, room, room.ID, req.ExpectedVersion, map[string]any{
			"daily_rate": req.DailyRate,
			"updated_at": now,
		}); err != nil {
			return err
		}
		room.DailyRate = req.DailyRate
		room.Version = req.ExpectedVersion + 1
		room.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.TypeRoomRateUpdated, "room.update_rate", room, map[string]any{
		"previous_rate": previous,
		"daily_rate":    room.DailyRate,
	})
	return room, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Room, error) {
	return s.load(ctx, s.db, id)
}

func (s *Service) GetTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Room, error) {
	return s.load(ctx, tx, id)
}

func (s *Service) GetByNumber(ctx context.Context, roomNumber string) (*domain.Room, error) {
	room, err := s.repo.FindByNumber(ctx, s.db, roomNumber)
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}
	if room == nil {
		return nil, apperror.NotFound("room", strings.TrimSpace(roomNumber))
	}
	return room, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Room, error) {
	room, err := s.repo.FindByID(ctx, db, id)
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}
	if room == nil {
		return nil, apperror.NotFound("room", id.String())
	}
	return room, nil
}

func (s *Service) emit(ctx context.Context, eventType, action string, room *domain.Room, details map[string]any) {
	roomID := room.ID.String()
	if s.auditSvc != nil {
		s.auditSvc.Emit(ctx, auditdomain.Entry{
			Action:     action,
			TargetType: "room",
			TargetID:   roomID,
			Details:    details,
		})
	}
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, events.Event{
			Type:       eventType,
			Entity:     "room",
			EntityID:   roomID,
			Status:     string(room.Status),
			OccurredAt: s.clock.Now(),
			Data:       details,
		})
		if err != nil {
			s.log.Warn("publish room event failed", zap.String("type", eventType), zap.Error(err))
		}
	}
}
