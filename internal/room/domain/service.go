package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateRoomRequest struct {
	RoomNumber string   `json:"room_number"`
	Type       RoomType `json:"type"`
	DailyRate  int64    `json:"daily_rate"`
}

type SetStatusRequest struct {
	RoomID          snowflake.ID `json:"-"`
	Status          RoomStatus   `json:"status"`
	ExpectedVersion int64        `json:"expected_version"`
}

type UpdateRateRequest struct {
	RoomID          snowflake.ID `json:"-"`
	DailyRate       int64        `json:"daily_rate"`
	ExpectedVersion int64        `json:"expected_version"`
}

type ListRoomRequest struct {
	pagination.Pagination
	Type   RoomType
	Status RoomStatus
}

type ListRoomResponse struct {
	pagination.PageInfo
	Rooms []Room `json:"rooms"`
}

type Statistics struct {
	Total         int64                `json:"total"`
	Available     int64                `json:"available"`
	Occupied      int64                `json:"occupied"`
	Maintenance   int64                `json:"maintenance"`
	OccupancyRate float64              `json:"occupancy_rate"`
	ByType        map[RoomType]int64   `json:"by_type"`
	ByStatus      map[RoomStatus]int64 `json:"by_status"`
}

type Service interface {
	Create(ctx context.Context, req CreateRoomRequest) (*Room, error)
	SetStatus(ctx context.Context, req SetStatusRequest) (*Room, error)
	UpdateRate(ctx context.Context, req UpdateRateRequest) (*Room, error)
	Get(ctx context.Context, id snowflake.ID) (*Room, error)
	GetByNumber(ctx context.Context, roomNumber string) (*Room, error)
	List(ctx context.Context, req ListRoomRequest) (ListRoomResponse, error)
	ListAvailable(ctx context.Context, roomType RoomType) ([]Room, error)
	Statistics(ctx context.Context) (Statistics, error)

	// GetTx reads the room through a caller-owned transaction.
	GetTx(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Room, error)

	// SetStatusTx performs the occupancy flip inside a caller-owned
	// transaction. It is the only path that may move a room to or from
	// OCCUPIED.
	SetStatusTx(ctx context.Context, tx *gorm.DB, room *Room, status RoomStatus) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, room *Room) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Room, error)
	FindByNumber(ctx context.Context, db *gorm.DB, roomNumber string) (*Room, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Room, error)
	CountBy(ctx context.Context, db *gorm.DB) ([]CountRow, error)
	HasActiveAdmission(ctx context.Context, db *gorm.DB, roomID snowflake.ID) (bool, error)
}

type ListFilter struct {
	Type     RoomType
	Status   RoomStatus
	BeforeID int64
	Limit    int
}

type CountRow struct {
	Type   RoomType
	Status RoomStatus
	Count  int64
}
