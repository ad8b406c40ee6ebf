package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type RoomType string

const (
	RoomTypeStandard RoomType = "STANDARD"
	RoomTypePrivate  RoomType = "PRIVATE"
	RoomTypeICU      RoomType = "ICU"
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeStandard, RoomTypePrivate, RoomTypeICU:
		return true
	default:
		return false
	}
}

type RoomStatus string

const (
	RoomStatusAvailable   RoomStatus = "AVAILABLE"
	RoomStatusOccupied    RoomStatus = "OCCUPIED"
	RoomStatusMaintenance RoomStatus = "MAINTENANCE"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusAvailable, RoomStatusOccupied, RoomStatusMaintenance:
		return true
	default:
		return false
	}
}

var transitions = map[RoomStatus][]RoomStatus{
	RoomStatusAvailable:   {RoomStatusOccupied, RoomStatusMaintenance},
	RoomStatusOccupied:    {RoomStatusAvailable},
	RoomStatusMaintenance: {RoomStatusAvailable},
}

// CanTransition reports whether from -> to is an allowed room status change.
func CanTransition(from, to RoomStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Room struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	RoomNumber string       `json:"room_number" gorm:"type:text;not null;uniqueIndex:ux_rooms_room_number"`
	Type       RoomType     `json:"type" gorm:"type:text;not null"`
	Status     RoomStatus   `json:"status" gorm:"type:text;not null;index"`
	DailyRate  int64        `json:"daily_rate" gorm:"not null"`
	Version    int64        `json:"version" gorm:"not null;default:1"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`
}

func (Room) TableName() string  { return "rooms" }
func (Room) EntityName() string { return "room" }
