package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/internal/room/domain"
	"github.com/smallbiznis/carebill/pkg/db/pagination"
)

func (s *Service) List(ctx context.Context, req domain.ListRoomRequest) (domain.ListRoomResponse, error) {
	filter := domain.ListFilter{Limit: req.Limit() + 1}
	if req.Type != "" {
		filter.Type = domain.RoomType(strings.ToUpper(string(req.Type)))
		if !filter.Type.Valid() {
			return domain.ListRoomResponse{}, apperror.Validation("type", "unknown room type")
		}
	}
	if req.Status != "" {
		filter.Status = domain.RoomStatus(strings.ToUpper(string(req.Status)))
		if !filter.Status.Valid() {
			return domain.ListRoomResponse{}, apperror.Validation("status", "unknown room status")
		}
	}
	cursor, err := req.CursorID()
	if err != nil {
		return domain.ListRoomResponse{}, apperror.Validation("page_token", "malformed")
	}
	filter.BeforeID = cursor

	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListRoomResponse{}, fmt.Errorf("list rooms: %w", err)
	}
	rows, info := pagination.Trim(rows, req.Limit(), func(r *domain.Room) int64 { return r.ID.Int64() })

	out := make([]domain.Room, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return domain.ListRoomResponse{PageInfo: info, Rooms: out}, nil
}

// ListAvailable returns every AVAILABLE room, optionally of one type, ordered
// by room number.
func (s *Service) ListAvailable(ctx context.Context, roomType domain.RoomType) ([]domain.Room, error) {
	filter := domain.ListFilter{Status: domain.RoomStatusAvailable}
	if roomType != "" {
		filter.Type = domain.RoomType(strings.ToUpper(string(roomType)))
		if !filter.Type.Valid() {
			return nil, apperror.Validation("type", "unknown room type")
		}
	}
	rows, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, fmt.Errorf("list available rooms: %w", err)
	}

	out := make([]domain.Room, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomNumber < out[j].RoomNumber })
	return out, nil
}

func (s *Service) Statistics(ctx context.Context) (domain.Statistics, error) {
	rows, err := s.repo.CountBy(ctx, s.db)
	if err != nil {
		return domain.Statistics{}, fmt.Errorf("count rooms: %w", err)
	}

	stats := domain.Statistics{
		ByType:   map[domain.RoomType]int64{},
		ByStatus: map[domain.RoomStatus]int64{},
	}
	for _, row := range rows {
		stats.Total += row.Count
		stats.ByType[row.Type] += row.Count
		stats.ByStatus[row.Status] += row.Count
	}
	stats.Available = stats.ByStatus[domain.RoomStatusAvailable]
	stats.Occupied = stats.ByStatus[domain.RoomStatusOccupied]
	stats.Maintenance = stats.ByStatus[domain.RoomStatusMaintenance]
	if stats.Total > 0 {
		rate := float64(stats.Occupied) / float64(stats.Total) * 100
		stats.OccupancyRate = math.Round(rate*100) / 100
	}
	return stats, nil
}
