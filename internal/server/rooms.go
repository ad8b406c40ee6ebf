package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	roomdomain "github.com/smallbiznis/carebill/internal/room/domain"
)

func (s *Server) CreateRoom(c *gin.Context) {
	var req roomdomain.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	room, err := s.roomSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": room})
}

func (s *Server) ListRooms(c *gin.Context) {
	page, ok := bindPagination(c)
	if !ok {
		return
	}

	resp, err := s.roomSvc.List(c.Request.Context(), roomdomain.ListRoomRequest{
		Pagination: page,
		Type:       roomdomain.RoomType(c.Query("type")),
		Status:     roomdomain.RoomStatus(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, resp.PageInfo, resp.Rooms)
}

func (s *Server) ListAvailableRooms(c *gin.Context) {
	rooms, err := s.roomSvc.ListAvailable(c.Request.Context(), roomdomain.RoomType(c.Query("type")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rooms})
}

func (s *Server) GetRoomStatistics(c *gin.Context) {
	stats, err := s.roomSvc.Statistics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) GetRoomByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	room, err := s.roomSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": room})
}

func (s *Server) SetRoomStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req roomdomain.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RoomID = id

	room, err := s.roomSvc.SetStatus(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": room})
}

func (s *Server) UpdateRoomRate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req roomdomain.UpdateRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.RoomID = id

	room, err := s.roomSvc.UpdateRate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": room})
}
