package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	admissiondomain "github.com/smallbiznis/carebill/internal/admission/domain"
)

func (s *Server) CreateAdmission(c *gin.Context) {
	var req admissiondomain.CreateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	admission, err := s.admissionSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": admission})
}

func (s *Server) ListAdmissions(c *gin.Context) {
	page, ok := bindPagination(c)
	if !ok {
		return
	}
	patientID, ok := queryID(c, "patient_id")
	if !ok {
		return
	}
	roomID, ok := queryID(c, "room_id")
	if !ok {
		return
	}

	resp, err := s.admissionSvc.List(c.Request.Context(), admissiondomain.ListAdmissionRequest{
		Pagination: page,
		PatientID:  patientID,
		RoomID:     roomID,
		Status:     admissiondomain.Status(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, resp.PageInfo, resp.Admissions)
}

func (s *Server) GetAdmissionByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	admission, err := s.admissionSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": admission})
}

// DischargeAdmission accepts an empty body, in which case the admission is
// discharged now without a reason.
func (s *Server) DischargeAdmission(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req admissiondomain.DischargeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	req.AdmissionID = id

	result, err := s.admissionSvc.Discharge(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListPatientAdmissions(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	history, err := s.admissionSvc.History(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	outstanding, err := s.invoiceSvc.OutstandingBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": history, "outstanding_balance": outstanding})
}
