package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
)

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	page, ok := bindPagination(c)
	if !ok {
		return
	}
	patientID, ok := queryID(c, "patient_id")
	if !ok {
		return
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Pagination: page,
		PatientID:  patientID,
		Status:     invoicedomain.InvoiceStatus(c.Query("status")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, resp.PageInfo, resp.Invoices)
}

// GetInvoiceByID accepts either the invoice id or its number.
func (s *Server) GetInvoiceByID(c *gin.Context) {
	ctx := c.Request.Context()
	invoice, err := s.invoiceSvc.Resolve(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.invoiceSvc.Items(ctx, invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice, "items": items})
}

func (s *Server) AddInvoiceItem(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req invoicedomain.ItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	invoice, err := s.invoiceSvc.AddItem(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Issue(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	invoice, err := s.invoiceSvc.Cancel(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) CreateCheckoutLink(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	link, err := s.paymentSvc.CreateCheckoutLink(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": link})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	page, ok := bindPagination(c)
	if !ok {
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		Pagination: page,
		InvoiceID:  id,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, resp.PageInfo, resp.Payments)
}
