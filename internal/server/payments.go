package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
)

func (s *Server) RecordManualPayment(c *gin.Context) {
	var req paymentdomain.ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	payment, err := s.paymentSvc.RecordManualPayment(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payment})
}

func (s *Server) ListPayments(c *gin.Context) {
	page, ok := bindPagination(c)
	if !ok {
		return
	}
	invoiceID, ok := queryID(c, "invoice_id")
	if !ok {
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		Pagination: page,
		InvoiceID:  invoiceID,
		Status:     paymentdomain.Status(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	respondPage(c, resp.PageInfo, resp.Payments)
}

func (s *Server) RefundPayment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := s.paymentSvc.Refund(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

// GetLocalCheckout describes a simulated checkout session so a client can
// render a confirmation page before completing it.
func (s *Server) GetLocalCheckout(c *gin.Context) {
	ref := strings.TrimSpace(c.Param("ref"))
	invoice, err := s.invoiceSvc.FindByCheckoutReference(c.Request.Context(), ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"session_ref":    ref,
		"invoice_id":     invoice.ID,
		"invoice_number": invoice.InvoiceNumber,
		"amount":         invoice.TotalAmount,
		"currency":       invoice.Currency,
		"status":         invoice.Status,
		"complete_url":   c.Request.URL.Path + "/complete",
	}})
}

func (s *Server) CompleteLocalCheckout(c *gin.Context) {
	result, err := s.paymentSvc.CompleteLocalCheckout(c.Request.Context(), c.Param("ref"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
