package server

import (
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook acknowledges every verified event, including duplicates
// and discards, so the provider stops redelivering it.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	if ok, retryAfter := s.limiter.Allow(c.Request.Context(), "stripe", c.ClientIP()); !ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		AbortWithError(c, ErrRateLimited)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.Ingest(c.Request.Context(), payload, c.Request.Header)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if result.Outcome == paymentdomain.OutcomeDiscarded {
		s.log.Info("webhook event discarded", zap.String("reason", result.Reason))
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": result.Outcome})
}
