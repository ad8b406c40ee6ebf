package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/carebill/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareTagsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var requestID, actorType, actorID string
	r.GET("/rooms", func(c *gin.Context) {
		requestID = obscontext.RequestIDFromContext(c.Request.Context())
		actorType, actorID = obscontext.ActorFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("X-Request-Id", "req-7")
	req.Header.Set("X-Staff-Id", "99")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-7", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "req-7", requestID)
	assert.Equal(t, "staff", actorType)
	assert.Equal(t, "99", actorID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "system", actorType)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/v1/rooms", http.StatusInternalServerError))
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/v1/rooms", http.StatusConflict))
}
