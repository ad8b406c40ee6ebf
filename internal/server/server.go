package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/carebill/internal/admission"
	admissiondomain "github.com/smallbiznis/carebill/internal/admission/domain"
	"github.com/smallbiznis/carebill/internal/audit"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/config"
	"github.com/smallbiznis/carebill/internal/directory"
	"github.com/smallbiznis/carebill/internal/events"
	"github.com/smallbiznis/carebill/internal/invoice"
	invoicedomain "github.com/smallbiznis/carebill/internal/invoice/domain"
	"github.com/smallbiznis/carebill/internal/observability"
	obsmiddleware "github.com/smallbiznis/carebill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/carebill/internal/observability/tracing"
	"github.com/smallbiznis/carebill/internal/payment"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"github.com/smallbiznis/carebill/internal/ratelimit"
	"github.com/smallbiznis/carebill/internal/room"
	roomdomain "github.com/smallbiznis/carebill/internal/room/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	directory.Module,
	room.Module,
	invoice.Module,
	admission.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	roomSvc      roomdomain.Service
	admissionSvc admissiondomain.Service
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	webhookSvc   paymentdomain.WebhookService
	limiter      *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	RoomSvc      roomdomain.Service
	AdmissionSvc admissiondomain.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	WebhookSvc   paymentdomain.WebhookService
	Limiter      *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		roomSvc:      p.RoomSvc,
		admissionSvc: p.AdmissionSvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		webhookSvc:   p.WebhookSvc,
		limiter:      p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	// -------- Rooms --------
	api.POST("/rooms", s.CreateRoom)
	api.GET("/rooms", s.ListRooms)
	api.GET("/rooms/available", s.ListAvailableRooms)
	api.GET("/rooms/statistics", s.GetRoomStatistics)
	api.GET("/rooms/:id", s.GetRoomByID)
	api.POST("/rooms/:id/status", s.SetRoomStatus)
	api.POST("/rooms/:id/rate", s.UpdateRoomRate)

	// -------- Admissions --------
	api.POST("/admissions", s.CreateAdmission)
	api.GET("/admissions", s.ListAdmissions)
	api.GET("/admissions/:id", s.GetAdmissionByID)
	api.POST("/admissions/:id/discharge", s.DischargeAdmission)
	api.GET("/patients/:id/admissions", s.ListPatientAdmissions)

	// -------- Invoices --------
	api.POST("/invoices", s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.POST("/invoices/:id/items", s.AddInvoiceItem)
	api.POST("/invoices/:id/issue", s.IssueInvoice)
	api.POST("/invoices/:id/cancel", s.CancelInvoice)
	api.POST("/invoices/:id/checkout-link", s.CreateCheckoutLink)
	api.GET("/invoices/:id/payments", s.ListInvoicePayments)

	// -------- Payments --------
	api.POST("/payments", s.RecordManualPayment)
	api.GET("/payments", s.ListPayments)
	api.POST("/payments/:id/refund", s.RefundPayment)
	api.GET("/payments/local-checkout/:ref", s.GetLocalCheckout)
	api.POST("/payments/local-checkout/:ref/complete", s.CompleteLocalCheckout)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/stripe", s.HandlePaymentWebhook)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
