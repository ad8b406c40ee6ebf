package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
	admissionrepo "github.com/smallbiznis/carebill/internal/admission/repository"
	admissionservice "github.com/smallbiznis/carebill/internal/admission/service"
	"github.com/smallbiznis/carebill/internal/apperror"
	"github.com/smallbiznis/carebill/internal/authorization"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	directorydomain "github.com/smallbiznis/carebill/internal/directory/domain"
	directoryrepo "github.com/smallbiznis/carebill/internal/directory/repository"
	invoicerepo "github.com/smallbiznis/carebill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/carebill/internal/invoice/service"
	"github.com/smallbiznis/carebill/internal/observability"
	obsmetrics "github.com/smallbiznis/carebill/internal/observability/metrics"
	"github.com/smallbiznis/carebill/internal/payment/adapters/local"
	"github.com/smallbiznis/carebill/internal/payment/adapters/stripe"
	paymentrepo "github.com/smallbiznis/carebill/internal/payment/repository"
	paymentservice "github.com/smallbiznis/carebill/internal/payment/service"
	"github.com/smallbiznis/carebill/internal/payment/webhook"
	"github.com/smallbiznis/carebill/internal/ratelimit"
	roomrepo "github.com/smallbiznis/carebill/internal/room/repository"
	roomservice "github.com/smallbiznis/carebill/internal/room/service"
	"github.com/smallbiznis/carebill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

type testAPI struct {
	engine  *gin.Engine
	clock   *clock.FakeClock
	patient directorydomain.Patient
	doctor  directorydomain.Staff
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithLimiter(t, nil)
}

func newTestAPIWithLimiter(t *testing.T, limiter *ratelimit.WebhookLimiter) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	log := zap.NewNop()
	clk := clock.NewFakeClock(testutil.Epoch)
	audit := &testutil.RecordingAudit{}
	publisher := &testutil.RecordingPublisher{}
	cfg := config.DefaultBillingConfig()
	cfg.RetryBaseDelay = time.Millisecond
	billing := config.NewStaticBillingConfig(cfg)

	rooms := roomservice.NewService(roomservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: roomrepo.Provide(), AuditSvc: audit, Publisher: publisher,
	})
	invoices := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo: invoicerepo.Provide(), Billing: billing, AuditSvc: audit, Publisher: publisher,
	})
	enforcer, err := authorization.NewEnforcer(db)
	require.NoError(t, err)
	admissions := admissionservice.NewService(admissionservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:       admissionrepo.Provide(),
		RoomSvc:    rooms,
		InvoiceSvc: invoices,
		Directory:  directoryrepo.Provide(db),
		Authz:      authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer, AuditSvc: audit}),
		Billing:    billing,
		AuditSvc:   audit,
		Publisher:  publisher,
	})
	payments := paymentservice.NewService(paymentservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk,
		Repo:       paymentrepo.Provide(),
		InvoiceSvc: invoices,
		Providers:  paymentservice.Providers{Local: local.New("http://clinic.test")},
		AuditSvc:   audit,
	})
	verifier := stripe.New(config.StripeConfig{WebhookSecret: testWebhookSecret}, clk)
	webhooks := webhook.NewService(webhook.Params{Log: log, PaymentSvc: payments, Verifier: verifier})

	httpMetrics, err := obsmetrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	engine := NewEngine(observability.Config{}, httpMetrics)
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{},
		Log:          log,
		RoomSvc:      rooms,
		AdmissionSvc: admissions,
		InvoiceSvc:   invoices,
		PaymentSvc:   payments,
		WebhookSvc:   webhooks,
		Limiter:      limiter,
	})

	return &testAPI{
		engine:  engine,
		clock:   clk,
		patient: testutil.CreatePatient(t, db, node, "active"),
		doctor:  testutil.CreateStaff(t, db, node, "doctor", "on_duty"),
	}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorPayload   `json:"error"`
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)

	var out envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestAdmissionLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/rooms", gin.H{"room_number": "R1", "type": "STANDARD", "daily_rate": 15000})
	require.Equal(t, http.StatusCreated, code)
	room := decode[map[string]any](t, resp.Data)
	roomID := room["id"].(string)

	code, resp = api.do(t, http.MethodPost, "/api/v1/admissions", gin.H{
		"patient_id": api.patient.ID.String(),
		"room_id":    roomID,
		"staff_id":   api.doctor.ID.String(),
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	admission := decode[map[string]any](t, resp.Data)
	assert.Equal(t, "ACTIVE", admission["status"])

	code, resp = api.do(t, http.MethodPost, "/api/v1/admissions", gin.H{
		"patient_id": api.patient.ID.String(),
		"room_id":    roomID,
		"staff_id":   api.doctor.ID.String(),
	})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "room_not_available", resp.Error.Type)

	api.clock.Advance(12 * time.Hour)
	code, resp = api.do(t, http.MethodPost, "/api/v1/admissions/"+admission["id"].(string)+"/discharge", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	result := decode[struct {
		Invoice struct {
			ID            string `json:"id"`
			InvoiceNumber string `json:"invoice_number"`
			TotalAmount   int64  `json:"total_amount"`
			Status        string `json:"status"`
		} `json:"invoice"`
		Billing struct {
			BaseCharge int64 `json:"base_charge"`
			SameDay    bool  `json:"same_day"`
		} `json:"billing_summary"`
	}](t, resp.Data)
	assert.Equal(t, int64(7500), result.Billing.BaseCharge)
	assert.True(t, result.Billing.SameDay)
	assert.Equal(t, int64(8137), result.Invoice.TotalAmount)
	assert.Equal(t, "ISSUED", result.Invoice.Status)

	code, resp = api.do(t, http.MethodGet, "/api/v1/invoices/"+result.Invoice.InvoiceNumber, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, result.Invoice.ID, decode[map[string]any](t, resp.Data)["id"])

	code, resp = api.do(t, http.MethodPost, "/api/v1/payments", gin.H{
		"invoice_id": result.Invoice.InvoiceNumber,
		"amount":     8137,
		"method":     "cash",
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)

	code, resp = api.do(t, http.MethodGet, "/api/v1/invoices/"+result.Invoice.ID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", decode[map[string]any](t, resp.Data)["status"])

	code, resp = api.do(t, http.MethodGet, "/api/v1/patients/"+api.patient.ID.String()+"/admissions", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, resp.Data), 1)

	code, resp = api.do(t, http.MethodGet, "/api/v1/rooms/statistics", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), decode[map[string]any](t, resp.Data)["available"])
}

func TestErrorEnvelope(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodGet, "/api/v1/rooms/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "validation_error", resp.Error.Type)

	code, resp = api.do(t, http.MethodGet, "/api/v1/rooms/12345", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Error.Type)

	code, resp = api.do(t, http.MethodPost, "/api/v1/rooms", gin.H{"room_number": "R1", "type": "SUITE", "daily_rate": 1})
	assert.Equal(t, http.StatusBadRequest, code)
	require.Len(t, resp.Error.Errors, 1)
	assert.Equal(t, "type", resp.Error.Errors[0].Field)

	code, _ = api.do(t, http.MethodPost, "/api/v1/rooms", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp = api.do(t, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", resp.Error.Type)
}

func TestMapErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperror.NotFound("room", "1"), http.StatusNotFound},
		{apperror.Validation("amount", "must be positive"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", apperror.ErrRoomNotAvailable), http.StatusConflict},
		{apperror.ErrPatientAlreadyAdmitted, http.StatusConflict},
		{apperror.ErrRoomBusy, http.StatusConflict},
		{apperror.ErrAlreadyDischarged, http.StatusConflict},
		{apperror.ConcurrencyConflict("admission", "1"), http.StatusConflict},
		{apperror.AlreadyExists("room", "R1"), http.StatusConflict},
		{apperror.InvalidStateTransition("invoice", "PAID", "CANCELLED"), http.StatusConflict},
		{apperror.InvalidState("invoice", "DRAFT", "checkout"), http.StatusConflict},
		{apperror.ErrStaffNotAuthorized, http.StatusForbidden},
		{apperror.ExternalProvider("stripe", context.DeadlineExceeded), http.StatusBadGateway},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := mapError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func sign(t *testing.T, payload []byte, at time.Time) string {
	t.Helper()
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestStripeWebhookSettlesInvoiceOnce(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/invoices", gin.H{
		"patient_id": api.patient.ID.String(),
		"items":      []gin.H{{"description": "Consultation", "quantity": 1, "unit_price": 5000}},
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	invoiceID := decode[map[string]any](t, resp.Data)["id"].(string)

	code, _ = api.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/issue", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = api.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/checkout-link", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	link := decode[map[string]any](t, resp.Data)
	session := link["session_ref"].(string)
	assert.Equal(t, true, link["simulated"])

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"checkout.session.completed","created":%d,"data":{"object":{"id":%q,"payment_intent":"pi_1","amount_total":5000,"currency":"usd","metadata":{"invoice_id":%q}}}}`,
		testutil.Epoch.Unix(), session, invoiceID))

	code, resp = api.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", payload, "Stripe-Signature", "t=1,v1=bad")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_signature", resp.Error.Type)

	header := sign(t, payload, api.clock.Now())
	for i := 0; i < 2; i++ {
		code, _ = api.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", payload, "Stripe-Signature", header)
		require.Equal(t, http.StatusOK, code)
	}

	code, resp = api.do(t, http.MethodGet, "/api/v1/invoices/"+invoiceID+"/payments", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]map[string]any](t, resp.Data), 1)

	code, resp = api.do(t, http.MethodGet, "/api/v1/invoices/"+invoiceID, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PAID", decode[map[string]any](t, resp.Data)["status"])
}

func TestLocalCheckoutCompletion(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(t, http.MethodPost, "/api/v1/invoices", gin.H{
		"patient_id": api.patient.ID.String(),
		"items":      []gin.H{{"description": "X-ray", "quantity": 2, "unit_price": 2500}},
	})
	require.Equal(t, http.StatusCreated, code)
	invoiceID := decode[map[string]any](t, resp.Data)["id"].(string)
	code, _ = api.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/issue", nil)
	require.Equal(t, http.StatusOK, code)

	code, resp = api.do(t, http.MethodPost, "/api/v1/invoices/"+invoiceID+"/checkout-link", nil)
	require.Equal(t, http.StatusOK, code)
	session := decode[map[string]any](t, resp.Data)["session_ref"].(string)

	code, resp = api.do(t, http.MethodGet, "/api/v1/payments/local-checkout/"+session, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5000), decode[map[string]any](t, resp.Data)["amount"])

	code, resp = api.do(t, http.MethodPost, "/api/v1/payments/local-checkout/"+session+"/complete", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "recorded", decode[map[string]any](t, resp.Data)["outcome"])

	code, resp = api.do(t, http.MethodPost, "/api/v1/payments/local-checkout/"+session+"/complete", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "duplicate", decode[map[string]any](t, resp.Data)["outcome"])
}

func TestWebhookIntakeIsRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	api := newTestAPIWithLimiter(t, ratelimit.NewWebhookLimiter(client, 0.001, 1, zap.NewNop()))

	payload := []byte(`{"id":"evt_1","type":"charge.refunded","data":{"object":{}}}`)
	code, _ := api.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", payload, "Stripe-Signature", sign(t, payload, api.clock.Now()))
	assert.Equal(t, http.StatusOK, code)

	code, resp := api.do(t, http.MethodPost, "/api/v1/payments/webhooks/stripe", payload, "Stripe-Signature", sign(t, payload, api.clock.Now()))
	assert.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "rate_limited", resp.Error.Type)
}
