package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-resty/resty/v2"
	"github.com/smallbiznis/carebill/internal/clock"
	"github.com/smallbiznis/carebill/internal/config"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
)

const (
	ProviderName = "stripe"

	// SignatureTolerance bounds the age of a signed webhook delivery.
	SignatureTolerance = 5 * time.Minute
)

type Adapter struct {
	client        *resty.Client
	webhookSecret string
	successURL    string
	cancelURL     string
	clock         clock.Clock
}

func New(cfg config.StripeConfig, clk clock.Clock) *Adapter {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(15*time.Second).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Accept", "application/json")

	return &Adapter{
		client:        client,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		clock:         clk,
	}
}

func (a *Adapter) Name() string { return ProviderName }

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type checkoutSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CheckoutRequest) (*paymentdomain.CheckoutSession, error) {
	var (
		out     checkoutSessionResponse
		failure stripeError
	)
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"mode":                                          "payment",
			"client_reference_id":                           req.InvoiceID.String(),
			"success_url":                                   a.successURL + "?session_id={CHECKOUT_SESSION_ID}",
			"cancel_url":                                    a.cancelURL,
			"metadata[invoice_id]":                          req.InvoiceID.String(),
			"line_items[0][quantity]":                       "1",
			"line_items[0][price_data][currency]":           strings.ToLower(req.Currency),
			"line_items[0][price_data][unit_amount]":        strconv.FormatInt(req.Amount, 10),
			"line_items[0][price_data][product_data][name]": "Invoice " + req.InvoiceNumber,
			"payment_intent_data[metadata][invoice_id]":     req.InvoiceID.String(),
			"payment_intent_data[metadata][invoice_number]": req.InvoiceNumber,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create checkout session: status %d: %s", resp.StatusCode(), failure.Error.Message)
	}
	if strings.TrimSpace(out.ID) == "" {
		return nil, errors.New("create checkout session: empty session id")
	}
	return &paymentdomain.CheckoutSession{Reference: out.ID, URL: out.URL}, nil
}

type refundResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Refund returns the full amount of the payment intent recorded as the
// payment's external reference.
func (a *Adapter) Refund(ctx context.Context, payment paymentdomain.Payment) (string, error) {
	var (
		out     refundResponse
		failure stripeError
	)
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"payment_intent":       payment.ExternalReference,
			"metadata[payment_id]": payment.ID.String(),
			"metadata[invoice_id]": payment.InvoiceID.String(),
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/refunds")
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create refund: status %d: %s", resp.StatusCode(), failure.Error.Message)
	}
	if out.Status == "failed" || out.Status == "canceled" {
		return "", fmt.Errorf("create refund: refund %s is %s", out.ID, out.Status)
	}
	return out.ID, nil
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(a.webhookSecret) == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	ts, signatures, err := parseStripeSignature(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	age := a.clock.Now().Sub(time.Unix(unix, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(ts + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return paymentdomain.ErrInvalidSignature
}

type stripeEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID            string         `json:"id"`
	PaymentIntent string         `json:"payment_intent"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	PaymentStatus string         `json:"payment_status"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

// Parse decodes a delivery. Only checkout completions carry a payment; other
// types are returned with their type set so the caller can discard them.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.ExternalEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidPayload
	}

	out := &paymentdomain.ExternalEvent{
		Provider:        ProviderName,
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		Method:          paymentdomain.MethodOnline,
		OccurredAt:      timestamp(event.Created, 0, a.clock),
		RawPayload:      payload,
	}
	if out.Type != paymentdomain.EventTypeCheckoutCompleted {
		return out, nil
	}

	var session checkoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	out.CheckoutSessionRef = strings.TrimSpace(session.ID)
	out.ExternalReference = strings.TrimSpace(session.PaymentIntent)
	if out.ExternalReference == "" {
		// Sessions settled without an intent are keyed by the event.
		out.ExternalReference = event.ID
	}
	out.Amount = session.AmountTotal
	out.Currency = strings.ToUpper(strings.TrimSpace(session.Currency))
	out.OccurredAt = timestamp(session.Created, event.Created, a.clock)
	if raw := readMetadataValue(session.Metadata, "invoice_id"); raw != "" {
		if id, err := snowflake.ParseString(raw); err == nil {
			out.InvoiceID = &id
		}
	}
	return out, nil
}

func parseStripeSignature(header string) (string, []string, error) {
	var ts string
	signatures := []string{}
	for _, part := range strings.Split(header, ",") {
		keyValue := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		switch key {
		case "t":
			ts = value
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if ts == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return ts, signatures, nil
}

func timestamp(primary, fallback int64, clk clock.Clock) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return clk.Now()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}
