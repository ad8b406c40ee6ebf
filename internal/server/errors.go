package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/carebill/internal/apperror"
	paymentdomain "github.com/smallbiznis/carebill/internal/payment/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var (
		validation *apperror.ValidationError
		notFound   *apperror.NotFoundError
		exists     *apperror.AlreadyExistsError
		transition *apperror.InvalidStateTransitionError
		state      *apperror.InvalidStateError
		provider   *apperror.ExternalProviderError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   validation.Field,
				Code:    "invalid_" + validation.Field,
				Message: validation.Reason,
			}},
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, paymentdomain.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "signature verification failed",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.As(err, &notFound),
		errors.Is(err, ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		message := "not found"
		if notFound != nil {
			message = notFound.Error()
		}
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: message,
		}
	case errors.Is(err, apperror.ErrStaffNotAuthorized):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "staff is not authorized for this action",
		}
	case errors.Is(err, apperror.ErrRoomNotAvailable):
		return http.StatusConflict, errorPayload{Type: "room_not_available", Message: "room is not available"}
	case errors.Is(err, apperror.ErrPatientAlreadyAdmitted):
		return http.StatusConflict, errorPayload{Type: "patient_already_admitted", Message: "patient already has an active admission"}
	case errors.Is(err, apperror.ErrRoomBusy):
		return http.StatusConflict, errorPayload{Type: "room_busy", Message: "room has an active admission"}
	case errors.Is(err, apperror.ErrAlreadyDischarged):
		return http.StatusConflict, errorPayload{Type: "already_discharged", Message: "admission is already discharged"}
	case apperror.IsConcurrencyConflict(err):
		return http.StatusConflict, errorPayload{Type: "concurrency_conflict", Message: err.Error()}
	case errors.As(err, &exists):
		return http.StatusConflict, errorPayload{Type: "already_exists", Message: exists.Error()}
	case errors.As(err, &transition):
		return http.StatusConflict, errorPayload{Type: "invalid_state_transition", Message: transition.Error()}
	case errors.As(err, &state):
		return http.StatusConflict, errorPayload{Type: "invalid_state", Message: state.Error()}
	case errors.As(err, &provider):
		return http.StatusBadGateway, errorPayload{Type: "external_provider_error", Message: "payment provider request failed"}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the envelope type and HTTP status of err for
// request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	return payload.Type, http.StatusText(status)
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}
