package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Sentinel errors for the billing engine. Callers branch on these with
// errors.Is; handlers map them to HTTP status codes.
var (
	// ErrNotFound covers unknown subscription, invoice, or payment references.
	ErrNotFound = errors.New("not found")

	// ErrStateConflict is returned when an illegal state transition is
	// attempted (two open invoices, paying a cancelled invoice). State is
	// never mutated on a conflict.
	ErrStateConflict = errors.New("state conflict")

	// ErrReconciliationMismatch is returned when a payment event's amount or
	// currency disagrees with the matched invoice. The invoice is left
	// untouched; the event is still ledgered so a replay cannot succeed later.
	ErrReconciliationMismatch = errors.New("reconciliation mismatch")

	// ErrGatewayTimeout means the outcome of a gateway call is unknown.
	// The caller must resolve it with a follow-up status poll before
	// committing any state change.
	ErrGatewayTimeout = errors.New("payment gateway timeout")

	// ErrGateway is a non-retryable failure reported by the gateway.
	ErrGateway = errors.New("payment gateway error")

	// ErrTermComplete is the terminal signal from the schedule calculator:
	// the next period would exceed the subscription's end date.
	ErrTermComplete = errors.New("subscription term complete")
)

// ValidationError rejects malformed creation input before any state exists.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	} `json:"error"`
}

// CreateErrorResponse creates a standardized error response
func CreateErrorResponse(code string, message string, details map[string]string) *ErrorResponse {
	var resp ErrorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.Details = details
	return &resp
}

// SendError maps a billing error to the proper HTTP response.
func SendError(c echo.Context, err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, CreateErrorResponse("VALIDATION_ERROR", "Validation failed",
			map[string]string{verr.Field: verr.Reason}))
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, CreateErrorResponse("NOT_FOUND", err.Error(), nil))
	case errors.Is(err, ErrStateConflict):
		return c.JSON(http.StatusConflict, CreateErrorResponse("STATE_CONFLICT", err.Error(), nil))
	case errors.Is(err, ErrReconciliationMismatch):
		return c.JSON(http.StatusUnprocessableEntity, CreateErrorResponse("RECONCILIATION_MISMATCH", err.Error(), nil))
	case errors.Is(err, ErrGatewayTimeout):
		return c.JSON(http.StatusGatewayTimeout, CreateErrorResponse("GATEWAY_TIMEOUT", err.Error(), nil))
	case errors.Is(err, ErrGateway):
		return c.JSON(http.StatusBadGateway, CreateErrorResponse("GATEWAY_ERROR", err.Error(), nil))
	default:
		return c.JSON(http.StatusInternalServerError, CreateErrorResponse("SERVER_ERROR", "operation could not be completed", nil))
	}
}
