package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payments/internal/domain"
	"payments/internal/repository"
	"payments/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps domain/service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, domain.ErrInvalidCurrency),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidReferenceID),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidLimit),
		errors.Is(err, service.ErrNoSelections),
		errors.Is(err, service.ErrDuplicateSelection),
		errors.Is(err, service.ErrInvalidEventID),
		errors.Is(err, service.ErrInvalidInstrumentID),
		errors.Is(err, service.ErrInvalidInstrumentKind),
		errors.Is(err, service.ErrUnknownProvider):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrReservationExists),
		errors.Is(err, service.ErrLedgerLocked),
		errors.Is(err, service.ErrInvalidParentEvent),
		errors.Is(err, service.ErrAmountExceedsRemaining),
		errors.Is(err, repository.ErrDuplicateID):
		return http.StatusConflict

	// Business rule errors
	case errors.Is(err, service.ErrInsufficientInstrumentCapacity),
		errors.Is(err, service.ErrMixedCurrencyLedger):
		return http.StatusUnprocessableEntity

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
