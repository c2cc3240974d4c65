// README: Shared handler utilities: JSON helpers and error-to-status mapping.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookferry/internal/modules/match"
	"bookferry/internal/modules/request"
	"bookferry/internal/modules/trip"
	"bookferry/internal/modules/user"
	"bookferry/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps module errors onto HTTP statuses. Every lifecycle
// error reaches the caller verbatim; none are swallowed, because each one
// changes whether money has moved.
func writeDomainError(c *gin.Context, err error) {
	var validation *types.ValidationError
	var invalid *match.InvalidTransitionError
	var resolved *match.AlreadyResolvedError
	var gateway *match.PaymentGatewayError

	switch {
	case errors.As(err, &validation):
		writeError(c, http.StatusBadRequest, validation.Error())
	case errors.Is(err, request.ErrNotFound),
		errors.Is(err, trip.ErrNotFound),
		errors.Is(err, match.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, request.ErrForbidden),
		errors.Is(err, trip.ErrForbidden),
		errors.Is(err, match.ErrForbidden):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.As(err, &resolved):
		// Lost a resolution race: report the actual current state, never
		// a stale success.
		writeJSON(c, http.StatusConflict, gin.H{
			"error":          "already resolved",
			"status":         resolved.Current.Status,
			"payment_status": resolved.Current.Payment,
		})
	case errors.As(err, &invalid),
		errors.Is(err, match.ErrAlreadyEngaged),
		errors.Is(err, match.ErrConflict),
		errors.Is(err, match.ErrNotOpen),
		errors.Is(err, match.ErrIncompatible),
		errors.Is(err, match.ErrNoPaymentSession),
		errors.Is(err, match.ErrPaymentPending),
		errors.Is(err, request.ErrInvalidState),
		errors.Is(err, trip.ErrInvalidState),
		errors.Is(err, request.ErrEngaged),
		errors.Is(err, trip.ErrEngaged):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, match.ErrHoldFailed):
		writeError(c, http.StatusPaymentRequired, err.Error())
	case errors.As(err, &gateway):
		// Retryable: the processor failed and state is unchanged.
		writeError(c, http.StatusBadGateway, err.Error())
	case errors.Is(err, match.ErrStoreUnavailable):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
