package ingress

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/conductor-run/conductor/pkg/orcherr"
	"github.com/conductor-run/conductor/pkg/store"
)

// errorBody is the wire shape of a failed request, matching the
// StructuredError spec §7 requires callers to be able to read: code, a
// human message, and whether resume/retry is possible.
type errorBody struct {
	Error orcherr.StructuredError `json:"error"`
}

// statusFor maps a orcherr.Code onto the HTTP status a caller should see,
// the gin equivalent of the teacher's mapServiceError switch over service
// sentinel errors.
func statusFor(code orcherr.Code) int {
	switch code {
	case orcherr.CodeInvalidRequest, orcherr.CodeUnknownTool, orcherr.CodeToolNotAllowed, orcherr.CodeInvalidTransition:
		return http.StatusBadRequest
	case orcherr.CodeUnauthorized:
		return http.StatusUnauthorized
	case orcherr.CodeInsufficientCredit:
		return http.StatusPaymentRequired
	case orcherr.CodeRateLimited, orcherr.CodeProviderRateLimited:
		return http.StatusTooManyRequests
	case orcherr.CodeConcurrentUpdate:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as the standard error body, logging anything that
// maps to 500 the way mapServiceError falls through to a logged 500 for
// unrecognized errors.
func writeError(c *gin.Context, err error) {
	if se, ok := orcherr.AsStructured(err); ok {
		status := statusFor(se.Code)
		if status == http.StatusInternalServerError {
			slog.Error("ingress: unmapped structured error", "code", se.Code, "error", err)
		}
		c.JSON(status, errorBody{Error: *se})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody{Error: *orcherr.New(orcherr.CodeInvalidRequest, "run not found", false)})
		return
	}

	slog.Error("ingress: unhandled error", "error", err)
	c.JSON(http.StatusInternalServerError, errorBody{
		Error: *orcherr.New("INTERNAL", "internal error", false),
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: *orcherr.New(orcherr.CodeInvalidRequest, message, false)})
}
