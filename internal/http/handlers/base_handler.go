// README: Base handler utilities (JSON helpers, id checks, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebid/internal/modules/auction"
	"ridebid/internal/modules/handshake"
	"ridebid/internal/modules/ride"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// isValidID accepts generated uuids and caller-chosen ids of letters,
// digits, '-' and '_'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeAuctionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auction.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auction.ErrAuctionNotFound), errors.Is(err, auction.ErrBidNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, auction.ErrDuplicateAuction),
		errors.Is(err, auction.ErrAlreadyConfirmed),
		errors.Is(err, auction.ErrSelectionWindowClosed),
		errors.Is(err, auction.ErrSelectionNotOpen),
		errors.Is(err, auction.ErrNotTerminal):
		writeError(c, http.StatusConflict, err.Error())
	default:
		c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// codeErrors gives each start code failure a stable machine-readable name.
var codeErrors = map[error]string{
	handshake.ErrNoActiveCode:    "no_active_code",
	handshake.ErrCodeExpired:     "code_expired",
	handshake.ErrCodeAlreadyUsed: "code_already_used",
	handshake.ErrCodeMismatch:    "code_mismatch",
}

func writeCodeError(c *gin.Context, err error) {
	for target, code := range codeErrors {
		if errors.Is(err, target) {
			writeJSON(c, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: code})
			return
		}
	}
	writeAuctionError(c, err)
}

func writeRideError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ride.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ride.ErrInvalidState), errors.Is(err, ride.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, ride.ErrDriverMismatch):
		writeError(c, http.StatusForbidden, err.Error())
	default:
		c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
