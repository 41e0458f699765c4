// README: Ride handlers for get/complete/cancel.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebid/internal/modules/ride"
	"ridebid/internal/types"
)

type RideHandler struct {
	ride *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{ride: svc}
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *RideHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	r, err := h.ride.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	if err := h.ride.Complete(c.Request.Context(), types.ID(id)); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": ride.StatusCompleted})
}

func (h *RideHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	var req cancelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.ride.Cancel(c.Request.Context(), types.ID(id), req.Reason); err != nil {
		writeRideError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"status": ride.StatusCancelled})
}
