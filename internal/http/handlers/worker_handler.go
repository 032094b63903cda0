// README: Worker directory handlers for registration, availability and location snapshots.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fixit/internal/http/middleware"
	"fixit/internal/modules/worker"
	"fixit/internal/types"
)

type WorkerHandler struct {
	directory *worker.Directory
}

func NewWorkerHandler(directory *worker.Directory) *WorkerHandler {
	return &WorkerHandler{directory: directory}
}

type registerWorkerReq struct {
	UserID     string        `json:"user_id"`
	Name       string        `json:"name"`
	Skills     []string      `json:"skills"`
	Status     worker.Status `json:"status"`
	Available  bool          `json:"available"`
	Location   *types.Point  `json:"location"`
	Rating     float64       `json:"rating"`
	HourlyRate types.Money   `json:"hourly_rate"`
}

func (h *WorkerHandler) Register(c *gin.Context) {
	var req registerWorkerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	w, err := h.directory.Register(c.Request.Context(), worker.RegisterCommand{
		UserID:     types.ID(req.UserID),
		Name:       req.Name,
		Skills:     req.Skills,
		Status:     req.Status,
		Available:  req.Available,
		Location:   req.Location,
		Rating:     req.Rating,
		HourlyRate: req.HourlyRate,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, w)
}

// self allows the worker themself or an operator.
func self(c *gin.Context) (types.ID, bool) {
	id := types.ID(c.Param("id"))
	if id == "" {
		writeError(c, http.StatusBadRequest, "missing worker id")
		return "", false
	}
	if middleware.CallerRole(c) != middleware.RoleOperator && id != callerID(c) {
		writeError(c, http.StatusForbidden, "cannot act for another worker")
		return "", false
	}
	return id, true
}

type availabilityReq struct {
	Available *bool `json:"available"`
}

func (h *WorkerHandler) SetAvailability(c *gin.Context) {
	id, ok := self(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "available is required")
		return
	}
	if err := h.directory.SetAvailability(c.Request.Context(), id, *req.Available); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"worker_id": id, "available": *req.Available})
}

func (h *WorkerHandler) UpdateLocation(c *gin.Context) {
	id, ok := self(c)
	if !ok {
		return
	}
	var req types.Point
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.directory.UpdateLocation(c.Request.Context(), id, req); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"worker_id": id, "location": req})
}
