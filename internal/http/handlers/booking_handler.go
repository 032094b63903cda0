// README: Booking handlers for create/get/candidates and every lifecycle transition.
package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"fixit/internal/http/middleware"
	"fixit/internal/modules/booking"
	"fixit/internal/modules/matching"
	"fixit/internal/types"
)

type BookingHandler struct {
	bookings *booking.Service
	matching *matching.Service
}

// NewBookingHandler accepts a nil matching service; bookings are then created without dispatch.
func NewBookingHandler(bookings *booking.Service, matchingSvc *matching.Service) *BookingHandler {
	return &BookingHandler{bookings: bookings, matching: matchingSvc}
}

type createBookingReq struct {
	CustomerID    string       `json:"customer_id"`
	ServiceType   string       `json:"service_type"`
	Address       string       `json:"address"`
	Geo           *types.Point `json:"geo"`
	ScheduledAt   *time.Time   `json:"scheduled_at"`
	EstimatedCost types.Money  `json:"estimated_cost"`
}

type createBookingResp struct {
	Booking            *booking.Booking     `json:"booking"`
	Candidates         []matching.Candidate `json:"candidates"`
	RadiusKm           float64              `json:"radius_km,omitempty"`
	NoWorkersAvailable bool                 `json:"no_workers_available"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var req createBookingReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	customer := callerID(c)
	if middleware.CallerRole(c) == middleware.RoleOperator && req.CustomerID != "" {
		customer = types.ID(req.CustomerID)
	} else if req.CustomerID != "" && types.ID(req.CustomerID) != customer {
		writeError(c, http.StatusForbidden, "cannot book for another customer")
		return
	}

	b, err := h.bookings.Create(c.Request.Context(), booking.CreateCommand{
		CustomerID:    customer,
		ServiceType:   req.ServiceType,
		Address:       req.Address,
		Geo:           req.Geo,
		ScheduledAt:   req.ScheduledAt,
		EstimatedCost: req.EstimatedCost,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}

	resp := createBookingResp{Booking: b, Candidates: []matching.Candidate{}}
	if h.matching != nil && b.Geo != nil {
		cands, radius, err := h.matching.FindWithWidening(c.Request.Context(), b, 0)
		switch {
		case errors.Is(err, matching.ErrNoWorkersAvailable):
			resp.NoWorkersAvailable = true
		case err != nil:
			// the booking exists; matching can be retried through /candidates
			log.Printf("http: match booking=%s: %v", b.ID, err)
		default:
			resp.Candidates, resp.RadiusKm = cands, radius
			if _, err := h.matching.Dispatch(c.Request.Context(), b, cands); err != nil {
				log.Printf("http: dispatch booking=%s: %v", b.ID, err)
			}
		}
	}
	writeJSON(c, http.StatusCreated, resp)
}

// loadBooking fetches the booking and enforces that the caller is a party or an operator.
func loadBooking(c *gin.Context, bookings *booking.Service) (*booking.Booking, bool) {
	id, ok := bookingID(c)
	if !ok {
		return nil, false
	}
	b, err := bookings.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return nil, false
	}
	if middleware.CallerRole(c) != middleware.RoleOperator && !b.IsParty(callerID(c)) {
		writeError(c, http.StatusForbidden, "not a party to this booking")
		return nil, false
	}
	return b, true
}

func (h *BookingHandler) Get(c *gin.Context) {
	b, ok := loadBooking(c, h.bookings)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Candidates(c *gin.Context) {
	if h.matching == nil {
		writeError(c, http.StatusServiceUnavailable, "matching disabled")
		return
	}
	b, ok := loadBooking(c, h.bookings)
	if !ok {
		return
	}
	radius, err := strconv.ParseFloat(c.DefaultQuery("radius_km", "0"), 64)
	if err != nil || radius < 0 {
		writeError(c, http.StatusBadRequest, "invalid radius_km")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil || limit < 0 {
		writeError(c, http.StatusBadRequest, "invalid limit")
		return
	}
	cands, err := h.matching.FindCandidates(c.Request.Context(), b, radius, limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"candidates":           cands,
		"no_workers_available": len(cands) == 0,
	})
}

type transitionReq struct {
	To        booking.Status `json:"to"`
	Expected  booking.Status `json:"expected"`
	Details   string         `json:"details"`
	WorkerID  string         `json:"worker_id"`
	FinalCost *types.Money   `json:"final_cost"`
}

// Transition is the raw CAS edge for operators.
func (h *BookingHandler) Transition(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	actor := callerID(c)
	cmd := booking.TransitionCommand{
		BookingID: id,
		To:        req.To,
		Expected:  req.Expected,
		ActorType: booking.ActorOperator,
		ActorID:   &actor,
		Details:   req.Details,
		FinalCost: req.FinalCost,
	}
	if req.WorkerID != "" {
		w := types.ID(req.WorkerID)
		cmd.WorkerID = &w
	}
	b, err := h.bookings.Transition(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Accept(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.bookings.Accept(c.Request.Context(), booking.AcceptCommand{BookingID: id, WorkerID: callerID(c)})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type assignReq struct {
	WorkerID string `json:"worker_id"`
}

func (h *BookingHandler) Assign(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req assignReq
	if err := c.ShouldBindJSON(&req); err != nil || req.WorkerID == "" {
		writeError(c, http.StatusBadRequest, "worker_id is required")
		return
	}
	b, err := h.bookings.Assign(c.Request.Context(), booking.AssignCommand{
		BookingID:  id,
		WorkerID:   types.ID(req.WorkerID),
		OperatorID: callerID(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

func (h *BookingHandler) Start(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	b, err := h.bookings.Start(c.Request.Context(), booking.StartCommand{BookingID: id, WorkerID: callerID(c)})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type completeReq struct {
	FinalCost *types.Money `json:"final_cost"`
}

func (h *BookingHandler) Complete(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req completeReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	b, err := h.bookings.Complete(c.Request.Context(), booking.CompleteCommand{
		BookingID: id,
		WorkerID:  callerID(c),
		FinalCost: req.FinalCost,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	var req cancelReq
	if !bindOptionalJSON(c, &req) {
		return
	}
	b, err := h.bookings.Cancel(c.Request.Context(), booking.CancelCommand{
		BookingID: id,
		ActorType: middleware.CallerRole(c),
		ActorID:   callerID(c),
		Reason:    req.Reason,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, b)
}
