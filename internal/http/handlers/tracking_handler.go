// README: Worker-side tracking handlers; start/stop the sampler and accept device fixes.
package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fixit/internal/modules/booking"
	"fixit/internal/modules/location"
	"fixit/internal/types"
)

const stopTimeout = 10 * time.Second

type TrackingHandler struct {
	bookings *booking.Service
	tracker  *location.Tracker
	devices  *location.DeviceRegistry
}

func NewTrackingHandler(bookings *booking.Service, tracker *location.Tracker, devices *location.DeviceRegistry) *TrackingHandler {
	return &TrackingHandler{bookings: bookings, tracker: tracker, devices: devices}
}

// assignedWorker loads the booking and requires the caller to be its assigned worker.
func (h *TrackingHandler) assignedWorker(c *gin.Context) (*booking.Booking, types.ID, bool) {
	b, ok := loadBooking(c, h.bookings)
	if !ok {
		return nil, "", false
	}
	caller := callerID(c)
	if b.WorkerID == nil || *b.WorkerID != caller {
		writeError(c, http.StatusForbidden, "not the assigned worker")
		return nil, "", false
	}
	return b, caller, true
}

func (h *TrackingHandler) Start(c *gin.Context) {
	b, workerID, ok := h.assignedWorker(c)
	if !ok {
		return
	}
	if b.Status != booking.StatusAssigned && b.Status != booking.StatusInProgress {
		writeError(c, http.StatusConflict, "booking is not active")
		return
	}
	sess, err := h.tracker.Start(c.Request.Context(), b.ID, workerID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	// a completion or cancel between the status check and Start found no session to stop
	current, err := h.bookings.Get(c.Request.Context(), b.ID)
	if err != nil || current.Status.Terminal() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), stopTimeout)
		defer cancel()
		h.tracker.StopBooking(ctx, b.ID, workerID)
		if err != nil {
			writeDomainError(c, err)
			return
		}
		writeError(c, http.StatusConflict, "booking is not active")
		return
	}
	go logSessionErrors(sess)
	writeJSON(c, http.StatusOK, gin.H{"booking_id": b.ID, "worker_id": workerID, "started_at": sess.StartedAt})
}

func logSessionErrors(s *location.Session) {
	for {
		select {
		case e := <-s.Errors():
			log.Printf("tracking booking=%s worker=%s: %v", s.BookingID, s.WorkerID, e)
		case <-s.Done():
			return
		}
	}
}

type fixReq struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Accuracy  float64    `json:"accuracy"`
	Heading   *float64   `json:"heading"`
	Speed     *float64   `json:"speed"`
	Timestamp *time.Time `json:"timestamp"`
	Error     *struct {
		Kind    location.GeolocationKind `json:"kind"`
		Message string                   `json:"message"`
	} `json:"error"`
}

// Fix accepts a device reading, or a device error when "error" is set.
func (h *TrackingHandler) Fix(c *gin.Context) {
	id, ok := bookingID(c)
	if !ok {
		return
	}
	workerID := callerID(c)
	if !h.tracker.Active(id, workerID) {
		writeDomainError(c, location.ErrNotTracking)
		return
	}
	var req fixReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Error != nil {
		if err := h.devices.Fail(id, workerID, req.Error.Kind, req.Error.Message); err != nil {
			writeDomainError(c, err)
			return
		}
		writeJSON(c, http.StatusAccepted, gin.H{"accepted": true})
		return
	}
	fix := location.Fix{Lat: req.Lat, Lng: req.Lng, Accuracy: req.Accuracy, Heading: req.Heading, Speed: req.Speed}
	if req.Timestamp != nil {
		fix.Timestamp = req.Timestamp.UTC()
	}
	if err := h.devices.Push(id, workerID, fix); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, gin.H{"accepted": true})
}

func (h *TrackingHandler) Stop(c *gin.Context) {
	b, workerID, ok := h.assignedWorker(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), stopTimeout)
	defer cancel()
	if err := h.tracker.Stop(ctx, b.ID, workerID); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking_id": b.ID, "stopped": true})
}
