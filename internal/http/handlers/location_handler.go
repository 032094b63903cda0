// README: Customer-side location handlers; latest view and a server-sent event stream.
package handlers

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fixit/internal/modules/booking"
	"fixit/internal/modules/location"
)

const (
	streamBuffer    = 16
	streamKeepalive = 15 * time.Second
)

type LocationHandler struct {
	bookings *booking.Service
	stream   *location.Stream
}

func NewLocationHandler(bookings *booking.Service, stream *location.Stream) *LocationHandler {
	return &LocationHandler{bookings: bookings, stream: stream}
}

func (h *LocationHandler) Latest(c *gin.Context) {
	b, ok := loadBooking(c, h.bookings)
	if !ok {
		return
	}
	v, err := h.stream.Latest(c.Request.Context(), b.ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

// Stream sends "location" events until tracking stops or the client goes away. Slow
// clients lose intermediate views, never the order of the ones they get. A final
// "stopped" event ends the stream.
func (h *LocationHandler) Stream(c *gin.Context) {
	b, ok := loadBooking(c, h.bookings)
	if !ok {
		return
	}
	views := make(chan location.View, streamBuffer)
	sub, err := h.stream.Subscribe(c.Request.Context(), b.ID, func(v location.View) {
		select {
		case views <- v:
		default:
			log.Printf("location stream: client slow, dropped view booking=%s", b.ID)
		}
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	defer h.stream.Unsubscribe(sub)

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case v := <-views:
			return sendView(c, v)
		case <-keepalive.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-sub.Done():
			// flush what the subscription delivered before it ended
			for {
				select {
				case v := <-views:
					if !sendView(c, v) {
						return false
					}
				default:
					c.SSEvent("stopped", location.View{BookingID: b.ID, Stopped: true})
					return false
				}
			}
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// sendView writes v and reports whether the stream continues.
func sendView(c *gin.Context, v location.View) bool {
	if v.Stopped {
		c.SSEvent("stopped", v)
		return false
	}
	c.SSEvent("location", v)
	return true
}
