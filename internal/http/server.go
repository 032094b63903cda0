// README: API gateway; wires module services into gin routes behind otel request tracing.
package http

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"fixit/internal/infra"
	"fixit/internal/modules/booking"
	"fixit/internal/modules/location"
	"fixit/internal/modules/matching"
	"fixit/internal/modules/worker"
)

type ServerDeps struct {
	Bookings *booking.Service
	Matching *matching.Service
	Workers  *worker.Directory
	Tracker  *location.Tracker
	Devices  *location.DeviceRegistry
	Stream   *location.Stream
	Verifier infra.TokenVerifier
}

type Server struct {
	bookings *booking.Service
	matching *matching.Service
	workers  *worker.Directory
	tracker  *location.Tracker
	devices  *location.DeviceRegistry
	stream   *location.Stream
	verifier infra.TokenVerifier
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		bookings: deps.Bookings,
		matching: deps.Matching,
		workers:  deps.Workers,
		tracker:  deps.Tracker,
		devices:  deps.Devices,
		stream:   deps.Stream,
		verifier: deps.Verifier,
	}
}

func (s *Server) Routes() http.Handler {
	return otelhttp.NewHandler(s.Router(), "fixit-api")
}
