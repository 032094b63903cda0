// README: Booking service implements guarded state transitions and their side effects.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fixit/internal/config"
	"fixit/internal/modules/notification"
	"fixit/internal/modules/wallet"
	"fixit/internal/types"
)

type Geocoder interface {
	Resolve(ctx context.Context, lat, lng float64) string
}

// Workers is the slice of the worker directory bookings depend on.
type Workers interface {
	SetAvailability(ctx context.Context, workerID types.ID, available bool) error
	// Assignable reports whether the worker exists and may take bookings.
	Assignable(ctx context.Context, workerID types.ID) (bool, error)
}

type TrackingStopper interface {
	StopBooking(ctx context.Context, bookingID, workerID types.ID)
}

// Deps lists the service collaborators. Only Store is required.
type Deps struct {
	Store    Store
	Geocoder Geocoder
	Notifier notification.Dispatcher
	Workers  Workers
	Ledger   wallet.Ledger
	Tracking TrackingStopper
	Config   config.BookingConfig
}

type Service struct {
	store    Store
	geocoder Geocoder
	notifier notification.Dispatcher
	workers  Workers
	ledger   wallet.Ledger
	tracking TrackingStopper
	cfg      config.BookingConfig
	tracer   trace.Tracer
	now      func() time.Time

	wg sync.WaitGroup
}

func NewService(deps Deps) *Service {
	cfg := deps.Config
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = 10 * time.Second
	}
	if cfg.CancelRetries < 0 {
		cfg.CancelRetries = 0
	}
	return &Service{
		store:    deps.Store,
		geocoder: deps.Geocoder,
		notifier: deps.Notifier,
		workers:  deps.Workers,
		ledger:   deps.Ledger,
		tracking: deps.Tracking,
		cfg:      cfg,
		tracer:   otel.Tracer("fixit/booking"),
		now:      time.Now,
	}
}

type CreateCommand struct {
	CustomerID    types.ID
	ServiceType   string
	Address       string
	Geo           *types.Point
	ScheduledAt   *time.Time
	EstimatedCost types.Money
}

type TransitionCommand struct {
	BookingID types.ID
	To        Status
	Expected  Status
	ActorType string
	ActorID   *types.ID
	Details   string
	WorkerID  *types.ID
	FinalCost *types.Money
}

type AcceptCommand struct {
	BookingID types.ID
	WorkerID  types.ID
}

type AssignCommand struct {
	BookingID  types.ID
	WorkerID   types.ID
	OperatorID types.ID
}

type StartCommand struct {
	BookingID types.ID
	WorkerID  types.ID
}

type CompleteCommand struct {
	BookingID types.ID
	WorkerID  types.ID
	FinalCost *types.Money
}

type CancelCommand struct {
	BookingID types.ID
	ActorType string
	ActorID   types.ID
	Reason    string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Create")
	defer span.End()

	if cmd.CustomerID == "" {
		return nil, validationf("customer_id is required")
	}
	serviceType := strings.TrimSpace(cmd.ServiceType)
	if serviceType == "" {
		return nil, validationf("service_type is required")
	}
	if cmd.Geo != nil && !cmd.Geo.Valid() {
		return nil, validationf("coordinates out of range: %.6f, %.6f", cmd.Geo.Lat, cmd.Geo.Lng)
	}
	if cmd.EstimatedCost.Amount < 0 {
		return nil, validationf("estimated_cost must not be negative")
	}
	address := strings.TrimSpace(cmd.Address)
	if address == "" {
		if cmd.Geo == nil {
			return nil, validationf("address or geo is required")
		}
		address = s.resolveAddress(ctx, *cmd.Geo)
	}
	cost := cmd.EstimatedCost
	if cost.Currency == "" {
		cost.Currency = types.DefaultCurrency
	}

	now := s.now().UTC()
	customer := cmd.CustomerID
	b := &Booking{
		ID:            types.NewID(),
		CustomerID:    cmd.CustomerID,
		ServiceType:   serviceType,
		Address:       address,
		Geo:           cmd.Geo,
		Status:        StatusPending,
		StatusVersion: 1,
		ScheduledAt:   cmd.ScheduledAt,
		EstimatedCost: cost,
		StatusHistory: []HistoryEntry{{
			Status:    StatusPending,
			ActorType: ActorCustomer,
			ActorID:   &customer,
			Details:   "booking created",
			CreatedAt: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return nil, fmt.Errorf("create booking: %w", err)
	}
	span.SetAttributes(attribute.String("booking.id", string(b.ID)))
	log.Printf("booking created id=%s customer=%s service=%s", b.ID, b.CustomerID, b.ServiceType)

	s.notify(ctx, notification.Notification{
		UserID:  b.CustomerID,
		Title:   "Booking received",
		Message: fmt.Sprintf("We are finding a %s professional for you", b.ServiceType),
		Type:    notification.TypeBookingCreated,
		Data:    bookingData(b),
	})
	return b, nil
}

func (s *Service) resolveAddress(ctx context.Context, p types.Point) string {
	if s.geocoder != nil {
		if addr := strings.TrimSpace(s.geocoder.Resolve(ctx, p.Lat, p.Lng)); addr != "" {
			return addr
		}
	}
	return fmt.Sprintf("%.6f, %.6f", p.Lat, p.Lng)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	if id == "" {
		return nil, validationf("booking id is required")
	}
	return s.store.Get(ctx, id)
}

// Destination returns the booking location used for live distance and ETA.
func (s *Service) Destination(ctx context.Context, bookingID types.ID) (*types.Point, error) {
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return b.Geo, nil
}

// Transition moves a booking from cmd.Expected to cmd.To. Edge validity is checked
// before touching the store; the store applies the change only while the stored
// status still equals cmd.Expected.
func (s *Service) Transition(ctx context.Context, cmd TransitionCommand) (*Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Transition", trace.WithAttributes(
		attribute.String("booking.id", string(cmd.BookingID)),
		attribute.String("booking.from", string(cmd.Expected)),
		attribute.String("booking.to", string(cmd.To)),
	))
	defer span.End()

	if err := s.validateTransition(cmd); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if cmd.To == StatusAssigned {
		if err := s.checkAssignable(ctx, *cmd.WorkerID); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	req := TransitionRequest{
		ID:   cmd.BookingID,
		From: cmd.Expected,
		To:   cmd.To,
		Entry: HistoryEntry{
			Status:    cmd.To,
			ActorType: cmd.ActorType,
			ActorID:   cmd.ActorID,
			Details:   cmd.Details,
			CreatedAt: s.now().UTC(),
		},
	}
	if cmd.To == StatusAssigned {
		req.WorkerID = cmd.WorkerID
	}
	if cmd.To == StatusCompleted {
		req.FinalCost = cmd.FinalCost
	}

	b, err := s.store.Transition(ctx, req)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			log.Printf("booking transition conflict id=%s expected=%s actual=%s to=%s", cmd.BookingID, conflict.Expected, conflict.Actual, cmd.To)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return nil, err
	}
	log.Printf("booking transition id=%s from=%s to=%s actor=%s version=%d", b.ID, cmd.Expected, b.Status, cmd.ActorType, b.StatusVersion)

	s.afterTransition(ctx, b.clone())
	return b, nil
}

// checkAssignable rejects unknown, unverified and suspended workers. Without a
// directory every worker id is accepted.
func (s *Service) checkAssignable(ctx context.Context, workerID types.ID) error {
	if s.workers == nil {
		return nil
	}
	ok, err := s.workers.Assignable(ctx, workerID)
	if err != nil {
		return fmt.Errorf("check worker %s: %w", workerID, err)
	}
	if !ok {
		log.Printf("booking assign rejected worker=%s: not a verified worker", workerID)
		return ErrForbidden
	}
	return nil
}

func (s *Service) validateTransition(cmd TransitionCommand) error {
	if cmd.BookingID == "" {
		return validationf("booking id is required")
	}
	if !cmd.To.Valid() {
		return validationf("unknown status %q", cmd.To)
	}
	if !cmd.Expected.Valid() {
		return validationf("unknown expected status %q", cmd.Expected)
	}
	switch cmd.ActorType {
	case ActorCustomer, ActorWorker, ActorOperator, ActorSystem:
	default:
		return validationf("unknown actor type %q", cmd.ActorType)
	}
	if !CanTransition(cmd.Expected, cmd.To) {
		return &InvalidTransitionError{From: cmd.Expected, To: cmd.To}
	}
	if cmd.To == StatusAssigned && (cmd.WorkerID == nil || *cmd.WorkerID == "") {
		return validationf("worker_id is required to assign a booking")
	}
	if cmd.FinalCost != nil && cmd.FinalCost.Amount < 0 {
		return validationf("final_cost must not be negative")
	}
	return nil
}

// Accept is a worker claiming a pending booking. A conflict means another worker won.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Booking, error) {
	if cmd.WorkerID == "" {
		return nil, validationf("worker id is required")
	}
	worker := cmd.WorkerID
	return s.Transition(ctx, TransitionCommand{
		BookingID: cmd.BookingID,
		Expected:  StatusPending,
		To:        StatusAssigned,
		ActorType: ActorWorker,
		ActorID:   &worker,
		WorkerID:  &worker,
		Details:   "accepted by worker",
	})
}

func (s *Service) Assign(ctx context.Context, cmd AssignCommand) (*Booking, error) {
	if cmd.WorkerID == "" || cmd.OperatorID == "" {
		return nil, validationf("worker id and operator id are required")
	}
	worker, operator := cmd.WorkerID, cmd.OperatorID
	return s.Transition(ctx, TransitionCommand{
		BookingID: cmd.BookingID,
		Expected:  StatusPending,
		To:        StatusAssigned,
		ActorType: ActorOperator,
		ActorID:   &operator,
		WorkerID:  &worker,
		Details:   "assigned by operator",
	})
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) (*Booking, error) {
	if err := s.requireAssignedWorker(ctx, cmd.BookingID, cmd.WorkerID); err != nil {
		return nil, err
	}
	worker := cmd.WorkerID
	return s.Transition(ctx, TransitionCommand{
		BookingID: cmd.BookingID,
		Expected:  StatusAssigned,
		To:        StatusInProgress,
		ActorType: ActorWorker,
		ActorID:   &worker,
		Details:   "service started",
	})
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) (*Booking, error) {
	if err := s.requireAssignedWorker(ctx, cmd.BookingID, cmd.WorkerID); err != nil {
		return nil, err
	}
	worker := cmd.WorkerID
	return s.Transition(ctx, TransitionCommand{
		BookingID: cmd.BookingID,
		Expected:  StatusInProgress,
		To:        StatusCompleted,
		ActorType: ActorWorker,
		ActorID:   &worker,
		FinalCost: cmd.FinalCost,
		Details:   "service completed",
	})
}

// requireAssignedWorker checks ownership only. The worker of an assigned booking
// cannot change, so the later CAS on status is enough to keep this check valid.
func (s *Service) requireAssignedWorker(ctx context.Context, bookingID, workerID types.ID) error {
	if workerID == "" {
		return validationf("worker id is required")
	}
	b, err := s.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.WorkerID == nil || *b.WorkerID != workerID {
		return ErrForbidden
	}
	return nil
}

// Cancel refetches the current status and cancels from it, retrying a bounded number
// of times when another transition lands in between.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Booking, error) {
	if cmd.BookingID == "" {
		return nil, validationf("booking id is required")
	}
	details := strings.TrimSpace(cmd.Reason)
	if details == "" {
		details = "cancelled by " + cmd.ActorType
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.CancelRetries; attempt++ {
		b, err := s.store.Get(ctx, cmd.BookingID)
		if err != nil {
			return nil, err
		}
		if err := authorizeCancel(b, cmd); err != nil {
			return nil, err
		}
		if b.Status.Terminal() {
			return nil, &InvalidTransitionError{From: b.Status, To: StatusCancelled}
		}
		var actorID *types.ID
		if cmd.ActorID != "" {
			id := cmd.ActorID
			actorID = &id
		}
		updated, err := s.Transition(ctx, TransitionCommand{
			BookingID: cmd.BookingID,
			Expected:  b.Status,
			To:        StatusCancelled,
			ActorType: cmd.ActorType,
			ActorID:   actorID,
			Details:   details,
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
		lastErr = err
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func authorizeCancel(b *Booking, cmd CancelCommand) error {
	switch cmd.ActorType {
	case ActorOperator, ActorSystem:
		return nil
	case ActorCustomer:
		if b.CustomerID == cmd.ActorID {
			return nil
		}
	case ActorWorker:
		if b.WorkerID != nil && *b.WorkerID == cmd.ActorID {
			return nil
		}
	default:
		return validationf("unknown actor type %q", cmd.ActorType)
	}
	return ErrForbidden
}

// Wait blocks until every in-flight side effect has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) afterTransition(ctx context.Context, b *Booking) {
	data := bookingData(b)
	switch b.Status {
	case StatusAssigned:
		s.notify(ctx, notification.Notification{
			UserID:  b.CustomerID,
			Title:   "Worker assigned",
			Message: "A professional has accepted your booking",
			Type:    notification.TypeBookingAssigned,
			Data:    data,
		})
		s.notifyWorker(ctx, b, "Booking confirmed", "You have been assigned a new booking", notification.TypeBookingAssigned)
		s.setAvailability(ctx, b, false)
	case StatusInProgress:
		s.notify(ctx, notification.Notification{
			UserID:  b.CustomerID,
			Title:   "Service started",
			Message: "Your professional has started working",
			Type:    notification.TypeBookingStarted,
			Data:    data,
		})
	case StatusCompleted:
		s.notify(ctx, notification.Notification{
			UserID:  b.CustomerID,
			Title:   "Service completed",
			Message: "Your booking has been completed",
			Type:    notification.TypeBookingCompleted,
			Data:    data,
		})
		s.notifyWorker(ctx, b, "Booking completed", "Payment will be credited to your wallet", notification.TypeBookingCompleted)
		s.credit(ctx, b)
		s.setAvailability(ctx, b, true)
		s.stopTracking(ctx, b)
	case StatusCancelled:
		s.notify(ctx, notification.Notification{
			UserID:  b.CustomerID,
			Title:   "Booking cancelled",
			Message: "Your booking has been cancelled",
			Type:    notification.TypeBookingCancelled,
			Data:    data,
		})
		s.notifyWorker(ctx, b, "Booking cancelled", "A booking assigned to you was cancelled", notification.TypeBookingCancelled)
		s.setAvailability(ctx, b, true)
		s.stopTracking(ctx, b)
	}
}

func (s *Service) notifyWorker(ctx context.Context, b *Booking, title, message, kind string) {
	if b.WorkerID == nil {
		return
	}
	s.notify(ctx, notification.Notification{
		UserID:  *b.WorkerID,
		Title:   title,
		Message: message,
		Type:    kind,
		Data:    bookingData(b),
	})
}

func (s *Service) notify(ctx context.Context, n notification.Notification) {
	if s.notifier == nil {
		return
	}
	s.detach(ctx, "notify:"+n.Type, func(ctx context.Context) error {
		return s.notifier.Notify(ctx, n)
	})
}

func (s *Service) setAvailability(ctx context.Context, b *Booking, available bool) {
	if s.workers == nil || b.WorkerID == nil {
		return
	}
	workerID := *b.WorkerID
	s.detach(ctx, "availability", func(ctx context.Context) error {
		return s.workers.SetAvailability(ctx, workerID, available)
	})
}

func (s *Service) credit(ctx context.Context, b *Booking) {
	if s.ledger == nil || b.WorkerID == nil {
		return
	}
	amount := b.EstimatedCost
	if b.FinalCost != nil {
		amount = *b.FinalCost
	}
	if amount.Amount <= 0 {
		return
	}
	c := wallet.Credit{
		BookingID:   b.ID,
		WorkerID:    *b.WorkerID,
		CustomerID:  b.CustomerID,
		Amount:      amount,
		CompletedAt: b.UpdatedAt,
	}
	s.detach(ctx, "wallet", func(ctx context.Context) error {
		return s.ledger.CreditBookingCompleted(ctx, c)
	})
}

func (s *Service) stopTracking(ctx context.Context, b *Booking) {
	if s.tracking == nil || b.WorkerID == nil {
		return
	}
	bookingID, workerID := b.ID, *b.WorkerID
	s.detach(ctx, "tracking", func(ctx context.Context) error {
		s.tracking.StopBooking(ctx, bookingID, workerID)
		return nil
	})
}

// detach runs fn after the request returns. It keeps trace values from ctx but not
// its cancellation, and bounds fn with the side-effect timeout.
func (s *Service) detach(ctx context.Context, name string, fn func(context.Context) error) {
	base := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Printf("booking side effect panic effect=%s: %v", name, r)
			}
		}()
		ctx, cancel := context.WithTimeout(base, s.cfg.SideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("booking side effect failed effect=%s err=%v", name, err)
		}
	}()
}

func bookingData(b *Booking) map[string]string {
	return map[string]string{
		"booking_id": string(b.ID),
		"status":     string(b.Status),
	}
}
