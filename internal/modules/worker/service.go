// README: Worker directory service: registration, availability toggle, location snapshot, candidate queries.
package worker

import (
	"context"
	"errors"
	"strings"
	"time"

	"fixit/internal/types"
)

type Directory struct {
	store Store
	now   func() time.Time
}

func NewDirectory(store Store) *Directory {
	return &Directory{store: store, now: time.Now}
}

// RegisterCommand creates or replaces a worker. The worker id is the user id, so
// the caller's auth identity addresses the worker everywhere.
type RegisterCommand struct {
	UserID     types.ID
	Name       string
	Skills     []string
	Status     Status
	Available  bool
	Location   *types.Point
	Rating     float64
	HourlyRate types.Money
}

func (d *Directory) Register(ctx context.Context, cmd RegisterCommand) (*Worker, error) {
	if cmd.UserID == "" {
		return nil, validationf("user_id is required")
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, validationf("name is required")
	}
	skills := NormalizeSkills(cmd.Skills)
	if len(skills) == 0 {
		return nil, validationf("at least one skill is required")
	}
	status := cmd.Status
	if status == "" {
		status = StatusPending
	}
	if !status.Valid() {
		return nil, validationf("unknown status %q", cmd.Status)
	}
	if cmd.Rating < 0 || cmd.Rating > 5 {
		return nil, validationf("rating must be between 0 and 5")
	}
	if cmd.Location != nil && !cmd.Location.Valid() {
		return nil, validationf("coordinates out of range")
	}
	if cmd.HourlyRate.Amount < 0 {
		return nil, validationf("hourly_rate must not be negative")
	}
	rate := cmd.HourlyRate
	if rate.Currency == "" {
		rate.Currency = types.DefaultCurrency
	}
	id := cmd.UserID

	now := d.now().UTC()
	w := &Worker{
		ID:         id,
		UserID:     cmd.UserID,
		Name:       name,
		Skills:     skills,
		Available:  cmd.Available,
		Status:     status,
		Rating:     cmd.Rating,
		HourlyRate: rate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if cmd.Location != nil {
		p := *cmd.Location
		w.Location = &p
		w.LocationUpdatedAt = &now
	}
	if existing, err := d.store.Get(ctx, id); err == nil {
		w.CreatedAt = existing.CreatedAt
	}
	if err := d.store.Upsert(ctx, w); err != nil {
		return nil, err
	}
	return d.store.Get(ctx, id)
}

func (d *Directory) Get(ctx context.Context, id types.ID) (*Worker, error) {
	if id == "" {
		return nil, validationf("worker id is required")
	}
	return d.store.Get(ctx, id)
}

// Assignable reports whether id is a verified worker. Unknown workers are not
// assignable; that is not an error.
func (d *Directory) Assignable(ctx context.Context, id types.ID) (bool, error) {
	w, err := d.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return w.Status == StatusVerified, nil
}

func (d *Directory) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	if id == "" {
		return validationf("worker id is required")
	}
	return d.store.SetAvailability(ctx, id, available)
}

func (d *Directory) UpdateLocation(ctx context.Context, id types.ID, p types.Point) error {
	if id == "" {
		return validationf("worker id is required")
	}
	if !p.Valid() {
		return validationf("coordinates out of range")
	}
	return d.store.UpdateLocation(ctx, id, p, d.now().UTC())
}

// ListCandidates returns workers the store considers near center for skill.
func (d *Directory) ListCandidates(ctx context.Context, skill string, center types.Point, radiusKm float64) ([]*Worker, error) {
	if NormalizeSkill(skill) == "" {
		return nil, validationf("skill is required")
	}
	if !center.Valid() {
		return nil, validationf("coordinates out of range")
	}
	if radiusKm <= 0 {
		return nil, validationf("radius must be positive")
	}
	return d.store.ListCandidates(ctx, CandidateQuery{Skill: skill, Center: center, RadiusKm: radiusKm})
}
