// README: Worker directory entity and the candidate eligibility rule.
package worker

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fixit/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusSuspended Status = "suspended"
)

var (
	ErrNotFound   = errors.New("worker not found")
	ErrValidation = errors.New("invalid worker request")
)

type Worker struct {
	ID                types.ID     `json:"id"`
	UserID            types.ID     `json:"user_id"`
	Name              string       `json:"name"`
	Skills            []string     `json:"skills"`
	Available         bool         `json:"available"`
	Status            Status       `json:"status"`
	Location          *types.Point `json:"location,omitempty"`
	LocationUpdatedAt *time.Time   `json:"location_updated_at,omitempty"`
	Rating            float64      `json:"rating"`
	HourlyRate        types.Money  `json:"hourly_rate"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// CandidateQuery asks for workers offering Skill around Center. Stores may return a
// superset (for example a bounding box); callers re-check distance and eligibility.
type CandidateQuery struct {
	Skill    string
	Center   types.Point
	RadiusKm float64
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusSuspended:
		return true
	}
	return false
}

func NormalizeSkill(skill string) string {
	return strings.ToLower(strings.TrimSpace(skill))
}

// NormalizeSkills lowercases, trims, dedupes and sorts skills.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		n := NormalizeSkill(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (w *Worker) HasSkill(skill string) bool {
	want := NormalizeSkill(skill)
	if want == "" {
		return false
	}
	for _, s := range w.Skills {
		if NormalizeSkill(s) == want {
			return true
		}
	}
	return false
}

// Eligible reports whether w may be offered a booking for skill.
func (w *Worker) Eligible(skill string) bool {
	return w.Status == StatusVerified && w.Available && w.HasSkill(skill)
}

func (w *Worker) clone() *Worker {
	cp := *w
	cp.Skills = append([]string(nil), w.Skills...)
	if w.Location != nil {
		p := *w.Location
		cp.Location = &p
	}
	if w.LocationUpdatedAt != nil {
		at := *w.LocationUpdatedAt
		cp.LocationUpdatedAt = &at
	}
	return &cp
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
