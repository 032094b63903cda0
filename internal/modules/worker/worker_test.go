// README: Worker directory tests (eligibility, registration, candidate filtering) on the in-memory store.
package worker

import (
	"context"
	"errors"
	"testing"

	"fixit/internal/types"
)

var center = types.Point{Lat: 12.9716, Lng: 77.5946}

func TestEligible(t *testing.T) {
	base := Worker{Status: StatusVerified, Available: true, Skills: []string{"plumbing", "electrical"}}
	cases := []struct {
		name  string
		mut   func(w *Worker)
		skill string
		want  bool
	}{
		{"verified available skilled", func(*Worker) {}, "plumbing", true},
		{"skill match ignores case and space", func(*Worker) {}, "  Plumbing ", true},
		{"missing skill", func(*Worker) {}, "painting", false},
		{"empty skill", func(*Worker) {}, "", false},
		{"unavailable", func(w *Worker) { w.Available = false }, "plumbing", false},
		{"pending verification", func(w *Worker) { w.Status = StatusPending }, "plumbing", false},
		{"suspended", func(w *Worker) { w.Status = StatusSuspended }, "plumbing", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := base
			w.Skills = append([]string(nil), base.Skills...)
			tc.mut(&w)
			if got := w.Eligible(tc.skill); got != tc.want {
				t.Fatalf("Eligible(%q) = %v, want %v", tc.skill, got, tc.want)
			}
		})
	}
}

func TestNormalizeSkills(t *testing.T) {
	got := NormalizeSkills([]string{" Plumbing", "electrical", "plumbing", "", "AC Repair"})
	want := []string{"ac repair", "electrical", "plumbing"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRegisterDefaultsAndValidation(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	ctx := context.Background()

	w, err := d.Register(ctx, RegisterCommand{UserID: "u1", Name: "Ravi", Skills: []string{"Plumbing"}})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if w.ID != "u1" || w.Status != StatusPending || w.HourlyRate.Currency != types.DefaultCurrency {
		t.Fatalf("worker = %+v", w)
	}

	bad := map[string]RegisterCommand{
		"no user":       {Name: "x", Skills: []string{"a"}},
		"no name":       {UserID: "u", Skills: []string{"a"}},
		"no skills":     {UserID: "u", Name: "x", Skills: []string{" "}},
		"bad status":    {UserID: "u", Name: "x", Skills: []string{"a"}, Status: "retired"},
		"bad rating":    {UserID: "u", Name: "x", Skills: []string{"a"}, Rating: 7},
		"bad location":  {UserID: "u", Name: "x", Skills: []string{"a"}, Location: &types.Point{Lat: 100}},
		"negative rate": {UserID: "u", Name: "x", Skills: []string{"a"}, HourlyRate: types.Money{Amount: -5}},
	}
	for name, cmd := range bad {
		t.Run(name, func(t *testing.T) {
			if _, err := d.Register(ctx, cmd); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAvailabilityAndLocationUpdates(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	ctx := context.Background()
	if _, err := d.Register(ctx, RegisterCommand{UserID: "u1", Name: "Asha", Skills: []string{"cleaning"}, Status: StatusVerified}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := d.SetAvailability(ctx, "u1", true); err != nil {
		t.Fatalf("set availability: %v", err)
	}
	if err := d.UpdateLocation(ctx, "u1", center); err != nil {
		t.Fatalf("update location: %v", err)
	}
	w, err := d.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !w.Available || w.Location == nil || w.LocationUpdatedAt == nil {
		t.Fatalf("worker = %+v", w)
	}

	if err := d.SetAvailability(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := d.UpdateLocation(ctx, "u1", types.Point{Lat: 0, Lng: 200}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func seedWorkers(t *testing.T, d *Directory) {
	t.Helper()
	ctx := context.Background()
	seed := []RegisterCommand{
		{UserID: "near", Name: "Near", Skills: []string{"plumbing"}, Status: StatusVerified, Available: true, Location: &types.Point{Lat: 12.98, Lng: 77.60}},
		{UserID: "busy", Name: "Busy", Skills: []string{"plumbing"}, Status: StatusVerified, Available: false, Location: &types.Point{Lat: 12.975, Lng: 77.595}},
		{UserID: "painter", Name: "Painter", Skills: []string{"painting"}, Status: StatusVerified, Available: true, Location: &types.Point{Lat: 12.972, Lng: 77.595}},
		{UserID: "unverified", Name: "New", Skills: []string{"plumbing"}, Status: StatusPending, Available: true, Location: &types.Point{Lat: 12.973, Lng: 77.596}},
		{UserID: "far", Name: "Far", Skills: []string{"plumbing"}, Status: StatusVerified, Available: true, Location: &types.Point{Lat: 13.50, Lng: 77.60}},
		{UserID: "nowhere", Name: "Nowhere", Skills: []string{"plumbing"}, Status: StatusVerified, Available: true},
	}
	for _, cmd := range seed {
		if _, err := d.Register(ctx, cmd); err != nil {
			t.Fatalf("register %s: %v", cmd.UserID, err)
		}
	}
}

func TestListCandidatesFiltersIneligible(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	seedWorkers(t, d)

	got, err := d.ListCandidates(context.Background(), "Plumbing", center, 10)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "near" {
		ids := make([]types.ID, len(got))
		for i, w := range got {
			ids[i] = w.ID
		}
		t.Fatalf("candidates = %v, want [near]", ids)
	}
}

func TestListCandidatesValidation(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	ctx := context.Background()
	if _, err := d.ListCandidates(ctx, "", center, 10); !errors.Is(err, ErrValidation) {
		t.Errorf("empty skill: %v", err)
	}
	if _, err := d.ListCandidates(ctx, "plumbing", center, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("zero radius: %v", err)
	}
}

func TestAssignable(t *testing.T) {
	d := NewDirectory(NewMemoryStore())
	seedWorkers(t, d)
	ctx := context.Background()

	cases := map[types.ID]bool{
		"near":       true,
		"busy":       true,
		"unverified": false,
		"ghost":      false,
	}
	for id, want := range cases {
		got, err := d.Assignable(ctx, id)
		if err != nil {
			t.Fatalf("assignable %s: %v", id, err)
		}
		if got != want {
			t.Errorf("assignable %s = %v, want %v", id, got, want)
		}
	}

	if _, err := d.Register(ctx, RegisterCommand{UserID: "near", Name: "Near", Skills: []string{"plumbing"}, Status: StatusSuspended}); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if ok, _ := d.Assignable(ctx, "near"); ok {
		t.Fatal("suspended worker still assignable")
	}
}
