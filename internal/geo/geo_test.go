package geo

import (
	"math"
	"testing"

	"fixit/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 12.9716, Lng: 77.5946},
			b:         types.Point{Lat: 12.9716, Lng: 77.5946},
			wantKm:    0,
			tolerance: 1e-9,
		},
		{
			name:      "MG Road to Indiranagar (~3.7km)",
			a:         types.Point{Lat: 12.9756, Lng: 77.6066},
			b:         types.Point{Lat: 12.9784, Lng: 77.6408},
			wantKm:    3.7,
			tolerance: 0.5,
		},
		{
			name:      "Mumbai to Delhi (~1150km)",
			a:         types.Point{Lat: 19.0760, Lng: 72.8777},
			b:         types.Point{Lat: 28.7041, Lng: 77.1025},
			wantKm:    1150,
			tolerance: 20,
		},
		{
			name:      "antipodal points",
			a:         types.Point{Lat: 0, Lng: 0},
			b:         types.Point{Lat: 0, Lng: 180},
			wantKm:    math.Pi * earthRadiusKm,
			tolerance: 0.001,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Identity(t *testing.T) {
	points := []types.Point{
		{Lat: 0, Lng: 0},
		{Lat: 89.9, Lng: -179.9},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 12.9716, Lng: 77.5946},
	}
	for _, p := range points {
		if d := HaversineKm(p, p); d != 0 {
			t.Errorf("HaversineKm(%v, %v) = %f, want 0", p, p, d)
		}
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	pairs := [][2]types.Point{
		{{Lat: 25.0, Lng: 121.0}, {Lat: 26.0, Lng: 122.0}},
		{{Lat: -45, Lng: 170}, {Lat: 45, Lng: -170}},
		{{Lat: 12.9716, Lng: 77.5946}, {Lat: 13.0827, Lng: 80.2707}},
	}
	for _, p := range pairs {
		d1 := HaversineKm(p[0], p[1])
		d2 := HaversineKm(p[1], p[0])
		if math.Abs(d1-d2) > 1e-9 {
			t.Errorf("haversine is not symmetric for %v: %f vs %f", p, d1, d2)
		}
	}
}

func TestEtaMinutes(t *testing.T) {
	tests := []struct {
		name                    string
		distance, speed, buffer float64
		want                    float64
	}{
		{"30km at 30kmh", 30, 30, 0, 60},
		{"with buffer", 10, 20, 5, 35},
		{"zero speed falls back to buffer", 10, 0, 5, 5},
		{"zero distance", 0, 25, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EtaMinutes(tt.distance, tt.speed, tt.buffer)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("EtaMinutes() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	center := types.Point{Lat: 12.9716, Lng: 77.5946}
	minLat, maxLat, minLng, maxLng := BoundingBox(center, 10)
	if !(minLat < center.Lat && center.Lat < maxLat && minLng < center.Lng && center.Lng < maxLng) {
		t.Fatalf("center outside its own box: %f %f %f %f", minLat, maxLat, minLng, maxLng)
	}
	edge := types.Point{Lat: maxLat, Lng: center.Lng}
	if d := HaversineKm(center, edge); math.Abs(d-10) > 0.01 {
		t.Errorf("north edge at %f km, want 10", d)
	}

	_, _, minLng, maxLng = BoundingBox(types.Point{Lat: 10, Lng: 179.99}, 50)
	if minLng != -180 || maxLng != 180 {
		t.Errorf("antimeridian box should span all longitudes, got %f..%f", minLng, maxLng)
	}
}
