package location

import (
	"math"
	"testing"
	"time"

	"fixit/internal/types"
)

var (
	t0   = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	dest = types.Point{Lat: 12.9716, Lng: 77.5946}
)

func at(sec int, lat, lng float64) Sample {
	return Sample{
		BookingID: "b1",
		WorkerID:  "w1",
		Lat:       lat,
		Lng:       lng,
		Timestamp: t0.Add(time.Duration(sec) * time.Second),
		IsActive:  true,
	}
}

func speeds() SpeedModel {
	return SpeedModel{MinKmh: 3, AvgKmh: 25, MaxKmh: 120}
}

func TestFollowerDiscardsOlderSamples(t *testing.T) {
	inOrder := NewFollower(&dest, speeds())
	inOrder.Apply(at(3, 12.90, 77.50))
	inOrder.Apply(at(5, 12.91, 77.51))

	reordered := NewFollower(&dest, speeds())
	if _, ok := reordered.Apply(at(5, 12.91, 77.51)); !ok {
		t.Fatal("t=5 should apply")
	}
	if _, ok := reordered.Apply(at(3, 12.90, 77.50)); ok {
		t.Fatal("t=3 after t=5 should be discarded")
	}

	a, _ := inOrder.Latest()
	b, _ := reordered.Latest()
	if a.Timestamp != b.Timestamp || a.Position != b.Position {
		t.Fatalf("views differ: %+v vs %+v", a, b)
	}
	if !b.Timestamp.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("view timestamp = %v, want t=5", b.Timestamp)
	}
}

func TestFollowerDiscardsDuplicates(t *testing.T) {
	f := NewFollower(&dest, speeds())
	f.Apply(at(1, 12.90, 77.50))
	if _, ok := f.Apply(at(1, 12.95, 77.55)); ok {
		t.Fatal("duplicate timestamp should be discarded")
	}
}

func TestFollowerEtaSources(t *testing.T) {
	fast := 10.0 // m/s = 36 km/h
	slow := 0.2  // m/s, below the minimum
	cases := []struct {
		name    string
		samples []Sample
		source  string
		speed   float64
	}{
		{
			name:    "first sample without speed uses average",
			samples: []Sample{at(0, 12.90, 77.59)},
			source:  EtaAverage,
			speed:   25,
		},
		{
			name: "reported speed wins",
			samples: []Sample{func() Sample {
				s := at(0, 12.90, 77.59)
				s.Speed = &fast
				return s
			}()},
			source: EtaReported,
			speed:  36,
		},
		{
			// 1 km north in 2 minutes = 30 km/h
			name:    "observed speed between samples",
			samples: []Sample{at(0, 12.90, 77.5946), at(120, 12.90+1/6371.0*180/math.Pi, 77.5946)},
			source:  EtaObserved,
			speed:   30,
		},
		{
			name: "slow reported and implausible observed fall back to average",
			samples: []Sample{at(0, 12.90, 77.5946), func() Sample {
				s := at(1, 12.95, 77.5946) // ~5.5 km in one second
				s.Speed = &slow
				return s
			}()},
			source: EtaAverage,
			speed:  25,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFollower(&dest, speeds())
			var v View
			for _, s := range tc.samples {
				v, _ = f.Apply(s)
			}
			if v.EtaSource != tc.source {
				t.Fatalf("eta source = %s, want %s", v.EtaSource, tc.source)
			}
			want := *v.DistanceKm / tc.speed * 60
			if math.Abs(*v.EtaMinutes-want) > 0.1 {
				t.Fatalf("eta = %.2f, want %.2f", *v.EtaMinutes, want)
			}
		})
	}
}

func TestFollowerWithoutDestination(t *testing.T) {
	f := NewFollower(nil, speeds())
	v, ok := f.Apply(at(1, 12.9, 77.5))
	if !ok {
		t.Fatal("sample should apply")
	}
	if v.DistanceKm != nil || v.EtaMinutes != nil {
		t.Fatalf("expected no distance or eta, got %+v", v)
	}
}
