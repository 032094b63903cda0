package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FIXIT_DRIVERS_AUTH", "dev")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr = %q, want :8080", cfg.HTTP.Addr)
	}
	if cfg.Matching.RadiusKm != 10 || cfg.Matching.Limit != 5 {
		t.Errorf("matching defaults = %+v", cfg.Matching)
	}
	if len(cfg.Matching.RadiusStepsKm) != 3 || cfg.Matching.RadiusStepsKm[2] != 40 {
		t.Errorf("RadiusStepsKm = %v, want [10 20 40]", cfg.Matching.RadiusStepsKm)
	}
	if cfg.Tracking.SampleInterval != 5*time.Second {
		t.Errorf("SampleInterval = %s, want 5s", cfg.Tracking.SampleInterval)
	}
	if cfg.Drivers.Store != "postgres" || cfg.Drivers.Notify != "log" || cfg.Drivers.Wallet != "log" {
		t.Errorf("drivers = %+v", cfg.Drivers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("FIXIT_DRIVERS_AUTH", "dev")
	t.Setenv("FIXIT_DRIVERS_STORE", "memory")
	t.Setenv("FIXIT_MATCHING_RADIUS_STEPS_KM", "5,15")
	t.Setenv("FIXIT_TRACKING_SAMPLE_INTERVAL", "2s")
	t.Setenv("FIXIT_BOOKING_CANCEL_RETRIES", "7")
	t.Setenv("FIXIT_DRIVERS_WALLET", "amqp")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Drivers.Store != "memory" {
		t.Errorf("Drivers.Store = %q", cfg.Drivers.Store)
	}
	if len(cfg.Matching.RadiusStepsKm) != 2 || cfg.Matching.RadiusStepsKm[0] != 5 {
		t.Errorf("RadiusStepsKm = %v", cfg.Matching.RadiusStepsKm)
	}
	if cfg.Tracking.SampleInterval != 2*time.Second {
		t.Errorf("SampleInterval = %s", cfg.Tracking.SampleInterval)
	}
	if cfg.Drivers.Wallet != "amqp" {
		t.Errorf("Drivers.Wallet = %q", cfg.Drivers.Wallet)
	}
	if cfg.Booking.CancelRetries != 7 {
		t.Errorf("CancelRetries = %d", cfg.Booking.CancelRetries)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"FIXIT_DRIVERS_AUTH": "dev", "FIXIT_DRIVERS_STORE": "mongo"}},
		{"unknown wallet", map[string]string{"FIXIT_DRIVERS_AUTH": "dev", "FIXIT_DRIVERS_WALLET": "omise"}},
		{"firebase without project", map[string]string{"FIXIT_DRIVERS_AUTH": "firebase"}},
		{"fcm without project", map[string]string{"FIXIT_DRIVERS_AUTH": "dev", "FIXIT_DRIVERS_NOTIFY": "fcm"}},
		{"zero radius", map[string]string{"FIXIT_DRIVERS_AUTH": "dev", "FIXIT_MATCHING_RADIUS_KM": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Matching.AvgSpeedKmh != 25 || cfg.Tracking.StreamBuffer != 32 {
		t.Errorf("Defaults() = %+v", cfg)
	}
}
