package maps

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"
)

type fakeClient struct {
	results []maps.GeocodingResult
	err     error
	req     *maps.GeocodingRequest
}

func (f *fakeClient) ReverseGeocode(_ context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.req = r
	return f.results, f.err
}

func TestResolve(t *testing.T) {
	cases := []struct {
		name   string
		client *fakeClient
		want   string
	}{
		{
			name:   "first formatted address",
			client: &fakeClient{results: []maps.GeocodingResult{{FormattedAddress: " "}, {FormattedAddress: "MG Road, Bengaluru"}}},
			want:   "MG Road, Bengaluru",
		},
		{
			name:   "api error falls back",
			client: &fakeClient{err: errors.New("OVER_QUERY_LIMIT")},
			want:   "12.971600, 77.594600",
		},
		{
			name:   "no results falls back",
			client: &fakeClient{},
			want:   "12.971600, 77.594600",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &Geocoder{client: tc.client, language: "en"}
			if got := g.Resolve(context.Background(), 12.9716, 77.5946); got != tc.want {
				t.Fatalf("Resolve = %q, want %q", got, tc.want)
			}
			if tc.client.req == nil || tc.client.req.LatLng.Lat != 12.9716 || tc.client.req.Language != "en" {
				t.Fatalf("request = %+v", tc.client.req)
			}
		})
	}
}

func TestResolveWithoutClient(t *testing.T) {
	var g *Geocoder
	if got := g.Resolve(context.Background(), -1.5, 2.25); got != "-1.500000, 2.250000" {
		t.Fatalf("Resolve = %q", got)
	}
}
