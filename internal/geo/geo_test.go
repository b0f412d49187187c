package geo_test

import (
	"math"
	"testing"

	"github.com/mihasm/news-globe/internal/geo"
)

func TestHaversineKM(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{"same point", 51.5, -0.12, 51.5, -0.12, 0, 0.001},
		{"london to paris", 51.5074, -0.1278, 48.8566, 2.3522, 343.5, 2},
		{"equator quarter", 0, 0, 0, 90, 10007.5, 10},
		{"pole to pole", 90, 0, -90, 0, 20015, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := geo.HaversineKM(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("HaversineKM() = %v, want %v +/- %v", got, tt.want, tt.tolerance)
			}
		})
	}
}

func TestBBoxContains(t *testing.T) {
	b := geo.BBox{MinLat: 40, MinLon: -5, MaxLat: 50, MaxLon: 10}

	tests := []struct {
		name     string
		lat, lon float64
		want     bool
	}{
		{"inside", 45, 2, true},
		{"on min corner", 40, -5, true},
		{"on max corner", 50, 10, true},
		{"north of box", 50.001, 2, false},
		{"west of box", 45, -5.001, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.Contains(tt.lat, tt.lon); got != tt.want {
				t.Errorf("Contains(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
			}
		})
	}
}

func TestBBoxCenter(t *testing.T) {
	b := geo.BBox{MinLat: 40, MinLon: -10, MaxLat: 50, MaxLon: 20}
	lat, lon := b.Center()
	if lat != 45 || lon != 5 {
		t.Errorf("Center() = (%v, %v), want (45, 5)", lat, lon)
	}
}

func TestBBoxRadiusNM(t *testing.T) {
	// A 2x2 degree box around the equator: corner distance is about
	// 1.414 degrees of arc, each degree roughly 60 NM.
	b := geo.BBox{MinLat: -1, MinLon: -1, MaxLat: 1, MaxLon: 1}
	got := b.RadiusNM()
	want := 84.9
	if math.Abs(got-want) > 1.5 {
		t.Errorf("RadiusNM() = %v, want about %v", got, want)
	}

	// Radius must cover every corner.
	clat, clon := b.Center()
	corners := [][2]float64{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}
	for _, c := range corners {
		d := geo.HaversineKM(clat, clon, c[0], c[1]) / 1.852
		if d > got+1e-9 {
			t.Errorf("corner (%v, %v) at %v NM outside radius %v", c[0], c[1], d, got)
		}
	}
}
