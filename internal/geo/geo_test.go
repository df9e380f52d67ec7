package geo

import (
	"math"
	"testing"
)

func TestDistanceKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lng1      float64
		lat2      float64
		lng2      float64
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "origin to itself",
			lat1:      0, lng1: 0,
			lat2:      0, lng2: 0,
			wantKm:    0,
			tolerance: 1e-9,
		},
		{
			name:      "Kigali Nyarugenge to Remera",
			lat1:      -1.9441, lng1: 30.0619,
			lat2:      -1.9706, lng2: 30.1044,
			wantKm:    5.57,
			tolerance: 0.2,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			lat1:      40.7128, lng1: -74.0060,
			lat2:      34.0522, lng2: -118.2437,
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceKm(tt.lat1, tt.lng1, tt.lat2, tt.lng2)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("DistanceKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestDistanceKm_Symmetry(t *testing.T) {
	d1 := DistanceKm(-1.9441, 30.0619, -1.9706, 30.1044)
	d2 := DistanceKm(-1.9706, 30.1044, -1.9441, 30.0619)
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestTravelTimeMinutes(t *testing.T) {
	cases := []struct {
		dist, speed float64
		want        int
	}{
		{0, 25, 0},
		{5, 30, 10},
		{10, 20, 30},
		{1, 25, 2}, // 2.4 rounds down
		{1.25, 30, 3}, // 2.5 rounds half away from zero
	}
	for _, tc := range cases {
		if got := TravelTimeMinutes(tc.dist, tc.speed); got != tc.want {
			t.Errorf("TravelTimeMinutes(%v, %v) = %d, want %d", tc.dist, tc.speed, got, tc.want)
		}
	}
}

func TestTravelTimeMinutes_Monotonic(t *testing.T) {
	for _, speed := range []float64{15, 20, 25, 30} {
		prev := TravelTimeMinutes(0, speed)
		for d := 0.0; d <= 50; d += 0.05 {
			got := TravelTimeMinutes(d, speed)
			if got < prev {
				t.Fatalf("travel time decreased at %.2fkm @%.0fkm/h: %d < %d", d, speed, got, prev)
			}
			prev = got
		}
	}
}

func TestTravelTimeMinutes_ZeroSpeed(t *testing.T) {
	if got := TravelTimeMinutes(1, 0); got != math.MaxInt {
		t.Errorf("expected MaxInt for zero speed, got %d", got)
	}
}

func TestSortByDistance(t *testing.T) {
	type item struct {
		id string
		d  float64
	}
	items := []item{{"c", 5}, {"a", 1}, {"b", 3}, {"a2", 1}}
	SortByDistance(items, func(i item) float64 { return i.d })
	want := []string{"a", "a2", "b", "c"}
	for i, w := range want {
		if items[i].id != w {
			t.Fatalf("unexpected order at %d: %v", i, items)
		}
	}
}

func TestSortByDistance_Empty(t *testing.T) {
	var items []float64
	SortByDistance(items, func(f float64) float64 { return f })
}
