package geo

import (
	"math"
	"testing"
)

func TestDistanceToSamePoint(t *testing.T) {
	p := Coordinate{Lat: 51.5074, Lon: -0.1278}
	if d := p.DistanceTo(p); d != 0 {
		t.Errorf("distance to self = %f, want 0", d)
	}
}

func TestDistanceToKnownPair(t *testing.T) {
	// Duomo di Milano to Castello Sforzesco, roughly 1km.
	duomo := Coordinate{Lat: 45.4642, Lon: 9.1900}
	castello := Coordinate{Lat: 45.4705, Lon: 9.1793}

	d := duomo.DistanceTo(castello)
	if d < 900 || d > 1300 {
		t.Errorf("distance = %.0fm, want roughly 1km", d)
	}

	// Symmetric.
	if back := castello.DistanceTo(duomo); math.Abs(back-d) > 0.001 {
		t.Errorf("distance not symmetric: %f vs %f", d, back)
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := Coordinate{Lat: 41.8902, Lon: 12.4922}
	parsed, err := Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != orig {
		t.Errorf("round trip = %v, want %v", parsed, orig)
	}
}

func TestParseInvalid(t *testing.T) {
	for _, s := range []string{"", "41.89", "a,b", "41.89;12.49"} {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", s)
		}
	}
}

func TestZoneContains(t *testing.T) {
	zone := Zone{
		ID:      "TEST",
		Center:  Coordinate{Lat: 41.8902, Lon: 12.4922},
		RadiusM: 800,
	}

	if !zone.Contains(zone.Center) {
		t.Error("zone does not contain its own center")
	}
	// ~400m north of the center.
	if !zone.Contains(Coordinate{Lat: 41.8938, Lon: 12.4922}) {
		t.Error("zone does not contain point inside radius")
	}
	// ~2km away.
	if zone.Contains(Coordinate{Lat: 41.9080, Lon: 12.4922}) {
		t.Error("zone contains point far outside radius")
	}
}
