// Package geo provides the coordinate and zone primitives used by city
// policies and the telemetry monitor. Distances are great-circle (haversine)
// in meters.
package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Lat float64
	Lon float64
}

// DistanceTo returns the great-circle distance in meters between c and other.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dLat := toRadians(other.Lat - c.Lat)
	dLon := toRadians(other.Lon - c.Lon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(c.Lat))*math.Cos(toRadians(other.Lat))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%g,%g", c.Lat, c.Lon)
}

// Parse reads a "lat,lon" pair as produced by String.
func Parse(s string) (Coordinate, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("invalid coordinate %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Zone is a circular geographic region. Restricted zones are evaluated by the
// city policies; containment is a simple radius test on the great-circle
// distance to the center.
type Zone struct {
	ID         string
	Center     Coordinate
	RadiusM    float64
	Restricted bool
}

// Contains reports whether the point falls inside the zone.
func (z Zone) Contains(p Coordinate) bool {
	return z.Center.DistanceTo(p) <= z.RadiusM
}

func (z Zone) String() string {
	return fmt.Sprintf("Zone[%s, restricted=%t]", z.ID, z.Restricted)
}
