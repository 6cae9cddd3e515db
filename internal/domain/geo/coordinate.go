package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// Coordinate is an immutable (latitude, longitude) pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FromLngLat builds a Coordinate from a [lng, lat] pair, the native order of
// the external geocoding and directions services. The swap happens here, at
// the boundary, and nowhere else.
func FromLngLat(pair [2]float64) Coordinate {
	return Coordinate{Lat: pair[1], Lng: pair[0]}
}

// ToLngLat returns the coordinate in the [lng, lat] order the external
// directions service expects in request bodies.
func (c Coordinate) ToLngLat() [2]float64 {
	return [2]float64{c.Lng, c.Lat}
}

// Point converts the coordinate to an orb.Point (x=lng, y=lat).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// IsZero reports whether the coordinate is the zero value. The null island
// origin is not a meaningful location for this service's coverage area.
func (c Coordinate) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}

// RouteGeometry is an ordered path from start to end. Insertion order is the
// traversal order and defines the animation direction.
type RouteGeometry []Coordinate

// GeometryFromLngLat converts a directions-service coordinate list
// ([lng, lat] pairs) into a RouteGeometry in (lat, lng) order.
func GeometryFromLngLat(pairs [][2]float64) RouteGeometry {
	geometry := make(RouteGeometry, len(pairs))
	for i, pair := range pairs {
		geometry[i] = FromLngLat(pair)
	}
	return geometry
}

// Start returns the first point of the geometry.
func (g RouteGeometry) Start() Coordinate {
	return g[0]
}

// End returns the last point of the geometry.
func (g RouteGeometry) End() Coordinate {
	return g[len(g)-1]
}

// Clone returns an independent copy. The surface runtime consumes its copy
// destructively during animation, so handing off a shared slice would let the
// animation eat the orchestrator's canonical geometry.
func (g RouteGeometry) Clone() RouteGeometry {
	if g == nil {
		return nil
	}
	cp := make(RouteGeometry, len(g))
	copy(cp, g)
	return cp
}

// Bound returns the bounding box of the geometry. Only meaningful for
// geometries with at least one point.
func (g RouteGeometry) Bound() orb.Bound {
	bound := orb.Bound{Min: g[0].Point(), Max: g[0].Point()}
	for _, c := range g[1:] {
		bound = bound.Extend(c.Point())
	}
	return bound
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(a, b Coordinate) float64 {
	const earthRadiusKm = 6371.0

	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	latA := degreesToRadians(a.Lat)
	latB := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(latA)*math.Cos(latB)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
