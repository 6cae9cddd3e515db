package surface

import (
	"sync"

	"github.com/paulmach/orb"

	"github.com/safar-hail/service-maps/internal/domain/geo"
)

// Renderer is the drawing contract the runtime drives. Implementations own
// the visual map state: a native map view, an embedded browser, or the
// headless DisplayState recorder.
type Renderer interface {
	PlaceStartMarker(c geo.Coordinate)
	PlaceEndMarker(c geo.Coordinate)
	MoveStartMarker(c geo.Coordinate)
	DrawPolyline(g geo.RouteGeometry)
	FitBounds(b orb.Bound, padding float64)
	SetView(center geo.Coordinate, zoom int)
	Clear()
}

// ViewState describes the last view instruction applied to the renderer.
type ViewState struct {
	Center geo.Coordinate `json:"center"`
	Zoom   int            `json:"zoom"`
}

// DisplaySnapshot is a point-in-time copy of the rendered display, safe to
// hand out across goroutines.
type DisplaySnapshot struct {
	StartMarker *geo.Coordinate   `json:"start_marker,omitempty"`
	EndMarker   *geo.Coordinate   `json:"end_marker,omitempty"`
	Polyline    geo.RouteGeometry `json:"polyline,omitempty"`
	View        *ViewState        `json:"view,omitempty"`
}

// DisplayState is a headless Renderer that records what would be drawn. It
// backs the embedded (simulation) surface mode and the runtime tests.
type DisplayState struct {
	mu          sync.RWMutex
	startMarker *geo.Coordinate
	endMarker   *geo.Coordinate
	polyline    geo.RouteGeometry
	view        *ViewState
	bound       *orb.Bound
}

// NewDisplayState creates an empty DisplayState.
func NewDisplayState() *DisplayState {
	return &DisplayState{}
}

// PlaceStartMarker implements Renderer.
func (d *DisplayState) PlaceStartMarker(c geo.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startMarker = &c
}

// PlaceEndMarker implements Renderer.
func (d *DisplayState) PlaceEndMarker(c geo.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.endMarker = &c
}

// MoveStartMarker implements Renderer.
func (d *DisplayState) MoveStartMarker(c geo.Coordinate) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startMarker = &c
}

// DrawPolyline implements Renderer.
func (d *DisplayState) DrawPolyline(g geo.RouteGeometry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.polyline = g.Clone()
}

// FitBounds implements Renderer.
func (d *DisplayState) FitBounds(b orb.Bound, padding float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	padded := b.Pad(padding)
	d.bound = &padded
	center := padded.Center()
	d.view = &ViewState{Center: geo.Coordinate{Lat: center.Lat(), Lng: center.Lon()}}
}

// SetView implements Renderer.
func (d *DisplayState) SetView(center geo.Coordinate, zoom int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.view = &ViewState{Center: center, Zoom: zoom}
}

// Clear implements Renderer.
func (d *DisplayState) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startMarker = nil
	d.endMarker = nil
	d.polyline = nil
}

// Snapshot returns a copy of the current display.
func (d *DisplayState) Snapshot() DisplaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snap := DisplaySnapshot{Polyline: d.polyline.Clone()}
	if d.startMarker != nil {
		c := *d.startMarker
		snap.StartMarker = &c
	}
	if d.endMarker != nil {
		c := *d.endMarker
		snap.EndMarker = &c
	}
	if d.view != nil {
		v := *d.view
		snap.View = &v
	}
	return snap
}

// Bound returns the last fitted bound, or nil if none was applied.
func (d *DisplayState) Bound() *orb.Bound {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bound
}
