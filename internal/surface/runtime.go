package surface

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/bridge"
	"github.com/safar-hail/service-maps/internal/domain/geo"
)

// DefaultAnimateInterval is the tick period of the route animation.
const DefaultAnimateInterval = 100 * time.Millisecond

// Options tunes a Runtime.
type Options struct {
	// AnimateInterval is the animation tick period; 0 means DefaultAnimateInterval.
	AnimateInterval time.Duration
	// FitBoundsPad is the relative padding applied when fitting the view to
	// a new route.
	FitBoundsPad float64
}

// Runtime is the logic running inside the map surface. It consumes host
// messages from its transport end, drives a Renderer, executes the route
// animation, and emits press/rideFinished events upward.
//
// All state lives in the Run goroutine: messages and animation ticks are
// multiplexed through one select, so no locking is needed around the display
// lifecycle.
type Runtime struct {
	transport bridge.Transport
	renderer  Renderer
	logger    *zap.Logger
	interval  time.Duration
	pad       float64

	stateMu sync.RWMutex
	state   State

	// remaining is the working copy of the most recent route geometry,
	// consumed destructively while animating.
	remaining geo.RouteGeometry
	ticker    *time.Ticker
}

// NewRuntime creates a Runtime over the surface end of a transport.
func NewRuntime(transport bridge.Transport, renderer Renderer, opts Options, logger *zap.Logger) *Runtime {
	interval := opts.AnimateInterval
	if interval <= 0 {
		interval = DefaultAnimateInterval
	}
	return &Runtime{
		transport: transport,
		renderer:  renderer,
		logger:    logger,
		interval:  interval,
		pad:       opts.FitBoundsPad,
		state:     StateIdle,
	}
}

// State returns the runtime's current lifecycle state.
func (r *Runtime) State() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

// ReportPress emits a tap event upward. Taps never mutate runtime state, so
// the rendering layer may call this from any goroutine in any state.
func (r *Runtime) ReportPress(lat, lng float64) {
	r.emit(bridge.PressMessage{Type: bridge.TypePress, Lat: lat, Lng: lng})
}

// Run announces readiness and processes host messages until the transport
// closes or the context is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = r.transport.Close()
	}()

	r.emit(bridge.ReadyMessage{Type: bridge.TypeReady})

	payloads := make(chan []byte)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			payload, err := r.transport.Receive()
			if err != nil {
				if !errors.Is(err, bridge.ErrTransportClosed) {
					r.logger.Warn("surface receive failed", zap.Error(err))
				}
				return
			}
			payloads <- payload
		}
	}()

	for {
		select {
		case payload := <-payloads:
			r.handle(payload)
		case <-r.tickC():
			r.tick()
		case <-closed:
			r.stopTimer()
			return
		}
	}
}

// tickC returns the animation tick channel, or nil (never ready) when no
// animation is running.
func (r *Runtime) tickC() <-chan time.Time {
	if r.ticker == nil {
		return nil
	}
	return r.ticker.C
}

func (r *Runtime) handle(payload []byte) {
	msg, err := bridge.Decode(payload)
	if err != nil {
		r.logger.Warn("dropping malformed host message", zap.Error(err))
		return
	}

	switch m := msg.(type) {
	case *bridge.SetRouteMessage:
		r.handleSetRoute(m)
	case *bridge.ClearRouteMessage:
		r.reset()
	case *bridge.SetOnlyPickupMessage:
		r.handleSetOnlyPickup(m)
	case *bridge.SetInitialViewMessage:
		// Recenter only; markers, route and state stay untouched.
		r.renderer.SetView(m.Center, m.Zoom)
	case *bridge.AnimateRouteMessage:
		r.handleAnimateRoute()
	default:
		r.logger.Warn("dropping host message of surface-originated type",
			zap.String("type", string(msg.MessageType())))
	}
}

// handleSetRoute tears the display down and rebuilds it from the new route.
// Markers are always placed; the polyline and view fit require at least two
// points, otherwise the current view is left alone.
func (r *Runtime) handleSetRoute(m *bridge.SetRouteMessage) {
	r.reset()

	r.renderer.PlaceStartMarker(m.Start)
	r.renderer.PlaceEndMarker(m.End)
	if len(m.Geometry) >= 2 {
		r.renderer.DrawPolyline(m.Geometry)
		r.renderer.FitBounds(m.Geometry.Bound(), r.pad)
	}

	r.remaining = m.Geometry.Clone()
	r.transition(StateRouteSet)
}

func (r *Runtime) handleSetOnlyPickup(m *bridge.SetOnlyPickupMessage) {
	r.reset()

	r.renderer.PlaceStartMarker(m.Start)
	r.renderer.SetView(m.Start, bridge.DefaultZoom)
	r.transition(StatePickupOnly)
}

func (r *Runtime) handleAnimateRoute() {
	if r.State() != StateRouteSet {
		r.logger.Warn("ignoring animateRoute", zap.String("state", r.State().String()))
		return
	}
	if len(r.remaining) <= 2 {
		// Nothing to animate; the ride is over before it starts.
		r.emit(bridge.RideFinishedMessage{Type: bridge.TypeRideFinished})
		return
	}

	r.ticker = time.NewTicker(r.interval)
	r.transition(StateAnimating)
}

// tick pops the leading geometry point, relocates the start marker to it and
// redraws the shortened polyline. The polyline therefore stays a strict
// suffix of the most recently set geometry. When two or fewer points remain
// the animation halts, rideFinished is emitted and the display keeps its
// last position.
func (r *Runtime) tick() {
	if len(r.remaining) == 0 {
		r.stopTimer()
		return
	}

	head := r.remaining[0]
	r.remaining = r.remaining[1:]
	r.renderer.MoveStartMarker(head)
	r.renderer.DrawPolyline(r.remaining)

	if len(r.remaining) <= 2 {
		r.stopTimer()
		r.transition(StateRouteSet)
		r.emit(bridge.RideFinishedMessage{Type: bridge.TypeRideFinished})
	}
}

// reset performs the full teardown into idle: markers and polyline removed,
// any running animation cancelled, working geometry dropped.
func (r *Runtime) reset() {
	r.stopTimer()
	r.renderer.Clear()
	r.remaining = nil
	r.transition(StateIdle)
}

func (r *Runtime) stopTimer() {
	if r.ticker != nil {
		r.ticker.Stop()
		r.ticker = nil
	}
}

func (r *Runtime) transition(to State) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if !r.state.CanTransitionTo(to) {
		r.logger.Error("invalid surface state transition",
			zap.String("from", r.state.String()),
			zap.String("to", to.String()))
		return
	}
	r.state = to
}

func (r *Runtime) emit(msg bridge.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("failed to encode surface event", zap.Error(err))
		return
	}
	if err := r.transport.Send(payload); err != nil && !errors.Is(err, bridge.ErrTransportClosed) {
		r.logger.Warn("failed to emit surface event",
			zap.String("type", string(msg.MessageType())),
			zap.Error(err))
	}
}
