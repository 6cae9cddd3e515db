package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/domain/geo"
)

// Bridge is the host-side handle for the map surface. Outward operations are
// fire-and-forget: the bridge never confirms the surface applied an
// instruction, so callers must not assume a synchronous effect. Operations
// issued before the surface reports ready are dropped and logged, matching
// the surface's own behavior while it is still loading.
type Bridge struct {
	transport Transport
	logger    *zap.Logger
	ready     atomic.Bool

	onPress        func(lat, lng float64)
	onRideFinished func()
	onReady        func()
}

// New creates a Bridge over the given transport. Callbacks must be
// registered before Run is started.
func New(transport Transport, logger *zap.Logger) *Bridge {
	return &Bridge{
		transport: transport,
		logger:    logger,
	}
}

// OnPress registers the callback for surface tap events.
func (b *Bridge) OnPress(fn func(lat, lng float64)) { b.onPress = fn }

// OnRideFinished registers the callback for animation completion.
func (b *Bridge) OnRideFinished(fn func()) { b.onRideFinished = fn }

// OnReady registers the callback for the surface load-complete signal.
func (b *Bridge) OnReady(fn func()) { b.onReady = fn }

// Ready reports whether the surface has announced load completion.
func (b *Bridge) Ready() bool { return b.ready.Load() }

// Run pumps surface-originated messages until the transport closes or the
// context is cancelled. Malformed payloads are dropped and logged, never
// surfaced.
func (b *Bridge) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = b.transport.Close()
	}()

	for {
		payload, err := b.transport.Receive()
		if err != nil {
			if !errors.Is(err, ErrTransportClosed) {
				b.logger.Warn("bridge receive failed", zap.Error(err))
			}
			return
		}

		msg, err := Decode(payload)
		if err != nil {
			b.logger.Warn("dropping malformed surface message", zap.Error(err))
			continue
		}

		switch m := msg.(type) {
		case *ReadyMessage:
			b.ready.Store(true)
			b.logger.Info("map surface ready")
			if b.onReady != nil {
				b.onReady()
			}
		case *PressMessage:
			if b.onPress != nil {
				b.onPress(m.Lat, m.Lng)
			}
		case *RideFinishedMessage:
			if b.onRideFinished != nil {
				b.onRideFinished()
			}
		default:
			b.logger.Warn("dropping surface message of host-originated type",
				zap.String("type", string(msg.MessageType())))
		}
	}
}

// SetRoute replaces the current route display with new start/end markers and
// a polyline built from geometry.
func (b *Bridge) SetRoute(start, end geo.Coordinate, geometry geo.RouteGeometry) {
	b.send(SetRouteMessage{
		Type:     TypeSetRoute,
		Start:    start,
		End:      end,
		Geometry: geometry.Clone(),
	})
}

// ClearRoute removes all markers and polyline and halts any animation.
func (b *Bridge) ClearRoute() {
	b.send(ClearRouteMessage{Type: TypeClearRoute})
}

// SetInitialView recenters the map without touching markers or route. A zoom
// of 0 or less falls back to DefaultZoom.
func (b *Bridge) SetInitialView(center geo.Coordinate, zoom int) {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	b.send(SetInitialViewMessage{Type: TypeSetInitialView, Center: center, Zoom: zoom})
}

// SetOnlyPickup clears any route display and places a single pickup marker.
func (b *Bridge) SetOnlyPickup(start geo.Coordinate) {
	b.send(SetOnlyPickupMessage{Type: TypeSetOnlyPickup, Start: start})
}

// AnimateRoute starts the step-wise route animation on the surface.
func (b *Bridge) AnimateRoute() {
	b.send(AnimateRouteMessage{Type: TypeAnimateRoute})
}

func (b *Bridge) send(msg Message) {
	if !b.ready.Load() {
		b.logger.Warn("dropping instruction, map surface not ready",
			zap.String("type", string(msg.MessageType())))
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("failed to encode bridge message", zap.Error(err))
		return
	}
	if err := b.transport.Send(payload); err != nil {
		b.logger.Warn("failed to send bridge message",
			zap.String("type", string(msg.MessageType())),
			zap.Error(err))
	}
}
