package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/safar-hail/service-maps/internal/domain/geo"
)

// MessageType discriminates the tagged messages exchanged between the host
// application and the map surface. Each message is self-contained; none
// references a previous one.
type MessageType string

const (
	// Host → surface.
	TypeSetRoute       MessageType = "setRoute"
	TypeClearRoute     MessageType = "clearRoute"
	TypeSetInitialView MessageType = "setInitialView"
	TypeSetOnlyPickup  MessageType = "setOnlyPickup"
	TypeAnimateRoute   MessageType = "animateRoute"

	// Surface → host.
	TypePress        MessageType = "press"
	TypeRideFinished MessageType = "rideFinished"
	TypeReady        MessageType = "ready"
)

// DefaultZoom is the zoom level used when a view message carries none.
const DefaultZoom = 15

// SetRouteMessage instructs the surface to replace any current route with
// new start/end markers and a polyline built from Geometry.
type SetRouteMessage struct {
	Type     MessageType       `json:"type"`
	Start    geo.Coordinate    `json:"start"`
	End      geo.Coordinate    `json:"end"`
	Geometry geo.RouteGeometry `json:"geometry"`
}

// ClearRouteMessage removes all markers and polyline and halts any animation.
type ClearRouteMessage struct {
	Type MessageType `json:"type"`
}

// SetInitialViewMessage recenters the map without touching markers or route.
type SetInitialViewMessage struct {
	Type   MessageType    `json:"type"`
	Center geo.Coordinate `json:"center"`
	Zoom   int            `json:"zoom"`
}

// SetOnlyPickupMessage clears any route display and places a single pickup
// marker, centered at the default zoom.
type SetOnlyPickupMessage struct {
	Type  MessageType    `json:"type"`
	Start geo.Coordinate `json:"start"`
}

// AnimateRouteMessage starts the step-wise route animation on the surface.
type AnimateRouteMessage struct {
	Type MessageType `json:"type"`
}

// PressMessage reports a tap on the map surface.
type PressMessage struct {
	Type MessageType `json:"type"`
	Lat  float64     `json:"lat"`
	Lng  float64     `json:"lng"`
}

// RideFinishedMessage reports that the route animation has completed.
type RideFinishedMessage struct {
	Type MessageType `json:"type"`
}

// ReadyMessage announces that the surface has finished loading and will no
// longer drop instructions.
type ReadyMessage struct {
	Type MessageType `json:"type"`
}

// Message is implemented by every bridge protocol message.
type Message interface {
	MessageType() MessageType
}

// MessageType implements Message.
func (m SetRouteMessage) MessageType() MessageType { return TypeSetRoute }

// MessageType implements Message.
func (m ClearRouteMessage) MessageType() MessageType { return TypeClearRoute }

// MessageType implements Message.
func (m SetInitialViewMessage) MessageType() MessageType { return TypeSetInitialView }

// MessageType implements Message.
func (m SetOnlyPickupMessage) MessageType() MessageType { return TypeSetOnlyPickup }

// MessageType implements Message.
func (m AnimateRouteMessage) MessageType() MessageType { return TypeAnimateRoute }

// MessageType implements Message.
func (m PressMessage) MessageType() MessageType { return TypePress }

// MessageType implements Message.
func (m RideFinishedMessage) MessageType() MessageType { return TypeRideFinished }

// MessageType implements Message.
func (m ReadyMessage) MessageType() MessageType { return TypeReady }

type envelope struct {
	Type MessageType `json:"type"`
}

// Decode parses a wire payload into its concrete message type. Callers are
// expected to drop (and log) the payload on error rather than propagate it.
func Decode(payload []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("malformed bridge message: %w", err)
	}

	var msg Message
	switch env.Type {
	case TypeSetRoute:
		msg = &SetRouteMessage{}
	case TypeClearRoute:
		msg = &ClearRouteMessage{}
	case TypeSetInitialView:
		msg = &SetInitialViewMessage{}
	case TypeSetOnlyPickup:
		msg = &SetOnlyPickupMessage{}
	case TypeAnimateRoute:
		msg = &AnimateRouteMessage{}
	case TypePress:
		msg = &PressMessage{}
	case TypeRideFinished:
		msg = &RideFinishedMessage{}
	case TypeReady:
		msg = &ReadyMessage{}
	default:
		return nil, fmt.Errorf("unknown bridge message type %q", env.Type)
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("malformed %s message: %w", env.Type, err)
	}
	return msg, nil
}
