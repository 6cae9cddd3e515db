package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/safar-hail/service-maps/internal/domain/geo"
)

// TopicTripEvents carries the trip lifecycle events published by this service.
const TopicTripEvents = "trip.events"

// TopicDispatchEvents carries events from the dispatch service, consumed here.
const TopicDispatchEvents = "dispatch.events"

// Event types on TopicDispatchEvents.
const (
	DispatchRideCancelled = "dispatch.ride_cancelled"
)

// Event types on TopicTripEvents.
const (
	TripRouted       = "trip.routed"
	TripRideStarted  = "trip.ride_started"
	TripRideFinished = "trip.ride_finished"
	TripCancelled    = "trip.cancelled"
)

// TripRoutedEvent is published when a trip's route has been resolved and drawn.
type TripRoutedEvent struct {
	TripID       uuid.UUID      `json:"trip_id"`
	TripNumber   string         `json:"trip_number"`
	RiderID      uuid.UUID      `json:"rider_id"`
	Pickup       geo.Coordinate `json:"pickup"`
	Dropoff      geo.Coordinate `json:"dropoff"`
	RoutePoints  int            `json:"route_points"`
	FareEstimate int64          `json:"fare_estimate_paisa"`
	Currency     string         `json:"currency"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// RideStartedEvent is published when the ride (animation) begins.
type RideStartedEvent struct {
	TripID     uuid.UUID `json:"trip_id"`
	TripNumber string    `json:"trip_number"`
	RiderID    uuid.UUID `json:"rider_id"`
	StartedAt  time.Time `json:"started_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RideFinishedEvent is published when the map surface reports the ride done.
type RideFinishedEvent struct {
	TripID     uuid.UUID `json:"trip_id"`
	TripNumber string    `json:"trip_number"`
	RiderID    uuid.UUID `json:"rider_id"`
	FinishedAt time.Time `json:"finished_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RideCancelledByDispatchEvent arrives on dispatch.events when the dispatch
// service voids a ride (driver withdrew, no driver found).
type RideCancelledByDispatchEvent struct {
	TripID     uuid.UUID `json:"trip_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TripCancelledEvent is published when a trip is cancelled before finishing.
type TripCancelledEvent struct {
	TripID     uuid.UUID `json:"trip_id"`
	TripNumber string    `json:"trip_number"`
	RiderID    uuid.UUID `json:"rider_id"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}
