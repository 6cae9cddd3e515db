package trip

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/safar-hail/service-maps/internal/domain/geo"
	"github.com/safar-hail/service-maps/internal/domain/shared"
)

const tripNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Trip is the aggregate root for the trip domain. It holds the canonical
// copy of the route geometry; the map surface works on its own copy.
type Trip struct {
	id          uuid.UUID
	tripNumber  string
	riderID     uuid.UUID
	status      TripStatus
	pickupText  string
	dropoffText string
	pickup      geo.Coordinate
	dropoff     geo.Coordinate
	geometry    geo.RouteGeometry

	fareEstimatePaisa int64
	currency          string

	startedAt   *time.Time
	finishedAt  *time.Time
	cancelledAt *time.Time
	cancelNote  string

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateTripNumber creates a trip number in the format "TR-XXXXXX".
func generateTripNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tripNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate trip number: %w", err)
		}
		result[i] = tripNumberChars[n.Int64()]
	}
	return "TR-" + string(result), nil
}

// NewTrip creates a new Trip aggregate with status=requested.
func NewTrip(
	riderID uuid.UUID,
	pickupText, dropoffText string,
	pickup, dropoff geo.Coordinate,
	fareEstimatePaisa int64,
	currency string,
) (*Trip, error) {
	if riderID == uuid.Nil {
		return nil, shared.NewValidationError("rider ID is required")
	}
	if pickupText == "" {
		return nil, shared.NewValidationError("pickup address is required")
	}
	if dropoffText == "" {
		return nil, shared.NewValidationError("dropoff address is required")
	}
	if pickup == dropoff {
		return nil, shared.NewValidationError("pickup and dropoff must be distinct locations")
	}
	if fareEstimatePaisa <= 0 {
		return nil, shared.NewValidationError("fare estimate must be positive")
	}

	tripNumber, err := generateTripNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Trip{
		id:                uuid.New(),
		tripNumber:        tripNumber,
		riderID:           riderID,
		status:            StatusRequested,
		pickupText:        pickupText,
		dropoffText:       dropoffText,
		pickup:            pickup,
		dropoff:           dropoff,
		fareEstimatePaisa: fareEstimatePaisa,
		currency:          currency,
		version:           1,
		createdAt:         now,
		updatedAt:         now,
	}, nil
}

// ReconstructTrip rebuilds a Trip from persistence data (no validation).
func ReconstructTrip(
	id uuid.UUID,
	tripNumber string,
	riderID uuid.UUID,
	status TripStatus,
	pickupText, dropoffText string,
	pickup, dropoff geo.Coordinate,
	geometry geo.RouteGeometry,
	fareEstimatePaisa int64,
	currency string,
	startedAt, finishedAt, cancelledAt *time.Time,
	cancelNote string,
	version int64,
	createdAt, updatedAt time.Time,
) *Trip {
	return &Trip{
		id:                id,
		tripNumber:        tripNumber,
		riderID:           riderID,
		status:            status,
		pickupText:        pickupText,
		dropoffText:       dropoffText,
		pickup:            pickup,
		dropoff:           dropoff,
		geometry:          geometry,
		fareEstimatePaisa: fareEstimatePaisa,
		currency:          currency,
		startedAt:         startedAt,
		finishedAt:        finishedAt,
		cancelledAt:       cancelledAt,
		cancelNote:        cancelNote,
		version:           version,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}

// --- Getters ---

// ID returns the trip's unique identifier.
func (t *Trip) ID() uuid.UUID { return t.id }

// TripNumber returns the human-readable trip number.
func (t *Trip) TripNumber() string { return t.tripNumber }

// RiderID returns the rider's user ID.
func (t *Trip) RiderID() uuid.UUID { return t.riderID }

// Status returns the current trip status.
func (t *Trip) Status() TripStatus { return t.status }

// PickupText returns the free-text pickup address as entered by the rider.
func (t *Trip) PickupText() string { return t.pickupText }

// DropoffText returns the free-text dropoff address as entered by the rider.
func (t *Trip) DropoffText() string { return t.dropoffText }

// Pickup returns the resolved pickup coordinate.
func (t *Trip) Pickup() geo.Coordinate { return t.pickup }

// Dropoff returns the resolved dropoff coordinate.
func (t *Trip) Dropoff() geo.Coordinate { return t.dropoff }

// Geometry returns the canonical route geometry, or nil before routing.
func (t *Trip) Geometry() geo.RouteGeometry { return t.geometry }

// FareEstimatePaisa returns the fare estimate in paisa.
func (t *Trip) FareEstimatePaisa() int64 { return t.fareEstimatePaisa }

// Currency returns the currency code.
func (t *Trip) Currency() string { return t.currency }

// StartedAt returns the time the ride started, or nil.
func (t *Trip) StartedAt() *time.Time { return t.startedAt }

// FinishedAt returns the time the ride finished, or nil.
func (t *Trip) FinishedAt() *time.Time { return t.finishedAt }

// CancelledAt returns the time the trip was cancelled, or nil.
func (t *Trip) CancelledAt() *time.Time { return t.cancelledAt }

// CancelNote returns the cancellation reason.
func (t *Trip) CancelNote() string { return t.cancelNote }

// Version returns the entity version for optimistic locking.
func (t *Trip) Version() int64 { return t.version }

// CreatedAt returns the creation timestamp.
func (t *Trip) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (t *Trip) UpdatedAt() time.Time { return t.updatedAt }

// --- Behavior ---

// MarkRouted attaches the fetched route geometry and transitions the trip
// from requested to routed.
func (t *Trip) MarkRouted(geometry geo.RouteGeometry) error {
	if !t.status.CanTransitionTo(StatusRouted) {
		return shared.NewInvalidStateError(string(t.status), string(StatusRouted))
	}
	if len(geometry) < 2 {
		return shared.NewValidationError("route geometry needs at least two points")
	}
	t.geometry = geometry.Clone()
	t.status = StatusRouted
	t.updatedAt = time.Now().UTC()
	return nil
}

// StartRide transitions the trip from routed to enroute.
func (t *Trip) StartRide() error {
	if !t.status.CanTransitionTo(StatusEnroute) {
		return shared.NewInvalidStateError(string(t.status), string(StatusEnroute))
	}
	now := time.Now().UTC()
	t.status = StatusEnroute
	t.startedAt = &now
	t.updatedAt = now
	return nil
}

// Finish transitions the trip from enroute to finished.
func (t *Trip) Finish() error {
	if !t.status.CanTransitionTo(StatusFinished) {
		return shared.NewInvalidStateError(string(t.status), string(StatusFinished))
	}
	now := time.Now().UTC()
	t.status = StatusFinished
	t.finishedAt = &now
	t.updatedAt = now
	return nil
}

// Cancel transitions the trip to cancelled if it is not in a terminal state.
func (t *Trip) Cancel(reason string) error {
	if !t.status.CanBeCancelled() {
		return shared.NewInvalidStateError(string(t.status), string(StatusCancelled))
	}
	now := time.Now().UTC()
	t.status = StatusCancelled
	t.cancelNote = reason
	t.cancelledAt = &now
	t.updatedAt = now
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (t *Trip) IncrementVersion() {
	t.version++
	t.updatedAt = time.Now().UTC()
}
