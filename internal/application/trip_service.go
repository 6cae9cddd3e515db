package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/bridge"
	"github.com/safar-hail/service-maps/internal/domain/geo"
	"github.com/safar-hail/service-maps/internal/domain/shared"
	"github.com/safar-hail/service-maps/internal/domain/trip"
	"github.com/safar-hail/service-maps/internal/events"
	"github.com/safar-hail/service-maps/internal/geocode"
)

// defaultViewCenter is where the map opens before any trip is planned.
var defaultViewCenter = geo.Coordinate{Lat: 24.8607, Lng: 67.0011} // Karachi

// AddressResolver is the geocoding/directions contract the trip service
// sequences. Implemented by geocode.Resolver.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, text string) (geo.Coordinate, error)
	FetchRoute(ctx context.Context, start, end geo.Coordinate) (geo.RouteGeometry, error)
	Suggest(ctx context.Context, text string) ([]geo.Suggestion, error)
}

// PlanTripRequest holds the data needed to plan a new trip. Pickup, Dropoff
// and Geometry may be forwarded from a previous step, in which case the
// corresponding resolution or route fetch is skipped.
type PlanTripRequest struct {
	PickupText  string            `json:"pickup_text" binding:"required"`
	DropoffText string            `json:"dropoff_text" binding:"required"`
	Pickup      *geo.Coordinate   `json:"pickup,omitempty"`
	Dropoff     *geo.Coordinate   `json:"dropoff,omitempty"`
	Geometry    geo.RouteGeometry `json:"geometry,omitempty"`
}

// TripDTO is the response representation of a trip.
type TripDTO struct {
	ID                uuid.UUID         `json:"id"`
	TripNumber        string            `json:"trip_number"`
	RiderID           uuid.UUID         `json:"rider_id"`
	Status            string            `json:"status"`
	PickupText        string            `json:"pickup_text"`
	DropoffText       string            `json:"dropoff_text"`
	Pickup            geo.Coordinate    `json:"pickup"`
	Dropoff           geo.Coordinate    `json:"dropoff"`
	Geometry          geo.RouteGeometry `json:"geometry,omitempty"`
	FareEstimatePaisa int64             `json:"fare_estimate_paisa"`
	Currency          string            `json:"currency"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	FinishedAt        *time.Time        `json:"finished_at,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	CancelNote        string            `json:"cancel_note,omitempty"`
	Version           int64             `json:"version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// TripService is the application service coordinating geocoding, routing,
// the map bridge and trip persistence.
type TripService struct {
	repo     trip.TripRepository
	resolver AddressResolver
	fare     trip.FareStrategy
	bridge   *bridge.Bridge
	producer *events.Producer
	logger   *zap.Logger

	mu           sync.Mutex
	activeTripID uuid.UUID
	lastPress    *geo.Coordinate
}

// NewTripService creates a new TripService.
func NewTripService(
	repo trip.TripRepository,
	resolver AddressResolver,
	fare trip.FareStrategy,
	mapBridge *bridge.Bridge,
	producer *events.Producer,
	logger *zap.Logger,
) *TripService {
	return &TripService{
		repo:     repo,
		resolver: resolver,
		fare:     fare,
		bridge:   mapBridge,
		producer: producer,
		logger:   logger,
	}
}

// RegisterBridgeHandlers wires the service to the bridge's surface events.
// Must be called before the bridge pump starts.
func (s *TripService) RegisterBridgeHandlers() {
	s.bridge.OnReady(s.handleSurfaceReady)
	s.bridge.OnPress(s.HandlePress)
	s.bridge.OnRideFinished(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.HandleRideFinished(ctx)
	})
}

// PlanTrip resolves the pickup and dropoff addresses, fetches the route,
// persists the trip and pushes the route to the map surface. Resolution and
// routing failures come back as unprocessable errors with stable codes so
// the client can show a retry affordance instead of a silent empty map.
func (s *TripService) PlanTrip(ctx context.Context, riderID uuid.UUID, req PlanTripRequest) (*TripDTO, error) {
	pickup, err := s.resolveEndpoint(ctx, req.Pickup, req.PickupText, "pickup_not_found")
	if err != nil {
		return nil, err
	}
	dropoff, err := s.resolveEndpoint(ctx, req.Dropoff, req.DropoffText, "dropoff_not_found")
	if err != nil {
		return nil, err
	}

	geometry := req.Geometry
	if len(geometry) < 2 {
		geometry, err = s.resolver.FetchRoute(ctx, pickup, dropoff)
		if err != nil {
			if errors.Is(err, geocode.ErrRouteNotFound) {
				return nil, shared.NewUnprocessableError("route_not_found",
					"could not find a route between pickup and dropoff")
			}
			s.logger.Warn("directions request failed", zap.Error(err))
			return nil, shared.NewUnprocessableError("directions_unavailable",
				"directions service is unavailable, try again")
		}
	}

	farePaisa, err := s.fare.Estimate(trip.FareParams{
		DistanceKm: geo.HaversineKm(pickup, dropoff),
	})
	if err != nil {
		return nil, shared.NewValidationError(fmt.Sprintf("fare estimate error: %v", err))
	}

	tr, err := trip.NewTrip(riderID, req.PickupText, req.DropoffText, pickup, dropoff, farePaisa, shared.CurrencyPKR)
	if err != nil {
		return nil, err
	}
	if err := tr.MarkRouted(geometry); err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, tr); err != nil {
		return nil, fmt.Errorf("failed to save trip: %w", err)
	}

	s.mu.Lock()
	s.activeTripID = tr.ID()
	s.mu.Unlock()

	// Fire-and-forget: the surface confirms nothing, so trip state is
	// driven by our own lifecycle, never by "route is now visible".
	s.bridge.SetRoute(pickup, dropoff, geometry)

	s.publishTripRouted(ctx, tr)

	result := toTripDTO(tr)
	return &result, nil
}

// resolveEndpoint uses a forwarded coordinate when present, otherwise
// geocodes the free text.
func (s *TripService) resolveEndpoint(ctx context.Context, known *geo.Coordinate, text, notFoundCode string) (geo.Coordinate, error) {
	if known != nil && !known.IsZero() {
		return *known, nil
	}

	coord, err := s.resolver.ResolveAddress(ctx, text)
	if err != nil {
		if errors.Is(err, geocode.ErrNoMatch) {
			return geo.Coordinate{}, shared.NewUnprocessableError(notFoundCode,
				fmt.Sprintf("could not find a location for %q", text))
		}
		s.logger.Warn("geocoding request failed", zap.String("query", text), zap.Error(err))
		return geo.Coordinate{}, shared.NewUnprocessableError("geocoding_unavailable",
			"geocoding service is unavailable, try again")
	}
	return coord, nil
}

// StartRide transitions the trip to enroute and starts the route animation.
func (s *TripService) StartRide(ctx context.Context, tripID uuid.UUID) (*TripDTO, error) {
	tr, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if err := tr.StartRide(); err != nil {
		return nil, err
	}

	tr.IncrementVersion()
	if err := s.repo.Update(ctx, tr); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.activeTripID = tr.ID()
	s.mu.Unlock()

	s.bridge.AnimateRoute()

	evt := events.RideStartedEvent{
		TripID:     tr.ID(),
		TripNumber: tr.TripNumber(),
		RiderID:    tr.RiderID(),
		StartedAt:  *tr.StartedAt(),
		OccurredAt: time.Now().UTC(),
	}
	s.publishEvent(ctx, events.TripRideStarted, tr.ID().String(), evt)

	result := toTripDTO(tr)
	return &result, nil
}

// HandleRideFinished reacts to the surface's rideFinished event for the
// active trip. A stale event after cancellation or teardown is ignored.
func (s *TripService) HandleRideFinished(ctx context.Context) {
	s.mu.Lock()
	tripID := s.activeTripID
	s.mu.Unlock()

	if tripID == uuid.Nil {
		s.logger.Debug("rideFinished with no active trip, ignoring")
		return
	}

	tr, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		s.logger.Error("failed to load trip for rideFinished",
			zap.String("trip_id", tripID.String()), zap.Error(err))
		return
	}

	if err := tr.Finish(); err != nil {
		s.logger.Warn("rideFinished for trip not enroute, ignoring",
			zap.String("trip_id", tripID.String()),
			zap.String("status", tr.Status().String()))
		return
	}

	tr.IncrementVersion()
	if err := s.repo.Update(ctx, tr); err != nil {
		s.logger.Error("failed to persist finished trip",
			zap.String("trip_id", tripID.String()), zap.Error(err))
		return
	}

	s.mu.Lock()
	s.activeTripID = uuid.Nil
	s.mu.Unlock()

	evt := events.RideFinishedEvent{
		TripID:     tr.ID(),
		TripNumber: tr.TripNumber(),
		RiderID:    tr.RiderID(),
		FinishedAt: *tr.FinishedAt(),
		OccurredAt: time.Now().UTC(),
	}
	s.publishEvent(ctx, events.TripRideFinished, tr.ID().String(), evt)

	s.logger.Info("trip finished",
		zap.String("trip_id", tr.ID().String()),
		zap.String("trip_number", tr.TripNumber()))
}

// CancelTrip cancels a trip that is not yet in a terminal state and clears
// the route display if the trip was the active one.
func (s *TripService) CancelTrip(ctx context.Context, tripID uuid.UUID, reason string) (*TripDTO, error) {
	tr, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}

	if err := tr.Cancel(reason); err != nil {
		return nil, err
	}

	tr.IncrementVersion()
	if err := s.repo.Update(ctx, tr); err != nil {
		return nil, err
	}

	s.mu.Lock()
	wasActive := s.activeTripID == tr.ID()
	if wasActive {
		s.activeTripID = uuid.Nil
	}
	s.mu.Unlock()

	if wasActive {
		s.bridge.ClearRoute()
	}

	evt := events.TripCancelledEvent{
		TripID:     tr.ID(),
		TripNumber: tr.TripNumber(),
		RiderID:    tr.RiderID(),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	s.publishEvent(ctx, events.TripCancelled, tr.ID().String(), evt)

	result := toTripDTO(tr)
	return &result, nil
}

// CancelTripByDispatch cancels a trip on behalf of the dispatch service.
// A trip already in a terminal state is treated as a no-op so replayed
// dispatch events do not error the consumer into a retry loop.
func (s *TripService) CancelTripByDispatch(ctx context.Context, tripID uuid.UUID, reason string) error {
	_, err := s.CancelTrip(ctx, tripID, reason)
	if err != nil {
		var appErr *shared.AppError
		if errors.As(err, &appErr) && appErr.Kind == shared.KindInvalidState {
			s.logger.Debug("dispatch cancel for trip already terminal, ignoring",
				zap.String("trip_id", tripID.String()))
			return nil
		}
		return err
	}
	return nil
}

// HandlePress reacts to a tap on the map surface: the tapped location
// becomes the pending pickup and a pickup-only marker is placed.
func (s *TripService) HandlePress(lat, lng float64) {
	coord := geo.Coordinate{Lat: lat, Lng: lng}

	s.mu.Lock()
	s.lastPress = &coord
	s.mu.Unlock()

	s.bridge.SetOnlyPickup(coord)
}

// LastPress returns the most recently tapped coordinate, or nil.
func (s *TripService) LastPress() *geo.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPress == nil {
		return nil
	}
	c := *s.lastPress
	return &c
}

// Suggest performs a live address search for the autosuggest box.
func (s *TripService) Suggest(ctx context.Context, text string) ([]geo.Suggestion, error) {
	suggestions, err := s.resolver.Suggest(ctx, text)
	if err != nil {
		s.logger.Warn("suggest request failed", zap.String("query", text), zap.Error(err))
		return nil, shared.NewUnprocessableError("geocoding_unavailable",
			"geocoding service is unavailable, try again")
	}
	return suggestions, nil
}

// GetTrip retrieves a single trip by ID.
func (s *TripService) GetTrip(ctx context.Context, tripID uuid.UUID) (*TripDTO, error) {
	tr, err := s.repo.FindByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	result := toTripDTO(tr)
	return &result, nil
}

// GetRiderTrips retrieves paginated trips for a specific rider.
func (s *TripService) GetRiderTrips(ctx context.Context, riderID uuid.UUID, page, limit int) (*shared.PaginatedResult[TripDTO], error) {
	trips, total, err := s.repo.FindByRiderID(ctx, riderID, page, limit)
	if err != nil {
		return nil, err
	}

	dtos := make([]TripDTO, len(trips))
	for i, tr := range trips {
		dtos[i] = toTripDTO(tr)
	}

	result := shared.NewPaginatedResult(dtos, total, page, limit)
	return &result, nil
}

// --- Admin methods ---

// TripStatsDTO holds trip statistics for the admin dashboard.
type TripStatsDTO struct {
	TotalTrips int64            `json:"total_trips"`
	ByStatus   map[string]int64 `json:"by_status"`
}

// ListAllTrips returns a paginated list of all trips (admin).
func (s *TripService) ListAllTrips(ctx context.Context, page, limit int) ([]TripDTO, int64, error) {
	trips, total, err := s.repo.ListAll(ctx, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trips: %w", err)
	}

	dtos := make([]TripDTO, len(trips))
	for i, tr := range trips {
		dtos[i] = toTripDTO(tr)
	}
	return dtos, total, nil
}

// GetTripStats returns aggregate trip statistics (admin).
func (s *TripService) GetTripStats(ctx context.Context) (*TripStatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get trip stats: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c
	}

	return &TripStatsDTO{
		TotalTrips: total,
		ByStatus:   counts,
	}, nil
}

// --- Helpers ---

func (s *TripService) handleSurfaceReady() {
	s.bridge.SetInitialView(defaultViewCenter, bridge.DefaultZoom)
}

func toTripDTO(tr *trip.Trip) TripDTO {
	return TripDTO{
		ID:                tr.ID(),
		TripNumber:        tr.TripNumber(),
		RiderID:           tr.RiderID(),
		Status:            string(tr.Status()),
		PickupText:        tr.PickupText(),
		DropoffText:       tr.DropoffText(),
		Pickup:            tr.Pickup(),
		Dropoff:           tr.Dropoff(),
		Geometry:          tr.Geometry().Clone(),
		FareEstimatePaisa: tr.FareEstimatePaisa(),
		Currency:          tr.Currency(),
		StartedAt:         tr.StartedAt(),
		FinishedAt:        tr.FinishedAt(),
		CancelledAt:       tr.CancelledAt(),
		CancelNote:        tr.CancelNote(),
		Version:           tr.Version(),
		CreatedAt:         tr.CreatedAt(),
		UpdatedAt:         tr.UpdatedAt(),
	}
}

func (s *TripService) publishTripRouted(ctx context.Context, tr *trip.Trip) {
	evt := events.TripRoutedEvent{
		TripID:       tr.ID(),
		TripNumber:   tr.TripNumber(),
		RiderID:      tr.RiderID(),
		Pickup:       tr.Pickup(),
		Dropoff:      tr.Dropoff(),
		RoutePoints:  len(tr.Geometry()),
		FareEstimate: tr.FareEstimatePaisa(),
		Currency:     tr.Currency(),
		OccurredAt:   time.Now().UTC(),
	}
	s.publishEvent(ctx, events.TripRouted, tr.ID().String(), evt)
}

func (s *TripService) publishEvent(ctx context.Context, eventType, key string, data interface{}) {
	if s.producer == nil {
		return
	}

	cloudEvent, err := events.NewCloudEvent("service-maps", eventType, data)
	if err != nil {
		s.logger.Error("failed to create cloud event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return
	}

	if err := s.producer.PublishEvent(ctx, events.TopicTripEvents, key, cloudEvent); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
