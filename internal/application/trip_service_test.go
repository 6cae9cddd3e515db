package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/bridge"
	"github.com/safar-hail/service-maps/internal/domain/geo"
	"github.com/safar-hail/service-maps/internal/domain/shared"
	"github.com/safar-hail/service-maps/internal/domain/trip"
	"github.com/safar-hail/service-maps/internal/geocode"
)

var (
	cliftonCoord = geo.Coordinate{Lat: 24.8138, Lng: 67.0300}
	airportCoord = geo.Coordinate{Lat: 24.9065, Lng: 67.1608}
	midwayCoord  = geo.Coordinate{Lat: 24.8500, Lng: 67.0900}
)

// fakeResolver returns canned answers and records whether it was used.
type fakeResolver struct {
	coords     map[string]geo.Coordinate
	route      geo.RouteGeometry
	resolveErr error
	routeErr   error

	mu            sync.Mutex
	resolveCalled bool
	routeCalled   bool
}

func (f *fakeResolver) ResolveAddress(_ context.Context, text string) (geo.Coordinate, error) {
	f.mu.Lock()
	f.resolveCalled = true
	f.mu.Unlock()

	if f.resolveErr != nil {
		return geo.Coordinate{}, f.resolveErr
	}
	coord, ok := f.coords[text]
	if !ok {
		return geo.Coordinate{}, geocode.ErrNoMatch
	}
	return coord, nil
}

func (f *fakeResolver) FetchRoute(_ context.Context, _, _ geo.Coordinate) (geo.RouteGeometry, error) {
	f.mu.Lock()
	f.routeCalled = true
	f.mu.Unlock()

	if f.routeErr != nil {
		return nil, f.routeErr
	}
	return f.route.Clone(), nil
}

func (f *fakeResolver) Suggest(_ context.Context, text string) ([]geo.Suggestion, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return []geo.Suggestion{{Title: text, Full: text + ", Karachi"}}, nil
}

// memoryTripRepository is an in-memory trip.TripRepository.
type memoryTripRepository struct {
	mu    sync.Mutex
	trips map[uuid.UUID]*trip.Trip
}

func newMemoryTripRepository() *memoryTripRepository {
	return &memoryTripRepository{trips: make(map[uuid.UUID]*trip.Trip)}
}

func (r *memoryTripRepository) FindByID(_ context.Context, id uuid.UUID) (*trip.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tr, ok := r.trips[id]
	if !ok {
		return nil, shared.NewNotFoundError("Trip", id.String())
	}
	return tr, nil
}

func (r *memoryTripRepository) FindByNumber(_ context.Context, number string) (*trip.Trip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tr := range r.trips {
		if tr.TripNumber() == number {
			return tr, nil
		}
	}
	return nil, shared.NewNotFoundError("Trip", number)
}

func (r *memoryTripRepository) FindByRiderID(_ context.Context, riderID uuid.UUID, _, _ int) ([]*trip.Trip, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*trip.Trip
	for _, tr := range r.trips {
		if tr.RiderID() == riderID {
			out = append(out, tr)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memoryTripRepository) ListAll(_ context.Context, _, _ int) ([]*trip.Trip, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*trip.Trip, 0, len(r.trips))
	for _, tr := range r.trips {
		out = append(out, tr)
	}
	return out, int64(len(out)), nil
}

func (r *memoryTripRepository) CountByStatus(_ context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int64)
	for _, tr := range r.trips {
		counts[tr.Status().String()]++
	}
	return counts, nil
}

func (r *memoryTripRepository) Save(_ context.Context, tr *trip.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trips[tr.ID()] = tr
	return nil
}

func (r *memoryTripRepository) Update(_ context.Context, tr *trip.Trip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.trips[tr.ID()]; !ok {
		return shared.NewNotFoundError("Trip", tr.ID().String())
	}
	r.trips[tr.ID()] = tr
	return nil
}

type serviceHarness struct {
	service  *TripService
	repo     *memoryTripRepository
	resolver *fakeResolver
	sent     chan bridge.Message
}

// newServiceHarness wires a TripService to a loopback bridge whose surface
// side immediately reports ready and forwards host instructions to a channel.
func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	resolver := &fakeResolver{
		coords: map[string]geo.Coordinate{
			"Teen Talwar, Clifton":         cliftonCoord,
			"Jinnah International Airport": airportCoord,
		},
		route: geo.RouteGeometry{cliftonCoord, midwayCoord, airportCoord},
	}
	repo := newMemoryTripRepository()

	hostEnd, surfaceEnd := bridge.NewLoopback(16)
	b := bridge.New(hostEnd, zap.NewNop())

	service := NewTripService(repo, resolver, trip.NewStandardFareStrategy(), b, nil, zap.NewNop())
	service.RegisterBridgeHandlers()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	sent := make(chan bridge.Message, 32)
	go func() {
		for {
			payload, err := surfaceEnd.Receive()
			if err != nil {
				return
			}
			msg, err := bridge.Decode(payload)
			if err != nil {
				continue
			}
			sent <- msg
		}
	}()

	ready, err := json.Marshal(bridge.ReadyMessage{Type: bridge.TypeReady})
	require.NoError(t, err)
	require.NoError(t, surfaceEnd.Send(ready))
	require.Eventually(t, func() bool { return b.Ready() }, 2*time.Second, time.Millisecond)

	h := &serviceHarness{service: service, repo: repo, resolver: resolver, sent: sent}

	// The ready handshake makes the host recenter the surface on the
	// default view before any trip instruction goes out.
	view, ok := h.expectSent(t, bridge.TypeSetInitialView).(*bridge.SetInitialViewMessage)
	require.True(t, ok)
	require.Equal(t, defaultViewCenter, view.Center)
	require.Equal(t, bridge.DefaultZoom, view.Zoom)

	return h
}

func (h *serviceHarness) expectSent(t *testing.T, want bridge.MessageType) bridge.Message {
	t.Helper()
	select {
	case msg := <-h.sent:
		require.Equal(t, want, msg.MessageType())
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s instruction", want)
		return nil
	}
}

func planRequest() PlanTripRequest {
	return PlanTripRequest{
		PickupText:  "Teen Talwar, Clifton",
		DropoffText: "Jinnah International Airport",
	}
}

func TestPlanTrip(t *testing.T) {
	h := newServiceHarness(t)
	riderID := uuid.New()

	dto, err := h.service.PlanTrip(context.Background(), riderID, planRequest())
	require.NoError(t, err)

	assert.Equal(t, "routed", dto.Status)
	assert.Equal(t, riderID, dto.RiderID)
	assert.Equal(t, cliftonCoord, dto.Pickup)
	assert.Equal(t, airportCoord, dto.Dropoff)
	assert.Len(t, dto.Geometry, 3)
	assert.Equal(t, shared.CurrencyPKR, dto.Currency)

	expectedFare := int64(10000) + int64(geo.HaversineKm(cliftonCoord, airportCoord)*3500)
	assert.Equal(t, expectedFare, dto.FareEstimatePaisa)

	// Persisted.
	stored, err := h.repo.FindByID(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusRouted, stored.Status())

	// The surface got the route.
	msg := h.expectSent(t, bridge.TypeSetRoute)
	setRoute := msg.(*bridge.SetRouteMessage)
	assert.Equal(t, cliftonCoord, setRoute.Start)
	assert.Equal(t, airportCoord, setRoute.End)
	assert.Len(t, setRoute.Geometry, 3)
}

func TestPlanTrip_ForwardedCoordinatesSkipResolution(t *testing.T) {
	h := newServiceHarness(t)

	pickup := cliftonCoord
	dropoff := airportCoord
	req := planRequest()
	req.Pickup = &pickup
	req.Dropoff = &dropoff
	req.Geometry = geo.RouteGeometry{cliftonCoord, midwayCoord, airportCoord}

	dto, err := h.service.PlanTrip(context.Background(), uuid.New(), req)
	require.NoError(t, err)
	assert.Equal(t, "routed", dto.Status)

	assert.False(t, h.resolver.resolveCalled, "forwarded coordinates must skip geocoding")
	assert.False(t, h.resolver.routeCalled, "forwarded geometry must skip the directions call")
}

func TestPlanTrip_ResolutionFailures(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(h *serviceHarness, req *PlanTripRequest)
		wantCode string
	}{
		{
			name: "unknown pickup",
			mutate: func(h *serviceHarness, req *PlanTripRequest) {
				req.PickupText = "no such place"
			},
			wantCode: "pickup_not_found",
		},
		{
			name: "unknown dropoff",
			mutate: func(h *serviceHarness, req *PlanTripRequest) {
				req.DropoffText = "no such place"
			},
			wantCode: "dropoff_not_found",
		},
		{
			name: "geocoding outage",
			mutate: func(h *serviceHarness, req *PlanTripRequest) {
				h.resolver.resolveErr = assert.AnError
			},
			wantCode: "geocoding_unavailable",
		},
		{
			name: "no route",
			mutate: func(h *serviceHarness, req *PlanTripRequest) {
				h.resolver.routeErr = geocode.ErrRouteNotFound
			},
			wantCode: "route_not_found",
		},
		{
			name: "directions outage",
			mutate: func(h *serviceHarness, req *PlanTripRequest) {
				h.resolver.routeErr = assert.AnError
			},
			wantCode: "directions_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newServiceHarness(t)
			req := planRequest()
			tt.mutate(h, &req)

			_, err := h.service.PlanTrip(context.Background(), uuid.New(), req)
			require.Error(t, err)

			appErr, ok := shared.AsAppError(err)
			require.True(t, ok, "failures must surface as typed errors")
			assert.Equal(t, shared.KindUnprocessable, appErr.Kind)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}

func TestStartRideAndFinish(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	dto, err := h.service.PlanTrip(ctx, uuid.New(), planRequest())
	require.NoError(t, err)
	h.expectSent(t, bridge.TypeSetRoute)

	started, err := h.service.StartRide(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, "enroute", started.Status)
	assert.NotNil(t, started.StartedAt)
	h.expectSent(t, bridge.TypeAnimateRoute)

	h.service.HandleRideFinished(ctx)

	stored, err := h.repo.FindByID(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusFinished, stored.Status())
	assert.NotNil(t, stored.FinishedAt())

	// A stale rideFinished after completion is ignored.
	h.service.HandleRideFinished(ctx)
	assert.Equal(t, trip.StatusFinished, stored.Status())
}

func TestStartRide_RequiresRoutedTrip(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	dto, err := h.service.PlanTrip(ctx, uuid.New(), planRequest())
	require.NoError(t, err)

	_, err = h.service.StartRide(ctx, dto.ID)
	require.NoError(t, err)

	_, err = h.service.StartRide(ctx, dto.ID)
	require.Error(t, err)
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, shared.KindInvalidState, appErr.Kind)
}

func TestCancelTrip_ClearsActiveRoute(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	dto, err := h.service.PlanTrip(ctx, uuid.New(), planRequest())
	require.NoError(t, err)
	h.expectSent(t, bridge.TypeSetRoute)

	cancelled, err := h.service.CancelTrip(ctx, dto.ID, "driver unavailable")
	require.NoError(t, err)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Equal(t, "driver unavailable", cancelled.CancelNote)

	h.expectSent(t, bridge.TypeClearRoute)

	// A rideFinished arriving after cancellation must not resurrect the trip.
	h.service.HandleRideFinished(ctx)
	stored, err := h.repo.FindByID(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, trip.StatusCancelled, stored.Status())
}

func TestCancelTripByDispatch_TerminalTripIsNoOp(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()

	dto, err := h.service.PlanTrip(ctx, uuid.New(), planRequest())
	require.NoError(t, err)
	_, err = h.service.CancelTrip(ctx, dto.ID, "first cancel")
	require.NoError(t, err)

	// Replayed dispatch event: swallowed so the consumer does not retry.
	assert.NoError(t, h.service.CancelTripByDispatch(ctx, dto.ID, "replay"))

	// Unknown trip still errors.
	assert.Error(t, h.service.CancelTripByDispatch(ctx, uuid.New(), "whatever"))
}

func TestHandlePress(t *testing.T) {
	h := newServiceHarness(t)

	require.Nil(t, h.service.LastPress())

	h.service.HandlePress(24.8607, 67.0011)

	msg := h.expectSent(t, bridge.TypeSetOnlyPickup)
	pickup := msg.(*bridge.SetOnlyPickupMessage)
	assert.Equal(t, geo.Coordinate{Lat: 24.8607, Lng: 67.0011}, pickup.Start)

	press := h.service.LastPress()
	require.NotNil(t, press)
	assert.Equal(t, 24.8607, press.Lat)
}

func TestSuggest(t *testing.T) {
	h := newServiceHarness(t)

	suggestions, err := h.service.Suggest(context.Background(), "Saddar")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Saddar", suggestions[0].Title)

	h.resolver.resolveErr = assert.AnError
	_, err = h.service.Suggest(context.Background(), "Saddar")
	require.Error(t, err)
	appErr, ok := shared.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "geocoding_unavailable", appErr.Code)
}

func TestGetRiderTripsAndStats(t *testing.T) {
	h := newServiceHarness(t)
	ctx := context.Background()
	riderID := uuid.New()

	first, err := h.service.PlanTrip(ctx, riderID, planRequest())
	require.NoError(t, err)
	_, err = h.service.PlanTrip(ctx, uuid.New(), planRequest())
	require.NoError(t, err)
	_, err = h.service.CancelTrip(ctx, first.ID, "changed plans")
	require.NoError(t, err)

	page, err := h.service.GetRiderTrips(ctx, riderID, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first.ID, page.Items[0].ID)

	stats, err := h.service.GetTripStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTrips)
	assert.Equal(t, int64(1), stats.ByStatus["cancelled"])
	assert.Equal(t, int64(1), stats.ByStatus["routed"])
}
