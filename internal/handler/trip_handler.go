package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/safar-hail/service-maps/internal/application"
	"github.com/safar-hail/service-maps/internal/response"
)

// HeaderRiderID identifies the rider on behalf of the API gateway, which
// terminates authentication upstream of this service.
const HeaderRiderID = "X-Rider-ID"

// TripHandler handles HTTP requests for trip operations.
type TripHandler struct {
	service *application.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(service *application.TripService) *TripHandler {
	return &TripHandler{service: service}
}

// RegisterRoutes registers all trip routes on the given router group.
func (h *TripHandler) RegisterRoutes(r *gin.RouterGroup) {
	trips := r.Group("/api/v1/trips")
	{
		trips.POST("", h.PlanTrip)
		trips.GET("", h.ListTrips)
		trips.GET("/:id", h.GetTrip)
		trips.POST("/:id/start", h.StartRide)
		trips.POST("/:id/cancel", h.CancelTrip)
	}

	geocode := r.Group("/api/v1/geocode")
	{
		geocode.GET("/suggest", h.Suggest)
	}

	mapGroup := r.Group("/api/v1/map")
	{
		mapGroup.GET("/pickup-press", h.PickupPress)
	}
}

// PlanTrip handles POST /api/v1/trips.
func (h *TripHandler) PlanTrip(c *gin.Context) {
	riderID, ok := riderIDFrom(c)
	if !ok {
		return
	}

	var req application.PlanTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.PlanTrip(c.Request.Context(), riderID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListTrips handles GET /api/v1/trips. Returns the calling rider's trips.
func (h *TripHandler) ListTrips(c *gin.Context) {
	riderID, ok := riderIDFrom(c)
	if !ok {
		return
	}

	page, limit := parsePagination(c)

	result, err := h.service.GetRiderTrips(c.Request.Context(), riderID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetTrip handles GET /api/v1/trips/:id.
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid trip ID")
		return
	}

	result, err := h.service.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// StartRide handles POST /api/v1/trips/:id/start.
func (h *TripHandler) StartRide(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid trip ID")
		return
	}

	result, err := h.service.StartRide(c.Request.Context(), tripID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CancelTrip handles POST /api/v1/trips/:id/cancel.
func (h *TripHandler) CancelTrip(c *gin.Context) {
	tripID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid trip ID")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CancelTrip(c.Request.Context(), tripID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Suggest handles GET /api/v1/geocode/suggest?q=...
func (h *TripHandler) Suggest(c *gin.Context) {
	query := c.Query("q")

	suggestions, err := h.service.Suggest(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, suggestions)
}

// PickupPress handles GET /api/v1/map/pickup-press. Returns the location of
// the rider's most recent tap on the map, or 404 if none yet.
func (h *TripHandler) PickupPress(c *gin.Context) {
	press := h.service.LastPress()
	if press == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pickup selected"})
		return
	}

	response.Success(c, press)
}

func riderIDFrom(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(HeaderRiderID)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing rider identity"})
		return uuid.Nil, false
	}

	riderID, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(c, "invalid rider ID")
		return uuid.Nil, false
	}
	return riderID, true
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}
