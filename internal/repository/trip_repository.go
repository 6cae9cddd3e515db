package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/safar-hail/service-maps/internal/domain/geo"
	"github.com/safar-hail/service-maps/internal/domain/shared"
	"github.com/safar-hail/service-maps/internal/domain/trip"
)

// TripModel is the GORM model for the trips table.
type TripModel struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TripNumber        string          `gorm:"uniqueIndex;not null;size:20"`
	RiderID           uuid.UUID       `gorm:"type:uuid;index;not null"`
	Status            string          `gorm:"not null;size:30;index"`
	PickupText        string          `gorm:"not null;size:500"`
	DropoffText       string          `gorm:"not null;size:500"`
	Pickup            json.RawMessage `gorm:"type:jsonb;not null"`
	Dropoff           json.RawMessage `gorm:"type:jsonb;not null"`
	Geometry          json.RawMessage `gorm:"type:jsonb"`
	FareEstimatePaisa int64           `gorm:"not null"`
	Currency          string          `gorm:"not null;size:3;default:'PKR'"`
	StartedAt         *time.Time      `gorm:""`
	FinishedAt        *time.Time      `gorm:""`
	CancelledAt       *time.Time      `gorm:""`
	CancelNote        string          `gorm:"size:500"`
	Version           int64           `gorm:"not null;default:1"`
	CreatedAt         time.Time       `gorm:"not null"`
	UpdatedAt         time.Time       `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (TripModel) TableName() string {
	return "trips"
}

// GormTripRepository is the GORM-based implementation of TripRepository.
type GormTripRepository struct {
	db *gorm.DB
}

// NewGormTripRepository creates a new GormTripRepository.
func NewGormTripRepository(db *gorm.DB) *GormTripRepository {
	return &GormTripRepository{db: db}
}

// FindByID retrieves a trip by its unique identifier.
func (r *GormTripRepository) FindByID(ctx context.Context, id uuid.UUID) (*trip.Trip, error) {
	var model TripModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Trip", id.String())
		}
		return nil, fmt.Errorf("failed to find trip by ID: %w", err)
	}
	return toDomainTrip(&model)
}

// FindByNumber retrieves a trip by its trip number.
func (r *GormTripRepository) FindByNumber(ctx context.Context, number string) (*trip.Trip, error) {
	var model TripModel
	if err := r.db.WithContext(ctx).Where("trip_number = ?", number).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("Trip", number)
		}
		return nil, fmt.Errorf("failed to find trip by number: %w", err)
	}
	return toDomainTrip(&model)
}

// FindByRiderID retrieves trips for a specific rider with pagination.
func (r *GormTripRepository) FindByRiderID(ctx context.Context, riderID uuid.UUID, page, limit int) ([]*trip.Trip, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&TripModel{}).Where("rider_id = ?", riderID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rider trips: %w", err)
	}

	var models []TripModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Where("rider_id = ?", riderID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to find rider trips: %w", err)
	}

	trips := make([]*trip.Trip, len(models))
	for i, m := range models {
		tr, err := toDomainTrip(&m)
		if err != nil {
			return nil, 0, err
		}
		trips[i] = tr
	}

	return trips, total, nil
}

// ListAll retrieves all trips with pagination (admin).
func (r *GormTripRepository) ListAll(ctx context.Context, page, limit int) ([]*trip.Trip, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&TripModel{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trips: %w", err)
	}

	var models []TripModel
	offset := (page - 1) * limit
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list trips: %w", err)
	}

	trips := make([]*trip.Trip, len(models))
	for i, m := range models {
		tr, err := toDomainTrip(&m)
		if err != nil {
			return nil, 0, err
		}
		trips[i] = tr
	}

	return trips, total, nil
}

// CountByStatus returns trip counts grouped by status (admin).
func (r *GormTripRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&TripModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

// Save persists a new trip.
func (r *GormTripRepository) Save(ctx context.Context, tr *trip.Trip) error {
	model, err := toTripModel(tr)
	if err != nil {
		return fmt.Errorf("failed to convert trip to model: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save trip: %w", err)
	}
	return nil
}

// Update persists changes to an existing trip with optimistic locking.
func (r *GormTripRepository) Update(ctx context.Context, tr *trip.Trip) error {
	model, err := toTripModel(tr)
	if err != nil {
		return fmt.Errorf("failed to convert trip to model: %w", err)
	}

	// Optimistic locking: only update if the version matches (current version - 1 since IncrementVersion was called)
	expectedVersion := tr.Version() - 1
	result := r.db.WithContext(ctx).
		Model(&TripModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":              model.Status,
			"pickup":              model.Pickup,
			"dropoff":             model.Dropoff,
			"geometry":            model.Geometry,
			"fare_estimate_paisa": model.FareEstimatePaisa,
			"currency":            model.Currency,
			"started_at":          model.StartedAt,
			"finished_at":         model.FinishedAt,
			"cancelled_at":        model.CancelledAt,
			"cancel_note":         model.CancelNote,
			"version":             model.Version,
			"updated_at":          model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update trip: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return shared.NewConflictError("trip was modified by another transaction")
	}

	return nil
}

// --- Conversion Helpers ---

func toTripModel(tr *trip.Trip) (*TripModel, error) {
	pickupJSON, err := json.Marshal(tr.Pickup())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pickup: %w", err)
	}

	dropoffJSON, err := json.Marshal(tr.Dropoff())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal dropoff: %w", err)
	}

	var geometryJSON json.RawMessage
	if len(tr.Geometry()) > 0 {
		data, err := json.Marshal(tr.Geometry())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal geometry: %w", err)
		}
		geometryJSON = data
	}

	return &TripModel{
		ID:                tr.ID(),
		TripNumber:        tr.TripNumber(),
		RiderID:           tr.RiderID(),
		Status:            string(tr.Status()),
		PickupText:        tr.PickupText(),
		DropoffText:       tr.DropoffText(),
		Pickup:            pickupJSON,
		Dropoff:           dropoffJSON,
		Geometry:          geometryJSON,
		FareEstimatePaisa: tr.FareEstimatePaisa(),
		Currency:          tr.Currency(),
		StartedAt:         tr.StartedAt(),
		FinishedAt:        tr.FinishedAt(),
		CancelledAt:       tr.CancelledAt(),
		CancelNote:        tr.CancelNote(),
		Version:           tr.Version(),
		CreatedAt:         tr.CreatedAt(),
		UpdatedAt:         tr.UpdatedAt(),
	}, nil
}

func toDomainTrip(m *TripModel) (*trip.Trip, error) {
	var pickup geo.Coordinate
	if err := json.Unmarshal(m.Pickup, &pickup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pickup: %w", err)
	}

	var dropoff geo.Coordinate
	if err := json.Unmarshal(m.Dropoff, &dropoff); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dropoff: %w", err)
	}

	var geometry geo.RouteGeometry
	if len(m.Geometry) > 0 {
		if err := json.Unmarshal(m.Geometry, &geometry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal geometry: %w", err)
		}
	}

	status, err := trip.ParseTripStatus(m.Status)
	if err != nil {
		return nil, err
	}

	return trip.ReconstructTrip(
		m.ID,
		m.TripNumber,
		m.RiderID,
		status,
		m.PickupText,
		m.DropoffText,
		pickup,
		dropoff,
		geometry,
		m.FareEstimatePaisa,
		m.Currency,
		m.StartedAt,
		m.FinishedAt,
		m.CancelledAt,
		m.CancelNote,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}
