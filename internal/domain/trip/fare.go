package trip

import "fmt"

// FareStrategy defines the interface for estimating trip fares.
type FareStrategy interface {
	// Estimate returns the estimated fare in paisa for the given parameters.
	Estimate(params FareParams) (int64, error)
}

// FareParams holds the inputs for fare estimation.
type FareParams struct {
	DistanceKm float64
}

// StandardFareStrategy implements the default Safar fare anchor used as the
// starting value for in-app fare negotiation.
type StandardFareStrategy struct{}

// NewStandardFareStrategy creates a new StandardFareStrategy.
func NewStandardFareStrategy() *StandardFareStrategy {
	return &StandardFareStrategy{}
}

// Estimate computes the estimated fare in paisa.
//
// Fare formula:
//   - Base fare: PKR 100.00 (10000 paisa)
//   - Distance: PKR 35.00/km (3500 paisa/km)
func (s *StandardFareStrategy) Estimate(params FareParams) (int64, error) {
	if params.DistanceKm < 0 {
		return 0, fmt.Errorf("distance cannot be negative")
	}

	var totalPaisa int64 = 10000
	totalPaisa += int64(params.DistanceKm * 3500)

	return totalPaisa, nil
}
