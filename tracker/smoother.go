package tracker

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// Smoother filters the centroid of one colour class across ticks with a 2D Kalman filter.
// It is disabled by default; the control law runs on raw centroids unless a host enables it.
type Smoother struct {
	dt      float64
	filter  *kalman_filter.Kalman2D
	tracked bool
}

// NewSmoother creates a smoother for measurements taken every dt seconds
func NewSmoother(dt float64) *Smoother {
	if dt <= 0 {
		dt = 1.0
	}
	return &Smoother{dt: dt}
}

// Smooth feeds one position through the filter. A lost position resets the filter so the
// next sighting starts from its raw measurement rather than a stale prediction.
func (s *Smoother) Smooth(p Position) (Position, error) {
	if !p.Found {
		s.Reset()
		return p, nil
	}

	if !s.tracked {
		/* Kalman filter props */
		ux := 1.0
		uy := 1.0
		stdDevA := 2.0
		stdDevMx := 0.1
		stdDevMy := 0.1
		s.filter = kalman_filter.NewKalman2D(s.dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(p.X, p.Y))
		s.tracked = true
		return p, nil
	}

	s.filter.Predict()
	if err := s.filter.Update(p.X, p.Y); err != nil {
		s.Reset()
		return p, errors.Wrap(err, "Can't update position filter")
	}
	x, y := s.filter.GetState()

	// Frame coordinates are never negative
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return Position{Found: true, X: x, Y: y}, nil
}

// Reset forgets the filter state
func (s *Smoother) Reset() {
	s.filter = nil
	s.tracked = false
}
