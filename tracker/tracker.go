// Package tracker selects the single best blob per colour class and reduces it to a position.
package tracker

import "iter"

// Point is a pixel coordinate in frame space
type Point struct {
	X float64
	Y float64
}

// Blob is one connected region of a mask, described by its image moments
type Blob struct {
	Area     float64 // Zeroth moment
	Centroid Point   // First moments divided by Area
}

// Position is the best blob chosen for one colour class on one tick.
// X and Y are only meaningful when Found is true.
type Position struct {
	Found bool    `json:"found"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Point returns the position as a Point
func (p Position) Point() Point {
	return Point{X: p.X, Y: p.Y}
}

// NotFound is the position reported when no blob qualified
var NotFound = Position{}

// AreaPolicy bounds the blob areas that may be selected.
// A zero bound is disabled.
type AreaPolicy struct {
	MinArea float64 `json:"min_area"` // Rejects noise specks
	MaxArea float64 `json:"max_area"` // Rejects whole-frame mattes
}

// Eligible reports whether a blob of the given area may become the best candidate
func (p AreaPolicy) Eligible(area float64) bool {
	if area <= 0 {
		return false
	}
	if p.MinArea > 0 && area < p.MinArea {
		return false
	}
	if p.MaxArea > 0 && area > p.MaxArea {
		return false
	}
	return true
}

// Track walks every blob once and returns the centroid of the first blob with strictly
// maximal area among the eligible ones. Equal-area blobs seen later never replace an earlier best.
func Track(blobs iter.Seq[Blob], policy AreaPolicy) Position {
	bestArea := 0.0
	best := NotFound

	for blob := range blobs {
		if !policy.Eligible(blob.Area) {
			continue
		}
		if blob.Area > bestArea {
			bestArea = blob.Area
			best = Position{Found: true, X: blob.Centroid.X, Y: blob.Centroid.Y}
		}
	}

	return best
}

// Slice adapts a blob slice to the sequence form Track consumes
func Slice(blobs []Blob) iter.Seq[Blob] {
	return func(yield func(Blob) bool) {
		for _, b := range blobs {
			if !yield(b) {
				return
			}
		}
	}
}
