package imgproc

import (
	"iter"
	"math"

	"github.com/DaniruKun/dronetracker/tracker"
	"gocv.io/x/gocv"
)

// ExtractBlobs returns the outer contours of a binary mask as blobs.
// Contours are found lazily on the first iteration, so the mask must stay open until
// the sequence has been ranged over. The sequence cannot be restarted; a second range yields nothing.
// Zero-area contours (single pixels, one-pixel lines) are skipped.
func ExtractBlobs(mask gocv.Mat) iter.Seq[tracker.Blob] {
	consumed := false

	return func(yield func(tracker.Blob) bool) {
		if consumed || mask.Empty() {
			return
		}
		consumed = true

		// Two-level hierarchy: outer boundaries and the holes inside them
		hierarchy := gocv.NewMat()
		defer hierarchy.Close()

		contours := gocv.FindContoursWithParams(mask, &hierarchy, gocv.RetrievalCComp, gocv.ChainApproxSimple)
		defer contours.Close()

		maxX := float64(mask.Cols() - 1)
		maxY := float64(mask.Rows() - 1)

		for i := 0; i < contours.Size(); i++ {
			if !isOuter(&hierarchy, i) {
				continue
			}

			m := contourMoments(contours, i)
			m00 := m["m00"]
			if math.Abs(m00) < 1e-9 {
				continue
			}

			blob := tracker.Blob{
				Area: m00,
				Centroid: tracker.Point{
					X: clamp(m["m10"]/m00, 0, maxX),
					Y: clamp(m["m01"]/m00, 0, maxY),
				},
			}
			if !yield(blob) {
				return
			}
		}
	}
}

// isOuter reports whether contour i has no parent in the hierarchy
func isOuter(hierarchy *gocv.Mat, i int) bool {
	if hierarchy.Empty() || i >= hierarchy.Cols() {
		return true
	}
	// Each entry is [next, previous, first child, parent]
	return hierarchy.GetVeciAt(0, i)[3] < 0
}

// contourMoments returns the spatial moments of contour i. OpenCV normalises the
// orientation so m00 is never negative.
func contourMoments(contours gocv.PointsVector, i int) map[string]float64 {
	pts := gocv.NewMatFromPointVector(contours.At(i), true)
	defer pts.Close()
	return gocv.Moments(pts, false)
}

// clamp limits a value to a range
func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
