package imgproc

import (
	"image"

	"gocv.io/x/gocv"
)

// Segmenter thresholds frames into binary masks for one calibration range at a time.
// It keeps its structuring element between calls and must be closed.
type Segmenter struct {
	config Config
	kernel gocv.Mat
}

// NewSegmenter creates a Segmenter. Non-positive settings fall back to DefaultConfig values.
func NewSegmenter(config Config) *Segmenter {
	defaults := DefaultConfig()
	if config.MorphIterations < 0 {
		config.MorphIterations = defaults.MorphIterations
	}
	if config.KernelSize < 1 {
		config.KernelSize = defaults.KernelSize
	}

	return &Segmenter{
		config: config,
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(config.KernelSize, config.KernelSize)),
	}
}

// Config returns the settings in use
func (s *Segmenter) Config() Config {
	return s.config
}

// Close releases the structuring element
func (s *Segmenter) Close() error {
	return s.kernel.Close()
}

// ToHSV converts a BGR (or BGRA) frame to full-range HSV. The caller owns the result.
func (s *Segmenter) ToHSV(frame gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	if frame.Empty() {
		return hsv
	}

	if frame.Channels() == 4 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(frame, &bgr, gocv.ColorBGRAToBGR)
		gocv.CvtColor(bgr, &hsv, gocv.ColorBGRToHSVFull)
		return hsv
	}

	gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSVFull)
	return hsv
}

// Threshold builds the mask of pixels inside r from an HSV image, then removes speckle noise.
// A degenerate range yields an all-zero mask. The caller owns the result.
func (s *Segmenter) Threshold(hsv gocv.Mat, r HSVRange) gocv.Mat {
	if hsv.Empty() {
		return gocv.NewMat()
	}

	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8UC1)
	if r.Degenerate() {
		return mask
	}

	lower, upper := bounds(r)
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	s.suppressNoise(&mask)
	return mask
}

// Segment converts the frame and thresholds it in one call
func (s *Segmenter) Segment(frame gocv.Mat, r HSVRange) gocv.Mat {
	hsv := s.ToHSV(frame)
	defer hsv.Close()

	return s.Threshold(hsv, r)
}

// suppressNoise erodes away specks, then dilates the survivors back to size
func (s *Segmenter) suppressNoise(mask *gocv.Mat) {
	for i := 0; i < s.config.MorphIterations; i++ {
		gocv.Erode(*mask, mask, s.kernel)
	}
	for i := 0; i < s.config.MorphIterations; i++ {
		gocv.Dilate(*mask, mask, s.kernel)
	}
}

func bounds(r HSVRange) (lower, upper gocv.Scalar) {
	c := r.Clamp()
	lower = gocv.NewScalar(float64(c.HueMin), float64(c.SatMin), float64(c.ValMin), 0)
	upper = gocv.NewScalar(float64(c.HueMax), float64(c.SatMax), float64(c.ValMax), 0)
	return lower, upper
}
