package imgproc

type Config struct {
	MorphIterations int // Erode passes followed by the same number of dilate passes
	KernelSize      int // Side of the square structuring element, in pixels
}

// DefaultConfig balances speckle removal against losing thin or far markers.
// Four passes cost frame rate for little gain.
func DefaultConfig() Config {
	return Config{
		MorphIterations: 2,
		KernelSize:      3,
	}
}
