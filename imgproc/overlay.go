package imgproc

import (
	"fmt"
	"image"
	"image/color"

	"github.com/DaniruKun/dronetracker/tracker"
	"gocv.io/x/gocv"
)

// Marker is one tracked position to draw on a preview frame
type Marker struct {
	Label    string
	Position tracker.Position
	Colour   color.RGBA
}

const markerRadius = 12

var statusColour = color.RGBA{255, 255, 0, 0}

// DrawMarkers circles and labels every found position. Lost classes are not drawn,
// which is how loss of tracking shows up on screen.
func DrawMarkers(img *gocv.Mat, markers []Marker) {
	for _, m := range markers {
		if !m.Position.Found {
			continue
		}
		center := image.Pt(int(m.Position.X), int(m.Position.Y))

		gocv.Circle(img, center, markerRadius, m.Colour, 2)
		gocv.Line(img, center.Add(image.Pt(-markerRadius, 0)), center.Add(image.Pt(markerRadius, 0)), m.Colour, 1)
		gocv.Line(img, center.Add(image.Pt(0, -markerRadius)), center.Add(image.Pt(0, markerRadius)), m.Colour, 1)

		label := fmt.Sprintf("%s %d,%d", m.Label, center.X, center.Y)
		gocv.PutText(img, label, center.Add(image.Pt(markerRadius+4, -markerRadius)), gocv.FontHersheyPlain, 1.2, m.Colour, 2)
	}
}

// DrawStatus writes a status line in the bottom left corner
func DrawStatus(img *gocv.Mat, text string) {
	if text == "" || img.Empty() {
		return
	}
	gocv.PutText(img, text, image.Pt(10, img.Rows()-10), gocv.FontHersheyPlain, 1.5, statusColour, 2)
}
