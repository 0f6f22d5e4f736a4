// Package layout produces layout measurements for an image shown inside a
// container, the way a browser would lay out an "object-contain" image.
package layout

import (
	"math"

	"github.com/menta2k/ux-analyzer/pkg/geometry"
)

// DefaultMaxHeightRatio mirrors a max-height of 80% of the viewport height
const DefaultMaxHeightRatio = 0.8

// Responsive lays out the image in a full-width container whose height
// follows the image. The image is never upscaled, is limited to the viewport
// width and maxHeight, keeps its aspect ratio and is centred horizontally.
func Responsive(natural geometry.Size, viewportWidth, maxHeight float64, origin geometry.Point) geometry.Measurement {
	if !natural.Valid() || viewportWidth <= 0 || maxHeight <= 0 {
		return geometry.Measurement{
			Container: geometry.Rect{X: origin.X, Y: origin.Y, Width: math.Max(viewportWidth, 0)},
			Image:     geometry.Rect{X: origin.X, Y: origin.Y},
		}
	}

	factor := math.Min(1, math.Min(viewportWidth/natural.Width, maxHeight/natural.Height))
	display := geometry.Size{
		Width:  natural.Width * factor,
		Height: natural.Height * factor,
	}

	container := geometry.Rect{
		X:      origin.X,
		Y:      origin.Y,
		Width:  viewportWidth,
		Height: display.Height,
	}
	img := geometry.Rect{
		X:      origin.X + (viewportWidth-display.Width)/2,
		Y:      origin.Y,
		Width:  display.Width,
		Height: display.Height,
	}

	return geometry.Measurement{Display: display, Image: img, Container: container}
}

// Contain fits the image into a fixed container, preserving aspect ratio and
// centring it on both axes. The image may be scaled up.
func Contain(natural, container geometry.Size, origin geometry.Point) geometry.Measurement {
	box := geometry.Rect{X: origin.X, Y: origin.Y, Width: container.Width, Height: container.Height}
	if !natural.Valid() || !container.Valid() {
		return geometry.Measurement{Container: box, Image: geometry.Rect{X: origin.X, Y: origin.Y}}
	}

	factor := math.Min(container.Width/natural.Width, container.Height/natural.Height)
	display := geometry.Size{
		Width:  natural.Width * factor,
		Height: natural.Height * factor,
	}

	img := geometry.Rect{
		X:      origin.X + (container.Width-display.Width)/2,
		Y:      origin.Y + (container.Height-display.Height)/2,
		Width:  display.Width,
		Height: display.Height,
	}

	return geometry.Measurement{Display: display, Image: img, Container: box}
}

// Stretch fills the container exactly, ignoring aspect ratio
func Stretch(container geometry.Size, origin geometry.Point) geometry.Measurement {
	box := geometry.Rect{X: origin.X, Y: origin.Y, Width: container.Width, Height: container.Height}
	return geometry.Measurement{Display: container, Image: box, Container: box}
}
