// Package geometry maps highlight coordinates from the original image space
// into the space of the rendered image inside its container.
//
// The rendered position of a region is always
//
//	x' = x*ScaleX + OffsetX    y' = y*ScaleY + OffsetY
//	w' = w*ScaleX              h' = h*ScaleY
//
// where the scale is the ratio of displayed to natural size and the offset is
// the gap between the container's top-left corner and the image's top-left
// corner (letterboxing).
package geometry

import (
	"errors"
	"fmt"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

// ErrDegenerateDimensions is returned when a natural or displayed size has a
// non-positive side and no scale can be derived from it.
var ErrDegenerateDimensions = errors.New("degenerate image dimensions")

// Point is a position in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both sides are positive
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Rect is an axis-aligned box given by its top-left corner and size
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// TopLeft returns the rectangle origin
func (r Rect) TopLeft() Point {
	return Point{X: r.X, Y: r.Y}
}

// Size returns the rectangle dimensions
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Bottom returns the y coordinate of the lower edge
func (r Rect) Bottom() float64 {
	return r.Y + r.Height
}

// Measurement is one snapshot of the rendered layout: the displayed image
// size plus the bounding boxes of the image and its container, all in the
// same (page) coordinate space.
type Measurement struct {
	Display   Size `json:"display"`
	Image     Rect `json:"image"`
	Container Rect `json:"container"`
}

// ScaleTransform is the displayed-to-natural ratio per axis
type ScaleTransform struct {
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
}

// DisplayOffset is the image top-left relative to the container top-left
type DisplayOffset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform combines scale and offset
type Transform struct {
	Scale  ScaleTransform `json:"scale"`
	Offset DisplayOffset  `json:"offset"`
}

// Identity is the transform used before the first measurement
var Identity = Transform{Scale: ScaleTransform{ScaleX: 1, ScaleY: 1}}

// ResolveNatural picks the intrinsic image size. Dimensions reported by the
// backend win; the decoded asset's dimensions are the fallback. Each axis is
// resolved on its own so a missing height does not discard a known width.
func ResolveNatural(originalWidth, originalHeight int, asset Size) Size {
	natural := asset
	if originalWidth > 0 {
		natural.Width = float64(originalWidth)
	}
	if originalHeight > 0 {
		natural.Height = float64(originalHeight)
	}
	return natural
}

// ComputeScale returns display/natural per axis. The axes are independent so
// a stretched image yields a non-uniform scale.
func ComputeScale(natural, display Size) (ScaleTransform, error) {
	if !natural.Valid() {
		return ScaleTransform{}, fmt.Errorf("natural size %gx%g: %w", natural.Width, natural.Height, ErrDegenerateDimensions)
	}
	if !display.Valid() {
		return ScaleTransform{}, fmt.Errorf("display size %gx%g: %w", display.Width, display.Height, ErrDegenerateDimensions)
	}
	return ScaleTransform{
		ScaleX: display.Width / natural.Width,
		ScaleY: display.Height / natural.Height,
	}, nil
}

// ComputeOffset returns imageBox.topLeft - containerBox.topLeft
func ComputeOffset(imageBox, containerBox Rect) DisplayOffset {
	return DisplayOffset{
		X: imageBox.X - containerBox.X,
		Y: imageBox.Y - containerBox.Y,
	}
}

// ComputeTransform derives the full transform for one layout measurement
func ComputeTransform(natural Size, m Measurement) (Transform, error) {
	scale, err := ComputeScale(natural, m.Display)
	if err != nil {
		return Transform{}, err
	}
	return Transform{
		Scale:  scale,
		Offset: ComputeOffset(m.Image, m.Container),
	}, nil
}

// Apply maps original-image coordinates into container space.
// Coordinates outside the original image are mapped as-is, without clamping.
func (t Transform) Apply(c types.Coordinates) Rect {
	return Rect{
		X:      c.X*t.Scale.ScaleX + t.Offset.X,
		Y:      c.Y*t.Scale.ScaleY + t.Offset.Y,
		Width:  c.Width * t.Scale.ScaleX,
		Height: c.Height * t.Scale.ScaleY,
	}
}

// Contains reports whether inner lies inside r (edges inclusive)
func (r Rect) Contains(inner Rect) bool {
	return inner.X >= r.X && inner.Y >= r.Y &&
		inner.X+inner.Width <= r.X+r.Width &&
		inner.Y+inner.Height <= r.Y+r.Height
}
