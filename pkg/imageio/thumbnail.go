package imageio

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/ux-analyzer/pkg/geometry"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

// CropRegion cuts the highlight region out of img. Coordinates are in the
// backend's original-image space; natural is that space's size. When the
// decoded asset has another size the coordinates are rescaled to it. padding
// is extra context around the region, in original pixels.
func CropRegion(img image.Image, c types.Coordinates, natural geometry.Size, padding float64) (image.Image, error) {
	asset := Bounds(img)
	if !natural.Valid() {
		natural = asset
	}
	t, err := geometry.ComputeTransform(natural, geometry.Measurement{Display: asset})
	if err != nil {
		return nil, err
	}

	padded := types.Coordinates{
		X:      c.X - padding,
		Y:      c.Y - padding,
		Width:  c.Width + 2*padding,
		Height: c.Height + 2*padding,
	}
	r := t.Apply(padded)

	b := img.Bounds()
	rect := image.Rect(
		b.Min.X+int(math.Floor(r.X)),
		b.Min.Y+int(math.Floor(r.Y)),
		b.Min.X+int(math.Ceil(r.X+r.Width)),
		b.Min.Y+int(math.Ceil(r.Y+r.Height)),
	).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("region %gx%g at %g,%g lies outside the image", c.Width, c.Height, c.X, c.Y)
	}
	return imaging.Crop(img, rect), nil
}

// Thumbnail crops the region and fits it into a maxSide x maxSide box
func Thumbnail(img image.Image, c types.Coordinates, natural geometry.Size, maxSide int) (image.Image, error) {
	cropped, err := CropRegion(img, c, natural, 8)
	if err != nil {
		return nil, err
	}
	if maxSide <= 0 {
		return cropped, nil
	}
	return imaging.Fit(cropped, maxSide, maxSide, imaging.Lanczos), nil
}
