package overlay

import (
	"fmt"
	"image/color"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

// Box and callout styling, in CSS pixels
const (
	BorderWidth     = 2
	BadgeSize       = 24
	BadgeOffset     = -10
	CalloutGap      = 10
	CalloutMaxWidth = 300

	ZIndexBox      = 10
	ZIndexSelected = 20
	ZIndexCallout  = 30

	tintAlpha = 77 // 0.3 * 255
)

// Palette is the fill tint and the solid border/badge colour of a severity
type Palette struct {
	Fill   color.NRGBA
	Border color.NRGBA
}

var (
	red    = color.NRGBA{239, 68, 68, 255}
	orange = color.NRGBA{245, 158, 11, 255}
	blue   = color.NRGBA{59, 130, 246, 255}
	gray   = color.NRGBA{107, 114, 128, 255}
)

// SeverityPalette returns the colours for s. Unknown levels fall back to gray.
func SeverityPalette(s types.Severity) Palette {
	var c color.NRGBA
	switch s {
	case types.SeverityHigh:
		c = red
	case types.SeverityMedium:
		c = orange
	case types.SeverityLow:
		c = blue
	default:
		c = gray
	}
	fill := c
	fill.A = tintAlpha
	return Palette{Fill: fill, Border: c}
}

// cssColor formats c as rgb()/rgba()
func cssColor(c color.NRGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("rgb(%d, %d, %d)", c.R, c.G, c.B)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %.1f)", c.R, c.G, c.B, float64(c.A)/255)
}
