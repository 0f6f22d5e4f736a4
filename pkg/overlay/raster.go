package overlay

import (
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	canvasColor   = color.NRGBA{243, 244, 246, 255}
	calloutBorder = color.NRGBA{229, 231, 235, 255}
	textDark      = color.NRGBA{17, 24, 39, 255}
	textMuted     = color.NRGBA{107, 114, 128, 255}
	white         = color.NRGBA{255, 255, 255, 255}
)

const calloutPadding = 12

var (
	fontOnce sync.Once
	regular  *opentype.Font
)

// newFace returns a fresh face of the given size. Faces keep glyph caches
// and must not be shared between goroutines.
func newFace(size float64) font.Face {
	fontOnce.Do(func() {
		f, err := opentype.Parse(goregular.TTF)
		if err == nil {
			regular = f
		}
	})
	if regular == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(regular, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// RenderImage draws f on top of base and returns the annotated image, sized
// like the frame's container. When the frame has no layout yet the base image
// is returned as a copy.
func RenderImage(base image.Image, f Frame) *image.NRGBA {
	cw := int(math.Round(f.Container.Width))
	ch := int(math.Round(f.Container.Height))
	if cw <= 0 || ch <= 0 {
		return imaging.Clone(base)
	}

	dst := imaging.New(cw, ch, canvasColor)

	iw := int(math.Round(f.Image.Width))
	ih := int(math.Round(f.Image.Height))
	if iw > 0 && ih > 0 {
		scaled := imaging.Resize(base, iw, ih, imaging.Lanczos)
		at := image.Pt(int(math.Round(f.Image.X)), int(math.Round(f.Image.Y)))
		draw.Draw(dst, scaled.Bounds().Add(at), scaled, image.Point{}, draw.Over)
	}

	if !f.HasOverlay || !f.Ready {
		return dst
	}

	badgeFace := newFace(11)
	defer badgeFace.Close()

	for _, b := range f.Boxes {
		drawRegion(dst, b, badgeFace)
	}
	if f.Callout != nil {
		drawCallout(dst, *f.Callout)
	}
	return dst
}

func drawRegion(dst *image.NRGBA, b Box, face font.Face) {
	x0 := int(math.Round(b.Rect.X))
	y0 := int(math.Round(b.Rect.Y))
	x1 := int(math.Round(b.Rect.X + b.Rect.Width))
	y1 := int(math.Round(b.Rect.Y + b.Rect.Height))
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}

	r := image.Rect(x0, y0, x1, y1)
	draw.Draw(dst, r, image.NewUniform(b.Fill), image.Point{}, draw.Over)

	stroke := BorderWidth
	if b.Selected {
		stroke++
	}
	for s := 0; s < stroke; s++ {
		drawHLine(dst, y0+s, x0, x1, b.Border)
		drawHLine(dst, y1-1-s, x0, x1, b.Border)
		drawVLine(dst, x0+s, y0, y1, b.Border)
		drawVLine(dst, x1-1-s, y0, y1, b.Border)
	}

	// badge sits on the top-left corner, offset outwards
	cx := x0 + BadgeOffset + BadgeSize/2
	cy := y0 + BadgeOffset + BadgeSize/2
	fillCircle(dst, cx, cy, BadgeSize/2, b.Border)

	adv := font.MeasureString(face, b.Badge).Ceil()
	m := face.Metrics()
	baseline := cy + (m.Ascent.Ceil()-m.Descent.Ceil())/2
	drawText(dst, face, b.Badge, cx-adv/2, baseline, white)
}

func drawCallout(dst *image.NRGBA, c Callout) {
	titleFace := newFace(14)
	defer titleFace.Close()
	bodyFace := newFace(12)
	defer bodyFace.Close()

	inner := int(c.MaxWidth) - 2*calloutPadding
	title := wrapText(titleFace, c.Element, inner)
	body := wrapText(bodyFace, c.Issue, inner)
	pill := " " + c.SeverityLabel + " "

	titleH := lineHeight(titleFace)
	bodyH := lineHeight(bodyFace)

	width := 0
	for _, l := range title {
		width = max(width, font.MeasureString(titleFace, l).Ceil())
	}
	for _, l := range body {
		width = max(width, font.MeasureString(bodyFace, l).Ceil())
	}
	width = max(width, font.MeasureString(bodyFace, pill).Ceil())
	width = min(width+2*calloutPadding, int(c.MaxWidth))
	height := 2*calloutPadding + len(title)*titleH + bodyH + 8 + len(body)*bodyH

	x0 := int(math.Round(c.Anchor.X))
	y0 := int(math.Round(c.Anchor.Y))
	r := image.Rect(x0, y0, x0+width, y0+height)
	draw.Draw(dst, r, image.NewUniform(white), image.Point{}, draw.Src)
	drawHLine(dst, r.Min.Y, r.Min.X, r.Max.X, calloutBorder)
	drawHLine(dst, r.Max.Y-1, r.Min.X, r.Max.X, calloutBorder)
	drawVLine(dst, r.Min.X, r.Min.Y, r.Max.Y, calloutBorder)
	drawVLine(dst, r.Max.X-1, r.Min.Y, r.Max.Y, calloutBorder)

	x := x0 + calloutPadding
	y := y0 + calloutPadding
	for _, l := range title {
		y += titleH
		drawText(dst, titleFace, l, x, y-titleFace.Metrics().Descent.Ceil(), textDark)
	}

	y += 4
	pw := font.MeasureString(bodyFace, pill).Ceil()
	draw.Draw(dst, image.Rect(x, y, x+pw, y+bodyH), image.NewUniform(c.Badge), image.Point{}, draw.Src)
	drawText(dst, bodyFace, pill, x, y+bodyH-bodyFace.Metrics().Descent.Ceil(), white)
	y += bodyH + 4

	for _, l := range body {
		y += bodyH
		drawText(dst, bodyFace, l, x, y-bodyFace.Metrics().Descent.Ceil(), textMuted)
	}
}

func drawText(dst *image.NRGBA, face font.Face, s string, x, y int, c color.NRGBA) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func lineHeight(face font.Face) int {
	m := face.Metrics()
	if h := m.Height.Ceil(); h > 0 {
		return h
	}
	return m.Ascent.Ceil() + m.Descent.Ceil()
}

// wrapText breaks s into lines no wider than width. A single word wider than
// width gets a line of its own.
func wrapText(face font.Face, s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if font.MeasureString(face, candidate).Ceil() > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line = candidate
	}
	return append(lines, line)
}

func fillCircle(img *image.NRGBA, cx, cy, radius int, c color.NRGBA) {
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		span := int(math.Sqrt(float64(r2 - dy*dy)))
		drawHLine(img, cy+dy, cx-span, cx+span+1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
