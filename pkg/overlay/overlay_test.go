package overlay

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"image"
	"image/color"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/menta2k/ux-analyzer/pkg/geometry"
	"github.com/menta2k/ux-analyzer/pkg/layout"
	"github.com/menta2k/ux-analyzer/pkg/locale"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

func sampleHighlights() []types.HighlightRegion {
	return []types.HighlightRegion{
		{ID: 1, Element: "Sign up button", Issue: "Low contrast against the header", Severity: types.SeverityHigh,
			Coordinates: types.Coordinates{X: 100, Y: 200, Width: 400, Height: 100}},
		{ID: 2, Element: "Footer links", Issue: "Tap targets are too small", Severity: types.SeverityLow,
			Coordinates: types.Coordinates{X: 120, Y: 220, Width: 200, Height: 60}},
		{ID: 3, Element: "Hero image", Issue: "Pushes the call to action below the fold", Severity: types.SeverityMedium,
			Coordinates: types.Coordinates{X: 1000, Y: 0, Width: 800, Height: 500}},
	}
}

// readyView is a 2000x1000 screenshot shown at half size
func readyView(t *testing.T, opts ...Option) *View {
	t.Helper()
	v := New("http://localhost:8080/uploads/a.png", sampleHighlights(), 2000, 1000, opts...)
	if err := v.ImageLoaded(geometry.Size{Width: 2000, Height: 1000}); err != nil {
		t.Fatalf("ImageLoaded failed: %v", err)
	}
	m := layout.Responsive(geometry.Size{Width: 2000, Height: 1000}, 1000, 800, geometry.Point{X: 16, Y: 64})
	if err := v.LayoutReady(m); err != nil {
		t.Fatalf("LayoutReady failed: %v", err)
	}
	return v
}

func findBox(t *testing.T, f Frame, id int) Box {
	t.Helper()
	for _, b := range f.Boxes {
		if b.Region.ID == id {
			return b
		}
	}
	t.Fatalf("box %d not found", id)
	return Box{}
}

func TestNotReadyUntilLoadedAndMeasured(t *testing.T) {
	v := New("a.png", sampleHighlights(), 2000, 1000)

	f := v.Frame()
	if f.Ready || len(f.Boxes) != 0 {
		t.Fatalf("Expected no boxes before load, got %d", len(f.Boxes))
	}
	if !f.HasOverlay || len(f.Issues.Entries) != 3 {
		t.Errorf("Expected issue list to be available before layout")
	}

	if err := v.ImageLoaded(geometry.Size{Width: 2000, Height: 1000}); err != nil {
		t.Fatal(err)
	}
	if _, ok := v.Transform(); ok {
		t.Errorf("Expected transform to wait for a layout measurement")
	}
}

func TestPlacementFollowsTransform(t *testing.T) {
	v := readyView(t)

	b := findBox(t, v.Frame(), 1)
	want := geometry.Rect{X: 50, Y: 100, Width: 200, Height: 50}
	if b.Rect != want {
		t.Errorf("Expected %+v, got %+v", want, b.Rect)
	}
}

func TestResizeRecomputesPlacement(t *testing.T) {
	v := readyView(t)

	widths := []float64{500, 1000, 333, 2000}
	for _, w := range widths {
		m := layout.Responsive(geometry.Size{Width: 2000, Height: 1000}, w, 800, geometry.Point{})
		if err := v.Resize(m); err != nil {
			t.Fatalf("Resize(%v) failed: %v", w, err)
		}

		tr, ok := v.Transform()
		if !ok {
			t.Fatalf("Expected ready transform at width %v", w)
		}
		for _, b := range v.Frame().Boxes {
			c := b.Region.Coordinates
			wantX := c.X*tr.Scale.ScaleX + tr.Offset.X
			wantY := c.Y*tr.Scale.ScaleY + tr.Offset.Y
			if b.Rect.X != wantX || b.Rect.Y != wantY {
				t.Errorf("width %v box %d: expected (%v, %v), got (%v, %v)", w, b.Region.ID, wantX, wantY, b.Rect.X, b.Rect.Y)
			}
			if b.Rect.Width != c.Width*tr.Scale.ScaleX || b.Rect.Height != c.Height*tr.Scale.ScaleY {
				t.Errorf("width %v box %d: size not scaled", w, b.Region.ID)
			}
		}
	}
}

func TestResizeIsIdempotent(t *testing.T) {
	v := readyView(t)
	m := layout.Contain(geometry.Size{Width: 2000, Height: 1000}, geometry.Size{Width: 800, Height: 800}, geometry.Point{})

	if err := v.Resize(m); err != nil {
		t.Fatal(err)
	}
	first := v.Frame()
	for i := 0; i < 3; i++ {
		if err := v.Resize(m); err != nil {
			t.Fatal(err)
		}
	}
	second := v.Frame()

	if first.Transform != second.Transform {
		t.Errorf("Expected same transform, got %+v and %+v", first.Transform, second.Transform)
	}
	// letterboxed vertically: 800x400 image inside 800x800
	if first.Transform.Offset.Y != 200 {
		t.Errorf("Expected vertical offset 200, got %v", first.Transform.Offset.Y)
	}
}

func TestDegenerateSizeDrawsNothing(t *testing.T) {
	v := New("a.png", sampleHighlights(), 0, 0)

	err := v.ImageLoaded(geometry.Size{})
	if err != nil {
		t.Fatalf("Expected no error before layout, got %v", err)
	}
	err = v.LayoutReady(layout.Stretch(geometry.Size{Width: 800, Height: 600}, geometry.Point{}))
	if !errors.Is(err, geometry.ErrDegenerateDimensions) {
		t.Fatalf("Expected ErrDegenerateDimensions, got %v", err)
	}

	f := v.Frame()
	if f.Ready || len(f.Boxes) != 0 {
		t.Errorf("Expected no boxes for degenerate size, got %d", len(f.Boxes))
	}

	// zero display size after a valid one also hides the boxes
	v = readyView(t)
	if err := v.Resize(geometry.Measurement{}); err == nil {
		t.Fatal("Expected error for zero display size")
	}
	if len(v.Frame().Boxes) != 0 {
		t.Errorf("Expected boxes to be hidden")
	}
}

func TestAssetSizeFallback(t *testing.T) {
	v := New("a.png", sampleHighlights(), 0, 0)
	if err := v.ImageLoaded(geometry.Size{Width: 2000, Height: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := v.LayoutReady(layout.Stretch(geometry.Size{Width: 1000, Height: 500}, geometry.Point{})); err != nil {
		t.Fatal(err)
	}

	tr, ok := v.Transform()
	if !ok || tr.Scale.ScaleX != 0.5 || tr.Scale.ScaleY != 0.5 {
		t.Errorf("Expected 0.5 scale from asset size, got %+v", tr.Scale)
	}
}

func TestToggleIsExclusive(t *testing.T) {
	v := readyView(t)

	if !v.Toggle(1) {
		t.Fatal("Expected 1 to be selected")
	}
	if !v.Toggle(2) {
		t.Fatal("Expected 2 to be selected")
	}

	f := v.Frame()
	selected := 0
	for _, b := range f.Boxes {
		if b.Selected {
			selected++
		}
	}
	if selected != 1 {
		t.Fatalf("Expected exactly one selected box, got %d", selected)
	}
	if h, ok := v.Selected(); !ok || h.ID != 2 {
		t.Errorf("Expected 2 selected, got %+v", h)
	}

	if v.Toggle(2) {
		t.Error("Expected second click to deselect")
	}
	if _, ok := v.Selected(); ok {
		t.Error("Expected no selection")
	}
	if v.Frame().Callout != nil {
		t.Error("Expected no callout without selection")
	}
}

func TestToggleUnknownID(t *testing.T) {
	v := readyView(t)
	v.Select(1)

	if v.Toggle(99) {
		t.Error("Expected unknown id not to be selected")
	}
	if h, ok := v.Selected(); !ok || h.ID != 1 {
		t.Errorf("Expected selection to stay on 1")
	}
}

func TestSetHighlightsResetsSelection(t *testing.T) {
	v := readyView(t)
	v.Select(3)

	if err := v.SetHighlights(sampleHighlights()[:1], 2000, 1000); err != nil {
		t.Fatal(err)
	}
	if _, ok := v.Selected(); ok {
		t.Error("Expected selection to be cleared")
	}
	if n := len(v.Frame().Boxes); n != 1 {
		t.Errorf("Expected 1 box, got %d", n)
	}
}

func TestSelectedPaintsOnTop(t *testing.T) {
	v := readyView(t)
	v.Select(1)

	f := v.Frame()
	last := f.Boxes[len(f.Boxes)-1]
	if last.Region.ID != 1 || last.ZIndex != ZIndexSelected {
		t.Errorf("Expected selected box last with z-index %d, got %d/%d", ZIndexSelected, last.Region.ID, last.ZIndex)
	}
	for _, b := range f.Boxes[:len(f.Boxes)-1] {
		if b.ZIndex != ZIndexBox {
			t.Errorf("Expected z-index %d for box %d, got %d", ZIndexBox, b.Region.ID, b.ZIndex)
		}
	}

	c := f.Callout
	if c == nil {
		t.Fatal("Expected callout")
	}
	if c.ZIndex <= last.ZIndex || c.PointerEvents {
		t.Errorf("Expected callout above boxes and transparent to clicks, got %+v", c)
	}
	if c.Anchor.X != last.Rect.X || c.Anchor.Y != last.Rect.Bottom()+CalloutGap {
		t.Errorf("Expected callout below the box, got %+v", c.Anchor)
	}
	if c.SeverityLabel != "High" {
		t.Errorf("Expected High label, got %q", c.SeverityLabel)
	}
}

func TestClickHitsTopmost(t *testing.T) {
	v := readyView(t)

	// boxes 1 (50,100 200x50) and 2 (60,110 100x30) overlap; 2 paints later
	id, selected, hit := v.Click(geometry.Point{X: 70, Y: 120})
	if !hit || id != 2 || !selected {
		t.Fatalf("Expected click on 2, got id=%d selected=%v hit=%v", id, selected, hit)
	}

	// 1 now sits below the selected 2, but its free area still hits it
	id, _, _ = v.Click(geometry.Point{X: 240, Y: 140})
	if id != 1 {
		t.Errorf("Expected click on 1, got %d", id)
	}

	if _, _, hit := v.Click(geometry.Point{X: 5, Y: 480}); hit {
		t.Error("Expected miss on empty area")
	}
}

func TestOutOfBoundsNotClamped(t *testing.T) {
	hs := []types.HighlightRegion{{ID: 1, Severity: types.SeverityLow,
		Coordinates: types.Coordinates{X: 1900, Y: 900, Width: 400, Height: 400}}}
	v := New("a.png", hs, 2000, 1000)
	v.ImageLoaded(geometry.Size{Width: 2000, Height: 1000})
	v.LayoutReady(layout.Stretch(geometry.Size{Width: 1000, Height: 500}, geometry.Point{}))

	b := v.Frame().Boxes[0]
	if !b.OutOfBounds {
		t.Error("Expected box to be flagged out of bounds")
	}
	if b.Rect.Width != 200 || b.Rect.X != 950 {
		t.Errorf("Expected unclamped rect, got %+v", b.Rect)
	}
}

func TestWatchAppliesMeasurements(t *testing.T) {
	v := readyView(t)
	events := make(chan geometry.Measurement)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		v.Watch(ctx, events)
		close(done)
	}()

	events <- layout.Stretch(geometry.Size{Width: 500, Height: 250}, geometry.Point{})
	events <- layout.Stretch(geometry.Size{Width: 4000, Height: 2000}, geometry.Point{})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	tr, _ := v.Transform()
	if tr.Scale.ScaleX != 2 {
		t.Errorf("Expected scale 2 after the last resize, got %v", tr.Scale.ScaleX)
	}
}

func TestWatchWithoutHighlights(t *testing.T) {
	v := New("a.png", nil, 100, 100)

	done := make(chan struct{})
	go func() {
		// nil channel would block forever if read
		v.Watch(context.Background(), nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch should return at once without highlights")
	}
}

func TestScaleLogging(t *testing.T) {
	var buf bytes.Buffer
	readyView(t, WithLogger(log.New(&buf, "", 0)))

	if !strings.Contains(buf.String(), "scale=0.5000,0.5000") {
		t.Errorf("Expected scale in log, got %q", buf.String())
	}
}

func TestRenderHTMLWithoutHighlights(t *testing.T) {
	v := New("http://localhost:8080/uploads/a.png", nil, 100, 100)

	var buf bytes.Buffer
	if err := RenderHTML(&buf, v.Frame(), HTMLOptions{}); err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `src="http://localhost:8080/uploads/a.png"`) {
		t.Errorf("Expected base image, got %s", out)
	}
	if strings.Contains(out, "uxa-box") || strings.Contains(out, "<dialog") {
		t.Errorf("Expected plain image only, got %s", out)
	}
}

func TestRenderHTMLBeforeLayout(t *testing.T) {
	v := New("http://localhost:8080/uploads/a.png", sampleHighlights(), 2000, 1000)

	var buf bytes.Buffer
	if err := RenderHTML(&buf, v.Frame(), HTMLOptions{DialogID: "issues-7"}); err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "width:0px") || strings.Contains(out, "uxa-container") {
		t.Errorf("Expected an unsized base image, got %s", out)
	}
	if strings.Contains(out, "uxa-box") {
		t.Errorf("Expected no boxes before layout, got %s", out)
	}
	for _, want := range []string{`src="http://localhost:8080/uploads/a.png"`, "width:100%", `id="issues-7"`, "uxa-issue"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output", want)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	v := readyView(t, WithLocalizer(locale.MustNew().For("ko")))
	v.Select(1)

	var buf bytes.Buffer
	err := RenderHTML(&buf, v.Frame(), HTMLOptions{
		DialogID:   "issues-42",
		CloseLabel: "닫기",
		Thumbnails: map[int]template.URL{2: "data:image/png;base64,AAAA"},
	})
	if err != nil {
		t.Fatalf("RenderHTML failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`id="issues-42"`,
		"이슈 목록 (3)",
		"높음",
		`href="?selected=2"`,
		`href="?"`,
		"z-index:20",
		"pointer-events:none",
		"rgba(239, 68, 68, 0.3)",
		`src="data:image/png;base64,AAAA"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output", want)
		}
	}
	if strings.Contains(out, "ZgotmplZ") {
		t.Errorf("Template escaped a value as unsafe: %s", out)
	}
}

func TestRenderImage(t *testing.T) {
	v := readyView(t)
	v.Select(3)

	base := image.NewNRGBA(image.Rect(0, 0, 2000, 1000))
	for i := range base.Pix {
		base.Pix[i] = 255
	}

	out := RenderImage(base, v.Frame())
	if out.Bounds().Dx() != 1000 || out.Bounds().Dy() != 500 {
		t.Fatalf("Expected 1000x500 canvas, got %v", out.Bounds())
	}

	// top edge of box 1 at (50,100)-(250,150)
	if got := out.NRGBAAt(150, 100); got != red {
		t.Errorf("Expected red border, got %v", got)
	}
	// tinted inside
	if got := out.NRGBAAt(150, 125); got == (color.NRGBA{255, 255, 255, 255}) {
		t.Error("Expected tint inside the box")
	}
	// callout below box 3 at (500,0)-(900,250)
	if got := out.NRGBAAt(501, 262); got != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white callout background, got %v", got)
	}
}

func TestRenderImageWithoutLayout(t *testing.T) {
	v := New("a.png", sampleHighlights(), 2000, 1000)
	base := image.NewNRGBA(image.Rect(0, 0, 40, 20))

	out := RenderImage(base, v.Frame())
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 20 {
		t.Errorf("Expected a copy of the base image, got %v", out.Bounds())
	}
}
