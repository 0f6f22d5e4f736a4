// Package overlay renders issue highlights on top of an analysed screenshot.
//
// A View holds the highlight regions of one analysis together with the
// current coordinate transform and the (exclusive) selection. The host feeds
// it lifecycle events: the image finished decoding, the layout settled, the
// window was resized. A Frame snapshot describes everything that has to be
// drawn and can be turned into HTML (RenderHTML) or into an annotated raster
// image (RenderImage).
package overlay

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/menta2k/ux-analyzer/pkg/geometry"
	"github.com/menta2k/ux-analyzer/pkg/locale"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

// View is the embeddable highlight overlay for one image
type View struct {
	imageURL string
	alt      string
	loc      *locale.Localizer
	logger   *log.Logger

	mu             sync.RWMutex
	highlights     []types.HighlightRegion
	originalWidth  int
	originalHeight int

	asset    geometry.Size
	loaded   bool
	layout   geometry.Measurement
	measured bool

	transform geometry.Transform
	ready     bool

	selected    int
	hasSelected bool
}

// Option configures a View
type Option func(*View)

// WithLocalizer sets the language used for labels
func WithLocalizer(l *locale.Localizer) Option {
	return func(v *View) { v.loc = l }
}

// WithAlt sets the alternative text of the base image
func WithAlt(alt string) Option {
	return func(v *View) { v.alt = alt }
}

// WithLogger sets the logger used for scale diagnostics
func WithLogger(l *log.Logger) Option {
	return func(v *View) { v.logger = l }
}

var defaultCatalog = locale.MustNew()

// New creates a view for imageURL. originalWidth and originalHeight are the
// dimensions reported by the backend; pass 0 when unknown and the decoded
// asset size is used instead.
func New(imageURL string, highlights []types.HighlightRegion, originalWidth, originalHeight int, opts ...Option) *View {
	v := &View{
		imageURL:       imageURL,
		highlights:     cloneRegions(highlights),
		originalWidth:  originalWidth,
		originalHeight: originalHeight,
		transform:      geometry.Identity,
		logger:         log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.loc == nil {
		v.loc = defaultCatalog.For(locale.Default)
	}
	if v.alt == "" {
		v.alt = v.loc.T("image.alt")
	}
	return v
}

// HasHighlights reports whether there is anything to overlay
func (v *View) HasHighlights() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.highlights) > 0
}

// Highlights returns a copy of the regions
func (v *View) Highlights() []types.HighlightRegion {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return cloneRegions(v.highlights)
}

// SetHighlights replaces the regions and the backend dimensions.
// The selection is reset.
func (v *View) SetHighlights(highlights []types.HighlightRegion, originalWidth, originalHeight int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.highlights = cloneRegions(highlights)
	v.originalWidth = originalWidth
	v.originalHeight = originalHeight
	v.hasSelected = false
	v.selected = 0
	return v.recomputeLocked()
}

// ImageLoaded records the decoded size of the image asset
func (v *View) ImageLoaded(asset geometry.Size) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.asset = asset
	v.loaded = true
	return v.recomputeLocked()
}

// LayoutReady delivers the first stable layout measurement after load
func (v *View) LayoutReady(m geometry.Measurement) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.layout = m
	v.measured = true
	return v.recomputeLocked()
}

// Resize delivers a new measurement after the viewport changed.
// Calling it repeatedly with the same measurement is harmless.
func (v *View) Resize(m geometry.Measurement) error {
	return v.LayoutReady(m)
}

// Watch applies every measurement received on events until ctx is done or
// events is closed. Without highlights it returns at once and never reads
// from events.
func (v *View) Watch(ctx context.Context, events <-chan geometry.Measurement) {
	if !v.HasHighlights() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-events:
			if !ok {
				return
			}
			if err := v.Resize(m); err != nil {
				v.logger.Printf("overlay: resize skipped: %v", err)
			}
		}
	}
}

// recomputeLocked refreshes the transform. Degenerate sizes leave the view
// not ready so that no boxes are drawn.
func (v *View) recomputeLocked() error {
	if !v.loaded || !v.measured {
		v.ready = false
		return nil
	}

	natural := geometry.ResolveNatural(v.originalWidth, v.originalHeight, v.asset)
	t, err := geometry.ComputeTransform(natural, v.layout)
	if err != nil {
		v.ready = false
		return err
	}
	v.transform = t
	v.ready = true

	if len(v.highlights) > 0 {
		source := "asset"
		if v.originalWidth > 0 && v.originalHeight > 0 {
			source = "backend"
		}
		v.logger.Printf("overlay: natural=%gx%g (%s) display=%gx%g scale=%.4f,%.4f offset=%.1f,%.1f highlights=%d",
			natural.Width, natural.Height, source,
			v.layout.Display.Width, v.layout.Display.Height,
			t.Scale.ScaleX, t.Scale.ScaleY, t.Offset.X, t.Offset.Y, len(v.highlights))
	}
	return nil
}

// Transform returns the current transform and whether it is usable
func (v *View) Transform() (geometry.Transform, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.transform, v.ready
}

// Toggle handles a click on the box of id. It selects the region, or clears
// the selection when the region was already selected. It returns whether id
// is selected afterwards. Unknown ids leave the selection untouched.
func (v *View) Toggle(id int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.findLocked(id); !ok {
		return v.hasSelected && v.selected == id
	}
	if v.hasSelected && v.selected == id {
		v.hasSelected = false
		v.selected = 0
		return false
	}
	v.selected = id
	v.hasSelected = true
	return true
}

// Select sets the selection to id without toggling
func (v *View) Select(id int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.findLocked(id); !ok {
		return false
	}
	v.selected = id
	v.hasSelected = true
	return true
}

// Clear drops the selection
func (v *View) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hasSelected = false
	v.selected = 0
}

// Selected returns the selected region, if any
func (v *View) Selected() (types.HighlightRegion, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if !v.hasSelected {
		return types.HighlightRegion{}, false
	}
	return v.findLocked(v.selected)
}

func (v *View) findLocked(id int) (types.HighlightRegion, bool) {
	for _, h := range v.highlights {
		if h.ID == id {
			return h, true
		}
	}
	return types.HighlightRegion{}, false
}

func cloneRegions(in []types.HighlightRegion) []types.HighlightRegion {
	if len(in) == 0 {
		return nil
	}
	out := make([]types.HighlightRegion, len(in))
	copy(out, in)
	return out
}
