package overlay

import (
	"image/color"
	"sort"
	"strconv"

	"github.com/menta2k/ux-analyzer/pkg/geometry"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

// Frame is a render-ready snapshot of a View
type Frame struct {
	ImageURL string
	Alt      string

	// HasOverlay is false when there are no highlights; only the base image
	// is rendered then, without boxes or the issue list.
	HasOverlay bool

	// Ready is false until a valid transform exists. Boxes is empty then.
	Ready bool

	// Container and Image are relative to the container's top-left corner
	Container geometry.Rect
	Image     geometry.Rect
	Transform geometry.Transform

	// Boxes is in paint order: unselected first, the selected one last
	Boxes   []Box
	Callout *Callout
	Issues  IssueList
}

// Box is one positioned, clickable highlight
type Box struct {
	Region        types.HighlightRegion
	Rect          geometry.Rect
	Fill          color.NRGBA
	Border        color.NRGBA
	Badge         string
	Selected      bool
	ZIndex        int
	PointerEvents bool
	// OutOfBounds marks a box that leaves the rendered image. It is still
	// drawn where the coordinates put it.
	OutOfBounds bool
}

// Callout is the detail tooltip of the selected highlight
type Callout struct {
	ID            int
	Anchor        geometry.Point
	MaxWidth      float64
	Element       string
	SeverityLabel string
	Issue         string
	Badge         color.NRGBA
	ZIndex        int
	PointerEvents bool
}

// IssueList is the dialog enumerating every highlight
type IssueList struct {
	Button      string
	Title       string
	Description string
	Entries     []IssueEntry
}

// IssueEntry is one row of the issue list
type IssueEntry struct {
	ID            int
	Element       string
	Issue         string
	Severity      types.Severity
	SeverityLabel string
	Color         color.NRGBA
}

// Frame builds the current snapshot
func (v *View) Frame() Frame {
	v.mu.RLock()
	defer v.mu.RUnlock()

	f := Frame{
		ImageURL:   v.imageURL,
		Alt:        v.alt,
		HasOverlay: len(v.highlights) > 0,
		Ready:      v.ready,
		Transform:  v.transform,
	}
	if v.measured {
		f.Container = geometry.Rect{Width: v.layout.Container.Width, Height: v.layout.Container.Height}
		off := geometry.ComputeOffset(v.layout.Image, v.layout.Container)
		f.Image = geometry.Rect{X: off.X, Y: off.Y, Width: v.layout.Display.Width, Height: v.layout.Display.Height}
	}
	if !f.HasOverlay {
		return f
	}

	f.Issues = v.issueListLocked()
	if !v.ready {
		return f
	}

	f.Boxes = make([]Box, 0, len(v.highlights))
	for _, h := range v.highlights {
		rect := v.transform.Apply(h.Coordinates)
		pal := SeverityPalette(h.Severity)
		selected := v.hasSelected && v.selected == h.ID

		b := Box{
			Region:        h,
			Rect:          rect,
			Fill:          pal.Fill,
			Border:        pal.Border,
			Badge:         strconv.Itoa(h.ID),
			Selected:      selected,
			ZIndex:        ZIndexBox,
			PointerEvents: true,
			OutOfBounds:   !f.Image.Contains(rect),
		}
		if selected {
			b.ZIndex = ZIndexSelected
			f.Callout = &Callout{
				ID:            h.ID,
				Anchor:        geometry.Point{X: rect.X, Y: rect.Bottom() + CalloutGap},
				MaxWidth:      CalloutMaxWidth,
				Element:       h.Element,
				SeverityLabel: v.loc.Severity(h.Severity),
				Issue:         h.Issue,
				Badge:         pal.Border,
				ZIndex:        ZIndexCallout,
				PointerEvents: false,
			}
		}
		f.Boxes = append(f.Boxes, b)
	}

	sort.SliceStable(f.Boxes, func(i, j int) bool {
		return f.Boxes[i].ZIndex < f.Boxes[j].ZIndex
	})
	return f
}

func (v *View) issueListLocked() IssueList {
	n := len(v.highlights)
	list := IssueList{
		Button:      v.loc.Count("issues.button", n),
		Title:       v.loc.T("issues.title"),
		Description: v.loc.Count("issues.description", n),
		Entries:     make([]IssueEntry, 0, n),
	}
	for _, h := range v.highlights {
		list.Entries = append(list.Entries, IssueEntry{
			ID:            h.ID,
			Element:       h.Element,
			Issue:         h.Issue,
			Severity:      h.Severity,
			SeverityLabel: v.loc.Severity(h.Severity),
			Color:         SeverityPalette(h.Severity).Border,
		})
	}
	return list
}

// BoxAt returns the topmost box containing p, as a click would hit it
func (f Frame) BoxAt(p geometry.Point) (Box, bool) {
	for i := len(f.Boxes) - 1; i >= 0; i-- {
		r := f.Boxes[i].Rect
		if p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height {
			return f.Boxes[i], true
		}
	}
	return Box{}, false
}

// Click toggles the topmost box under p, container-relative. It returns the
// id of the box hit and whether it is selected afterwards.
func (v *View) Click(p geometry.Point) (id int, selected bool, hit bool) {
	b, ok := v.Frame().BoxAt(p)
	if !ok {
		return 0, false, false
	}
	return b.Region.ID, v.Toggle(b.Region.ID), true
}
