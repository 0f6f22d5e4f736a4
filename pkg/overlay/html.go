package overlay

import (
	"embed"
	"fmt"
	"html/template"
	"image/color"
	"io"
	"strconv"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// HTMLOptions controls the HTML fragment
type HTMLOptions struct {
	// ToggleHref returns the link a box points to. The default toggles a
	// "selected" query parameter.
	ToggleHref func(b Box) string

	// Thumbnails are optional data/image URLs keyed by highlight id, shown
	// in the issue list.
	Thumbnails map[int]template.URL

	// DialogID is the element id of the issue list dialog
	DialogID string

	// CloseLabel is the text of the dialog's close button
	CloseLabel string
}

// DefaultToggleHref links to ?selected=<id>, or to "?" when the box is
// already selected so that a second click clears the selection.
func DefaultToggleHref(b Box) string {
	if b.Selected {
		return "?"
	}
	return "?selected=" + strconv.Itoa(b.Region.ID)
}

var overlayTemplate = template.Must(
	template.New("overlay").Funcs(template.FuncMap{
		"containerStyle": containerStyle,
		"imageStyle":     imageStyle,
		"boxStyle":       boxStyle,
		"badgeStyle":     badgeStyle,
		"calloutStyle":   calloutStyle,
		"pillStyle":      pillStyle,
		"numberStyle":    numberStyle,
		"toggleHref":     DefaultToggleHref,
		"thumbnail":      func(int) template.URL { return "" },
	}).ParseFS(templateFS, "templates/overlay.html.tmpl"),
)

// Template returns a clone of the overlay template so that pages can embed
// it with {{template "overlay" .}}
func Template(opts HTMLOptions) (*template.Template, error) {
	t, err := overlayTemplate.Clone()
	if err != nil {
		return nil, err
	}
	return t.Funcs(htmlFuncs(opts)), nil
}

// FragmentData is the data the "overlay" template expects
type FragmentData struct {
	Frame    Frame
	DialogID string
	Close    string
}

// Fragment prepares the template data for f
func Fragment(f Frame, opts HTMLOptions) FragmentData {
	id := opts.DialogID
	if id == "" {
		id = "uxa-issues"
	}
	closeLabel := opts.CloseLabel
	if closeLabel == "" {
		closeLabel = "Close"
	}
	return FragmentData{Frame: f, DialogID: id, Close: closeLabel}
}

// RenderHTML writes the embeddable overlay fragment for f
func RenderHTML(w io.Writer, f Frame, opts HTMLOptions) error {
	t, err := Template(opts)
	if err != nil {
		return fmt.Errorf("failed to prepare overlay template: %w", err)
	}
	if err := t.ExecuteTemplate(w, "overlay", Fragment(f, opts)); err != nil {
		return fmt.Errorf("failed to render overlay: %w", err)
	}
	return nil
}

func htmlFuncs(opts HTMLOptions) template.FuncMap {
	toggle := opts.ToggleHref
	if toggle == nil {
		toggle = DefaultToggleHref
	}
	thumbs := opts.Thumbnails
	return template.FuncMap{
		"toggleHref": toggle,
		"thumbnail": func(id int) template.URL {
			return thumbs[id]
		},
	}
}

func px(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

func containerStyle(f Frame) template.CSS {
	return template.CSS(fmt.Sprintf(
		"position:relative;width:%s;height:%s;overflow:hidden;background-color:#f3f4f6;border-radius:8px",
		px(f.Container.Width), px(f.Container.Height)))
}

func imageStyle(f Frame) template.CSS {
	return template.CSS(fmt.Sprintf(
		"position:absolute;left:%s;top:%s;width:%s;height:%s;display:block",
		px(f.Image.X), px(f.Image.Y), px(f.Image.Width), px(f.Image.Height)))
}

func boxStyle(b Box) template.CSS {
	pointer := "none"
	if b.PointerEvents {
		pointer = "auto"
	}
	return template.CSS(fmt.Sprintf(
		"position:absolute;left:%s;top:%s;width:%s;height:%s;background-color:%s;border:%dpx solid %s;cursor:pointer;transition:all 0.2s ease;z-index:%d;pointer-events:%s;border-radius:4px;box-sizing:border-box",
		px(b.Rect.X), px(b.Rect.Y), px(b.Rect.Width), px(b.Rect.Height),
		cssColor(b.Fill), BorderWidth, cssColor(b.Border), b.ZIndex, pointer))
}

func badgeStyle(b Box) template.CSS {
	return template.CSS(fmt.Sprintf(
		"position:absolute;top:%dpx;left:%dpx;width:%dpx;height:%dpx;border-radius:50%%;background-color:%s;color:white;display:flex;align-items:center;justify-content:center;font-size:12px;font-weight:bold;box-shadow:0 2px 4px rgba(0,0,0,0.2)",
		BadgeOffset, BadgeOffset, BadgeSize, BadgeSize, cssColor(b.Border)))
}

func calloutStyle(c *Callout) template.CSS {
	pointer := "none"
	if c.PointerEvents {
		pointer = "auto"
	}
	return template.CSS(fmt.Sprintf(
		"position:absolute;left:%s;top:%s;max-width:%s;z-index:%d;pointer-events:%s;background-color:white;border:1px solid #e5e7eb;border-radius:8px;padding:12px;box-shadow:0 20px 25px -5px rgba(0,0,0,0.1)",
		px(c.Anchor.X), px(c.Anchor.Y), px(c.MaxWidth), c.ZIndex, pointer))
}

func pillStyle(c color.NRGBA) template.CSS {
	return template.CSS(fmt.Sprintf(
		"flex-shrink:0;padding:2px 8px;font-size:12px;font-weight:500;border-radius:9999px;color:white;background-color:%s",
		cssColor(c)))
}

func numberStyle(c color.NRGBA) template.CSS {
	return template.CSS(fmt.Sprintf(
		"flex-shrink:0;width:32px;height:32px;border-radius:50%%;display:flex;align-items:center;justify-content:center;color:white;font-size:14px;font-weight:bold;background-color:%s",
		cssColor(c)))
}
