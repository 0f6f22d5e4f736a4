// Package report renders the full analysis detail page and the analysis list
// as standalone HTML documents.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/menta2k/ux-analyzer/pkg/locale"
	"github.com/menta2k/ux-analyzer/pkg/overlay"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// TimeLayout is how creation times are shown
const TimeLayout = "2006-01-02 15:04"

// Raw HTML in the AI result is omitted; goldmark only passes it through
// with html.WithUnsafe.
var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var defaultCatalog = locale.MustNew()

// Markdown converts the AI analysis text to HTML
func Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// Page is the detail page of one analysis. An empty DeleteHref hides the
// delete button. Result is the rendered analysis text; when empty it is
// rendered from the analysis.
type Page struct {
	Analysis   *types.Analysis
	Frame      overlay.Frame
	Overlay    overlay.HTMLOptions
	Localizer  *locale.Localizer
	BackHref   string
	DeleteHref string
	Location   *time.Location
	Result     template.HTML
}

// Labels is the localized copy of a page
type Labels struct {
	Back              string
	Delete            string
	ImageTitle        string
	ImageDescription  string
	IntentTitle       string
	Created           string
	ResultTitle       string
	ResultDescription string
	Failed            string
	Processing        string
}

type pageData struct {
	Lang        string
	Title       string
	Analysis    *types.Analysis
	StatusLabel string
	CreatedAt   string
	BackHref    string
	DeleteHref  string
	Labels      Labels
	Overlay     overlay.FragmentData
	Result      template.HTML
}

// Render writes the detail page
func Render(w io.Writer, p Page) error {
	if p.Analysis == nil {
		return fmt.Errorf("no analysis to render")
	}
	loc := p.Localizer
	if loc == nil {
		loc = defaultCatalog.For(locale.Default)
	}
	if p.Overlay.CloseLabel == "" {
		p.Overlay.CloseLabel = loc.T("issues.close")
	}

	data := pageData{
		Lang:        loc.Lang(),
		Title:       loc.T("report.title"),
		Analysis:    p.Analysis,
		StatusLabel: loc.Status(p.Analysis.Status),
		CreatedAt:   formatTime(p.Analysis.CreatedAt, p.Location),
		BackHref:    p.BackHref,
		DeleteHref:  p.DeleteHref,
		Labels: Labels{
			Back:              loc.T("report.back"),
			Delete:            loc.T("report.delete"),
			ImageTitle:        loc.T("report.image.title"),
			ImageDescription:  loc.T("report.image.description"),
			IntentTitle:       loc.T("report.intent.title"),
			Created:           loc.T("report.created"),
			ResultTitle:       loc.T("report.result.title"),
			ResultDescription: loc.T("report.result.description"),
			Failed:            loc.T("report.failed"),
			Processing:        loc.T("report.processing"),
		},
		Overlay: overlay.Fragment(p.Frame, p.Overlay),
	}

	data.Result = p.Result
	if data.Result == "" && p.Analysis.Status == types.StatusCompleted && p.Analysis.AIAnalysisResult != "" {
		html, err := Markdown(p.Analysis.AIAnalysisResult)
		if err != nil {
			return err
		}
		data.Result = html
	}

	t, err := templates(p.Overlay)
	if err != nil {
		return err
	}
	if err := t.ExecuteTemplate(w, "page", data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	return nil
}

// ListItem is one row of the analysis list
type ListItem struct {
	Href      string
	Intent    string
	Status    string
	CreatedAt string
}

type listData struct {
	Lang  string
	Title string
	Empty string
	Items []ListItem
}

// RenderList writes the list page. href maps an analysis id to its page.
func RenderList(w io.Writer, analyses []types.Analysis, loc *locale.Localizer, href func(id string) string) error {
	if loc == nil {
		loc = defaultCatalog.For(locale.Default)
	}
	data := listData{
		Lang:  loc.Lang(),
		Title: loc.T("list.title"),
		Empty: loc.T("list.empty"),
	}
	for _, a := range analyses {
		data.Items = append(data.Items, ListItem{
			Href:      href(a.ID),
			Intent:    a.UserIntent,
			Status:    loc.Status(a.Status),
			CreatedAt: formatTime(a.CreatedAt, nil),
		})
	}

	t, err := templates(overlay.HTMLOptions{})
	if err != nil {
		return err
	}
	if err := t.ExecuteTemplate(w, "list", data); err != nil {
		return fmt.Errorf("failed to render list: %w", err)
	}
	return nil
}

func templates(opts overlay.HTMLOptions) (*template.Template, error) {
	t, err := overlay.Template(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare overlay template: %w", err)
	}
	if _, err := t.ParseFS(templateFS, "templates/page.html.tmpl"); err != nil {
		return nil, fmt.Errorf("failed to parse page template: %w", err)
	}
	return t, nil
}

func formatTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimeLayout)
}
