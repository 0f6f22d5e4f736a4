// Package uxanalyzer is a client for a UX/UI analysis service.
//
// A screenshot is uploaded together with what the user wants to achieve; the
// backend analyses it and returns issue regions in original-image pixels.
// This package uploads, waits for completion and turns the result into an
// interactive overlay (HTML) or an annotated image.
//
// Basic usage:
//
//	api, err := apiclient.New("http://localhost:8080", apiclient.WithSession(session.New(token, nil)))
//	if err != nil {
//		log.Fatal(err)
//	}
//	ux := uxanalyzer.New(api)
//
//	a, err := ux.UploadAndWait(ctx, "checkout.png", "Make checkout faster")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	img, _, err := ux.Annotate(ctx, a, uxanalyzer.Viewport{Width: 1280, MaxHeight: 800}, 0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	imageio.SaveImage(img, "checkout_annotated.png", "png", 90, false)
//
// The package wires these components:
//
// 1. API client (pkg/apiclient): REST calls with an injected session
// 2. Poller (pkg/poller): waits until an analysis is completed or failed
// 3. Geometry and layout (pkg/geometry, pkg/layout): original pixels to display pixels
// 4. Overlay (pkg/overlay): highlight boxes, selection, callout and issue list
package uxanalyzer

import (
	"context"
	"fmt"
	"html/template"
	"image"
	"io"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/ux-analyzer/pkg/client"
	"github.com/menta2k/ux-analyzer/pkg/geometry"
	"github.com/menta2k/ux-analyzer/pkg/imageio"
	"github.com/menta2k/ux-analyzer/pkg/layout"
	"github.com/menta2k/ux-analyzer/pkg/locale"
	"github.com/menta2k/ux-analyzer/pkg/overlay"
	"github.com/menta2k/ux-analyzer/pkg/poller"
	"github.com/menta2k/ux-analyzer/pkg/types"
	"github.com/menta2k/ux-analyzer/pkg/validation"
)

// Version of the ux-analyzer library
const Version = "1.0.0"

// Analyzer ties the backend, the poller and the renderers together
type Analyzer struct {
	backend client.Backend
	poller  *poller.Poller
	loader  *imageio.Loader
	catalog *locale.Catalog
	lang    string
	logger  *log.Logger

	pollerOpts []poller.Option
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithPollerOptions passes options to the completion poller
func WithPollerOptions(opts ...poller.Option) Option {
	return func(a *Analyzer) { a.pollerOpts = append(a.pollerOpts, opts...) }
}

// WithLoader sets the image loader used to fetch screenshots
func WithLoader(l *imageio.Loader) Option {
	return func(a *Analyzer) { a.loader = l }
}

// WithLocale sets the message catalog and language for labels
func WithLocale(c *locale.Catalog, lang string) Option {
	return func(a *Analyzer) {
		a.catalog = c
		a.lang = lang
	}
}

// WithLogger sets the logger shared with the poller and overlays
func WithLogger(l *log.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// New creates an Analyzer on top of backend
func New(backend client.Backend, opts ...Option) *Analyzer {
	a := &Analyzer{
		backend: backend,
		lang:    locale.Default,
		logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loader == nil {
		a.loader = imageio.NewLoader(0)
	}
	if a.catalog == nil {
		a.catalog = locale.MustNew()
	}
	a.poller = poller.New(backend, append([]poller.Option{poller.WithLogger(a.logger)}, a.pollerOpts...)...)
	return a
}

// Backend returns the underlying API
func (a *Analyzer) Backend() client.Backend { return a.backend }

// Poller returns the completion poller
func (a *Analyzer) Poller() *poller.Poller { return a.poller }

// Localizer returns the localizer for lang, or the configured language when
// lang is empty
func (a *Analyzer) Localizer(lang string) *locale.Localizer {
	if lang == "" {
		lang = a.lang
	}
	return a.catalog.For(lang)
}

// Upload validates path and intent locally, then creates the analysis
func (a *Analyzer) Upload(ctx context.Context, path, intent string) (*types.CreateAnalysisResponse, error) {
	info, err := validation.ValidateUpload(path, intent)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	a.logger.Printf("Uploading %s (%s, %s)", info.Name, info.ContentType, validation.FormatFileSize(info.Size))
	resp, err := a.backend.CreateAnalysis(ctx, f, info.Name, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis: %w", err)
	}
	return resp, nil
}

// Wait blocks until the analysis is completed, failed or timed out
func (a *Analyzer) Wait(ctx context.Context, id string) (*types.Analysis, error) {
	return a.poller.Wait(ctx, id)
}

// UploadAndWait uploads and waits for the result
func (a *Analyzer) UploadAndWait(ctx context.Context, path, intent string) (*types.Analysis, error) {
	created, err := a.Upload(ctx, path, intent)
	if err != nil {
		return nil, err
	}
	return a.Wait(ctx, created.ID)
}

// WaitResult is the outcome of one wait in WaitAll
type WaitResult struct {
	ID       string
	Analysis *types.Analysis
	Err      error
}

// WaitAll waits for several analyses at once. Each wait is independent: one
// failing does not stop the others. At most limit waits run concurrently;
// limit <= 0 means no limit.
func (a *Analyzer) WaitAll(ctx context.Context, ids []string, limit int) []WaitResult {
	results := make([]WaitResult, len(ids))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			an, err := a.poller.Wait(ctx, id)
			results[i] = WaitResult{ID: id, Analysis: an, Err: err}
			return nil
		})
	}
	g.Wait()
	return results
}

// ImageURL returns the public URL of the analysed screenshot
func (a *Analyzer) ImageURL(an *types.Analysis) string {
	return a.backend.ImageURL(an.FilePath)
}

// View builds the overlay for an analysis. The caller still has to report
// image load and layout.
func (a *Analyzer) View(an *types.Analysis, lang string, opts ...overlay.Option) *overlay.View {
	base := []overlay.Option{
		overlay.WithLocalizer(a.Localizer(lang)),
		overlay.WithLogger(a.logger),
	}
	return overlay.New(a.ImageURL(an), an.Highlights, an.ImageWidth, an.ImageHeight, append(base, opts...)...)
}

// Viewport is the simulated browser window an annotated image is laid out in
type Viewport struct {
	Width     float64
	MaxHeight float64
}

// Screenshot downloads the analysed image
func (a *Analyzer) Screenshot(ctx context.Context, an *types.Analysis) (image.Image, error) {
	img, err := a.loader.LoadImageFromURL(ctx, a.ImageURL(an))
	if err != nil {
		return nil, fmt.Errorf("failed to load screenshot: %w", err)
	}
	return img, nil
}

// Layout lays out img in the viewport and returns a ready view
func (a *Analyzer) Layout(an *types.Analysis, img image.Image, vp Viewport, lang string) (*overlay.View, error) {
	v := a.View(an, lang)
	asset := imageio.Bounds(img)
	if err := v.ImageLoaded(asset); err != nil {
		return nil, err
	}

	maxHeight := vp.MaxHeight
	if maxHeight <= 0 {
		maxHeight = vp.Width * layout.DefaultMaxHeightRatio
	}
	if err := v.LayoutReady(layout.Responsive(asset, vp.Width, maxHeight, geometry.Point{})); err != nil {
		return nil, fmt.Errorf("failed to lay out analysis %s: %w", an.ID, err)
	}
	return v, nil
}

// Annotate renders the analysis as an image with the highlights drawn in.
// selected is the highlight id to open the callout for, 0 for none.
func (a *Analyzer) Annotate(ctx context.Context, an *types.Analysis, vp Viewport, selected int) (*image.NRGBA, overlay.Frame, error) {
	img, err := a.Screenshot(ctx, an)
	if err != nil {
		return nil, overlay.Frame{}, err
	}
	v, err := a.Layout(an, img, vp, "")
	if err != nil {
		return nil, overlay.Frame{}, err
	}
	if selected != 0 {
		v.Select(selected)
	}
	f := v.Frame()
	return overlay.RenderImage(img, f), f, nil
}

// Thumbnails crops every highlight out of img for the issue list. Regions
// that cannot be cropped are skipped.
func (a *Analyzer) Thumbnails(an *types.Analysis, img image.Image, maxSide int) map[int]template.URL {
	natural := geometry.ResolveNatural(an.ImageWidth, an.ImageHeight, imageio.Bounds(img))
	out := make(map[int]template.URL, len(an.Highlights))
	for _, h := range an.Highlights {
		thumb, err := imageio.Thumbnail(img, h.Coordinates, natural, maxSide)
		if err != nil {
			a.logger.Printf("Skipping thumbnail for highlight %d: %v", h.ID, err)
			continue
		}
		url, err := imageio.DataURL(thumb, "png", 0)
		if err != nil {
			a.logger.Printf("Skipping thumbnail for highlight %d: %v", h.ID, err)
			continue
		}
		out[h.ID] = template.URL(url)
	}
	return out
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
