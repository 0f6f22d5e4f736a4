// Package server serves analysis reports over HTTP: the analysis list, the
// detail page with the interactive overlay and annotated images.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"image"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	uxanalyzer "github.com/menta2k/ux-analyzer"
	"github.com/menta2k/ux-analyzer/pkg/apiclient"
	"github.com/menta2k/ux-analyzer/pkg/imageio"
	"github.com/menta2k/ux-analyzer/pkg/overlay"
	"github.com/menta2k/ux-analyzer/pkg/report"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

// Defaults for the detail page. The page column is 1024px wide with 24px
// card padding on both sides.
const (
	DefaultViewportWidth = 976
	DefaultMaxHeight     = 800
	DefaultThumbSize     = 96
	DefaultQuality       = 90

	requestTimeout = 60 * time.Second
)

// Server renders reports for the analyses of one backend
type Server struct {
	ux        *uxanalyzer.Analyzer
	logger    *log.Logger
	viewport  uxanalyzer.Viewport
	thumbSize int
	location  *time.Location
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the request and error logger
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithViewport sets the default layout of the detail page and of annotated
// images
func WithViewport(vp uxanalyzer.Viewport) Option {
	return func(s *Server) { s.viewport = vp }
}

// WithThumbSize sets the thumbnail box of the issue list; 0 disables them
func WithThumbSize(n int) Option {
	return func(s *Server) { s.thumbSize = n }
}

// WithLocation sets the time zone creation times are shown in
func WithLocation(loc *time.Location) Option {
	return func(s *Server) { s.location = loc }
}

// New creates a Server
func New(ux *uxanalyzer.Analyzer, opts ...Option) *Server {
	s := &Server{
		ux:        ux,
		logger:    log.New(io.Discard, "", 0),
		viewport:  uxanalyzer.Viewport{Width: DefaultViewportWidth, MaxHeight: DefaultMaxHeight},
		thumbSize: DefaultThumbSize,
		location:  time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the router with all pages mounted
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/analyses", http.StatusFound)
	})
	r.Route("/analyses", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleDetail)
		r.Get("/{id}/annotated.{format}", s.handleAnnotated)
		r.Post("/{id}/delete", s.handleDelete)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Printf("Listening on %s", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	analyses, err := s.ux.Backend().ListAnalyses(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sort.SliceStable(analyses, func(i, j int) bool {
		return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
	})

	loc := s.ux.Localizer(r.URL.Query().Get("lang"))
	href := func(id string) string {
		return withQuery("/analyses/"+url.PathEscape(id), r.URL.Query(), "lang")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderList(w, analyses, loc, href); err != nil {
		s.logger.Printf("Error rendering list: %v", err)
	}
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	an, err := s.ux.Backend().GetAnalysis(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	vp, err := s.viewportFrom(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang := q.Get("lang")

	// Screenshot and result markup are independent; a missing screenshot
	// only costs the overlay, the page is still served.
	var (
		img    image.Image
		result template.HTML
	)
	g, gctx := errgroup.WithContext(ctx)
	if len(an.Highlights) > 0 {
		g.Go(func() error {
			shot, err := s.ux.Screenshot(gctx, an)
			if err != nil {
				s.logger.Printf("Warning: overlay disabled for %s: %v", an.ID, err)
				return nil
			}
			img = shot
			return nil
		})
	}
	if an.Status == types.StatusCompleted && an.AIAnalysisResult != "" {
		g.Go(func() error {
			html, err := report.Markdown(an.AIAnalysisResult)
			result = html
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.fail(w, r, err)
		return
	}

	v := s.ux.View(an, lang)
	opts := overlay.HTMLOptions{
		ToggleHref: func(b overlay.Box) string {
			next := url.Values{}
			for k, vals := range q {
				next[k] = vals
			}
			if b.Selected {
				next.Del("selected")
			} else {
				next.Set("selected", strconv.Itoa(b.Region.ID))
			}
			return withQuery(r.URL.Path, next, "")
		},
	}

	if img != nil {
		v, err = s.ux.Layout(an, img, vp, lang)
		if err != nil {
			s.logger.Printf("Warning: overlay disabled for %s: %v", an.ID, err)
			v = s.ux.View(an, lang)
		}
		if s.thumbSize > 0 {
			opts.Thumbnails = s.ux.Thumbnails(an, img, s.thumbSize)
		}
	}
	if sel, err := strconv.Atoi(q.Get("selected")); err == nil {
		v.Select(sel)
	}

	page := report.Page{
		Analysis:   an,
		Frame:      v.Frame(),
		Overlay:    opts,
		Localizer:  s.ux.Localizer(lang),
		BackHref:   withQuery("/analyses", q, "lang"),
		DeleteHref: withQuery("/analyses/"+url.PathEscape(an.ID)+"/delete", q, "lang"),
		Location:   s.location,
		Result:     result,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.Render(w, page); err != nil {
		s.logger.Printf("Error rendering %s: %v", an.ID, err)
	}
}

func (s *Server) handleAnnotated(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	format := chi.URLParam(r, "format")
	switch format {
	case "png", "jpg", "webp":
	default:
		http.Error(w, "unsupported format "+format, http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	vp, err := s.viewportFrom(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	selected, _ := strconv.Atoi(q.Get("selected"))

	an, err := s.ux.Backend().GetAnalysis(ctx, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	img, _, err := s.ux.Annotate(ctx, an, vp, selected)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", imageio.ContentType(format))
	w.Header().Set("Cache-Control", "no-store")
	if err := imageio.Encode(w, img, format, DefaultQuality, false); err != nil {
		s.logger.Printf("Error encoding %s: %v", id, err)
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.ux.Backend().DeleteAnalysis(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Printf("Deleted analysis %s", id)
	http.Redirect(w, r, withQuery("/analyses", r.URL.Query(), "lang"), http.StatusSeeOther)
}

// viewportFrom reads the w and h query parameters
func (s *Server) viewportFrom(q url.Values) (uxanalyzer.Viewport, error) {
	vp := s.viewport
	if v := q.Get("w"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n <= 0 {
			return vp, fmt.Errorf("invalid viewport width %q", v)
		}
		vp.Width = n
	}
	if v := q.Get("h"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n <= 0 {
			return vp, fmt.Errorf("invalid max height %q", v)
		}
		vp.MaxHeight = n
	}
	return vp, nil
}

// fail maps backend errors to a status code
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	var apiErr *types.APIError
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		status = apiErr.StatusCode
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.logger.Printf("Error serving %s: %v", r.URL.Path, err)

	loc := s.ux.Localizer(r.URL.Query().Get("lang"))
	msg := http.StatusText(status)
	if status == http.StatusUnauthorized {
		msg = loc.T("error.unauthorized")
	}
	http.Error(w, msg, status)
}

// withQuery appends q to path. With keep set, only that key is carried over.
func withQuery(path string, q url.Values, keep string) string {
	if keep != "" {
		v := q.Get(keep)
		if v == "" {
			return path
		}
		q = url.Values{keep: {v}}
	}
	if enc := q.Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}
