package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	uxanalyzer "github.com/menta2k/ux-analyzer"
	"github.com/menta2k/ux-analyzer/internal/server"
	"github.com/menta2k/ux-analyzer/internal/utils"
	"github.com/menta2k/ux-analyzer/pkg/apiclient"
	"github.com/menta2k/ux-analyzer/pkg/imageio"
	"github.com/menta2k/ux-analyzer/pkg/overlay"
	"github.com/menta2k/ux-analyzer/pkg/poller"
	"github.com/menta2k/ux-analyzer/pkg/report"
	"github.com/menta2k/ux-analyzer/pkg/types"
	"github.com/menta2k/ux-analyzer/pkg/validation"
)

// maxConcurrentWaits bounds the pollers run at once by upload -wait and wait
const maxConcurrentWaits = 4

func loginCmd(fs *flag.FlagSet) runner {
	email := fs.String("email", "", "account e-mail")
	password := fs.String("password", "", "password (default $UXA_PASSWORD)")

	return func(ctx context.Context, a *app, args []string) error {
		if *email == "" {
			return fmt.Errorf("-email is required")
		}
		pw := *password
		if pw == "" {
			pw = os.Getenv("UXA_PASSWORD")
		}
		if pw == "" {
			return fmt.Errorf("-password or UXA_PASSWORD is required")
		}

		resp, err := a.api.Login(ctx, *email, pw)
		if err != nil {
			return err
		}
		if err := a.store.Save(a.api.Session()); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Logged in as %s\n", displayName(resp.User))
		return nil
	}
}

func logoutCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, a *app, args []string) error {
		if a.api.Session().Authenticated() {
			if err := a.api.Logout(ctx); err != nil {
				a.logger.Printf("Warning: logout request failed: %v", err)
			}
		}
		if err := a.store.Remove(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Logged out")
		return nil
	}
}

func whoamiCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, a *app, args []string) error {
		u, ok := a.api.Session().User()
		switch {
		case ok:
			fmt.Fprintln(a.out, displayName(u))
		case a.api.Session().Authenticated():
			fmt.Fprintln(a.out, "Authenticated with a token")
		default:
			return fmt.Errorf("not logged in")
		}
		return nil
	}
}

func uploadCmd(fs *flag.FlagSet) runner {
	intent := fs.String("intent", "", "what the screen should help the user do")
	dir := fs.String("dir", "", "upload every image in this directory")
	wait := fs.Bool("wait", false, "wait for the analyses to finish")

	return func(ctx context.Context, a *app, args []string) error {
		if *dir != "" {
			if !utils.DirExists(*dir) {
				return fmt.Errorf("directory not found: %s", *dir)
			}
			args = append(args, *dir)
		}

		var files []string
		var missing int
		for _, arg := range args {
			switch {
			case utils.DirExists(arg):
				found, err := utils.ListUploadable(arg)
				if err != nil {
					return fmt.Errorf("failed to list %s: %w", arg, err)
				}
				files = append(files, found...)
			case utils.FileExists(arg):
				files = append(files, arg)
			default:
				missing++
				fmt.Fprintf(a.out, "%s: file not found\n", arg)
			}
		}
		if len(files) == 0 && missing == 0 {
			return fmt.Errorf("no files to upload")
		}

		var ids []string
		failed := missing
		for _, f := range files {
			created, err := a.ux.Upload(ctx, f, *intent)
			if err != nil {
				failed++
				fmt.Fprintf(a.out, "%s: %s\n", f, a.describe(err))
				continue
			}
			ids = append(ids, created.ID)
			fmt.Fprintf(a.out, "%s: %s (%s)\n", f, created.ID, a.loc.Status(created.Status))
		}

		if *wait && len(ids) > 0 {
			if n := a.printWaits(a.ux.WaitAll(ctx, ids, maxConcurrentWaits)); n > 0 {
				failed += n
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d uploads failed", failed, len(files)+missing)
		}
		return nil
	}
}

func listCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, a *app, args []string) error {
		analyses, err := a.api.ListAnalyses(ctx)
		if err != nil {
			return a.wrap(err)
		}
		if len(analyses) == 0 {
			fmt.Fprintln(a.out, a.loc.T("list.empty"))
			return nil
		}
		sort.SliceStable(analyses, func(i, j int) bool {
			return analyses[i].CreatedAt.After(analyses[j].CreatedAt)
		})

		tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tHIGHLIGHTS\tINTENT")
		for _, an := range analyses {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				an.ID, a.loc.Status(an.Status), an.CreatedAt.Local().Format(report.TimeLayout),
				len(an.Highlights), truncate(an.UserIntent, 60))
		}
		return tw.Flush()
	}
}

func getCmd(fs *flag.FlagSet) runner {
	asJSON := fs.Bool("json", false, "print the raw analysis as JSON")

	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected one analysis id")
		}
		an, err := a.api.GetAnalysis(ctx, args[0])
		if err != nil {
			return a.wrap(err)
		}

		if *asJSON {
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(an)
		}
		a.printAnalysis(an)
		return nil
	}
}

func waitCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("expected at least one analysis id")
		}
		if n := a.printWaits(a.ux.WaitAll(ctx, args, maxConcurrentWaits)); n > 0 {
			return fmt.Errorf("%d of %d analyses did not complete", n, len(args))
		}
		return nil
	}
}

func deleteCmd(fs *flag.FlagSet) runner {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 {
			return fmt.Errorf("expected at least one analysis id")
		}
		for _, id := range args {
			if err := a.api.DeleteAnalysis(ctx, id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", id, a.wrap(err))
			}
			fmt.Fprintf(a.out, "Deleted %s\n", id)
		}
		return nil
	}
}

func renderCmd(fs *flag.FlagSet) runner {
	format := fs.String("format", "", "output format: png|jpg|webp (default from config)")
	outDir := fs.String("out", "", "output directory (default from config)")
	width := fs.Float64("w", 0, "viewport width in px (default from config)")
	maxHeight := fs.Float64("h", 0, "max image height in px (default from config)")
	selected := fs.Int("selected", 0, "highlight id to open the callout for")
	withHTML := fs.Bool("html", false, "also write a standalone HTML report")

	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected one analysis id")
		}
		cfg := a.cfg.Output
		if *format == "" {
			*format = cfg.DefaultFormat
		}
		if *outDir == "" {
			*outDir = cfg.OutputDir
		}
		vp := uxanalyzer.Viewport{Width: cfg.ViewportWidth, MaxHeight: cfg.MaxHeight}
		if *width > 0 {
			vp.Width = *width
		}
		if *maxHeight > 0 {
			vp.MaxHeight = *maxHeight
		}
		if err := utils.EnsureDir(*outDir); err != nil {
			return err
		}

		an, err := a.api.GetAnalysis(ctx, args[0])
		if err != nil {
			return a.wrap(err)
		}
		img, err := a.ux.Screenshot(ctx, an)
		if err != nil {
			return err
		}
		v, err := a.ux.Layout(an, img, vp, "")
		if err != nil {
			return err
		}
		if *selected != 0 && !v.Select(*selected) {
			return fmt.Errorf("analysis %s has no highlight %d", an.ID, *selected)
		}
		f := v.Frame()

		path := utils.OutputFilename(an.ID, *outDir, "_annotated", *format)
		if err := imageio.SaveImage(overlay.RenderImage(img, f), path, *format, cfg.Quality, false); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Wrote %s\n", path)

		if *withHTML {
			htmlPath := utils.OutputFilename(an.ID, *outDir, "_report", "html")
			if err := a.writeReport(htmlPath, an, img, f); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %s\n", htmlPath)
		}
		return nil
	}
}

func serveCmd(fs *flag.FlagSet) runner {
	addr := fs.String("addr", "", "listen address (default from config)")

	return func(ctx context.Context, a *app, args []string) error {
		if *addr == "" {
			*addr = a.cfg.Server.ListenAddr
		}
		srv := server.New(a.ux,
			server.WithLogger(a.logger),
			server.WithViewport(uxanalyzer.Viewport{Width: server.DefaultViewportWidth, MaxHeight: a.cfg.Output.MaxHeight}),
		)
		fmt.Fprintf(a.out, "Serving reports on %s\n", *addr)
		return srv.ListenAndServe(ctx, *addr)
	}
}

// writeReport renders the standalone detail page. The issue list embeds
// thumbnails; box links only jump to the list since there is no server.
func (a *app) writeReport(path string, an *types.Analysis, img image.Image, f overlay.Frame) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer out.Close()

	opts := overlay.HTMLOptions{
		ToggleHref: func(b overlay.Box) string { return "#uxa-issues" },
		Thumbnails: a.ux.Thumbnails(an, img, server.DefaultThumbSize),
	}
	return report.Render(out, report.Page{Analysis: an, Frame: f, Overlay: opts, Localizer: a.loc})
}

// printWaits prints one line per result and returns the number of failures
func (a *app) printWaits(results []uxanalyzer.WaitResult) int {
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(a.out, "%s: %s\n", r.ID, a.describe(r.Err))
			continue
		}
		fmt.Fprintf(a.out, "%s: %s, %d highlights\n", r.ID, a.loc.Status(r.Analysis.Status), len(r.Analysis.Highlights))
	}
	return failed
}

func (a *app) printAnalysis(an *types.Analysis) {
	fmt.Fprintf(a.out, "ID:       %s\n", an.ID)
	fmt.Fprintf(a.out, "Status:   %s\n", a.loc.Status(an.Status))
	fmt.Fprintf(a.out, "Created:  %s\n", an.CreatedAt.Local().Format(report.TimeLayout))
	fmt.Fprintf(a.out, "Intent:   %s\n", an.UserIntent)
	fmt.Fprintf(a.out, "Image:    %s", a.ux.ImageURL(an))
	if an.ImageWidth > 0 && an.ImageHeight > 0 {
		fmt.Fprintf(a.out, " (%dx%d)", an.ImageWidth, an.ImageHeight)
	}
	fmt.Fprintln(a.out)

	if len(an.Highlights) > 0 {
		fmt.Fprintf(a.out, "\n%s\n", a.loc.T("issues.title"))
		for _, h := range an.Highlights {
			c := h.Coordinates
			fmt.Fprintf(a.out, "  %2d. [%s] %s: %s (%gx%g at %g,%g)\n",
				h.ID, a.loc.Severity(h.Severity), h.Element, h.Issue, c.Width, c.Height, c.X, c.Y)
		}
	}

	switch an.Status {
	case types.StatusCompleted:
		if an.AIAnalysisResult != "" {
			fmt.Fprintf(a.out, "\n%s\n\n%s\n", a.loc.T("report.result.title"), strings.TrimSpace(an.AIAnalysisResult))
		}
	case types.StatusFailed:
		fmt.Fprintf(a.out, "\n%s\n", a.loc.T("report.failed"))
	}
}

// describe turns known errors into localized messages
func (a *app) describe(err error) string {
	var ve *validation.ValidationError
	var te *poller.TimeoutError
	switch {
	case errors.As(err, &ve):
		return fmt.Sprintf("%s (%v)", a.loc.T(ve.Kind.MessageID()), err)
	case errors.As(err, &te):
		return fmt.Sprintf("%s (%d attempts)", a.loc.T("error.timeout"), te.Attempts)
	case errors.Is(err, poller.ErrAnalysisFailed):
		return a.loc.T("error.failed")
	case errors.Is(err, apiclient.ErrUnauthorized):
		return a.loc.T("error.unauthorized")
	}
	return err.Error()
}

// wrap adds a hint to log in again to authorization failures
func (a *app) wrap(err error) error {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		if rmErr := a.store.Remove(); rmErr != nil {
			a.logger.Printf("Warning: %v", rmErr)
		}
		return fmt.Errorf("%s: %w", a.loc.T("error.unauthorized"), err)
	}
	return err
}

func displayName(u types.User) string {
	if u.Name != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Email
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
