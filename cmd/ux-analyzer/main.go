package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	uxanalyzer "github.com/menta2k/ux-analyzer"
	"github.com/menta2k/ux-analyzer/internal/config"
	"github.com/menta2k/ux-analyzer/pkg/apiclient"
	"github.com/menta2k/ux-analyzer/pkg/locale"
	"github.com/menta2k/ux-analyzer/pkg/poller"
	"github.com/menta2k/ux-analyzer/pkg/session"
)

const usage = `usage: ux-analyzer <command> [flags] [args]

commands:
  login     -email E [-password P]      log in and cache the token
  logout                                revoke and forget the token
  whoami                                show the logged-in user
  upload    -intent I [-wait] paths...  upload screenshots or directories
  list                                  list analyses, newest first
  get       [-json] id                  show one analysis and its highlights
  wait      ids...                      wait until analyses finish
  delete    ids...                      delete analyses
  render    [-format png] [-html] id    write an annotated image
  serve     [-addr :8090]               serve the report viewer
  version                               print the version

every command accepts -config path and -v (verbose)`

// runner executes a command once its flags are parsed
type runner func(ctx context.Context, a *app, args []string) error

// setup registers a command's flags and returns its runner
type setup func(fs *flag.FlagSet) runner

var commands = map[string]setup{
	"login":  loginCmd,
	"logout": logoutCmd,
	"whoami": whoamiCmd,
	"upload": uploadCmd,
	"list":   listCmd,
	"get":    getCmd,
	"wait":   waitCmd,
	"delete": deleteCmd,
	"render": renderCmd,
	"serve":  serveCmd,
}

// app is the state shared by all commands
type app struct {
	cfg    *config.Config
	store  *session.FileStore
	api    *apiclient.Client
	ux     *uxanalyzer.Analyzer
	loc    *locale.Localizer
	logger *log.Logger
	out    io.Writer
}

func main() {
	log.SetFlags(0)
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(ctx, cmd, args, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "version", "-version", "--version":
		fmt.Fprintln(out, uxanalyzer.GetVersion())
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprintln(out, usage)
		return nil
	}

	setupFn, ok := commands[cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command")
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	configPath := fs.String("config", config.GetConfigPath(), "config file")
	verbose := fs.Bool("v", false, "verbose logging")
	runFn := setupFn(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath, *verbose, out)
	if err != nil {
		return err
	}
	return runFn(ctx, a, fs.Args())
}

func newApp(configPath string, verbose bool, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := log.New(io.Discard, "", 0)
	if verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	store, err := session.NewFileStore(cfg.Session.Path, cfg.Session.Key, logger)
	if err != nil {
		return nil, err
	}
	sess := store.Load()
	if cfg.Session.Token != "" {
		sess = session.New(cfg.Session.Token, nil)
	}

	api, err := apiclient.New(cfg.API.BaseURL,
		apiclient.WithTimeout(cfg.Timeout()),
		apiclient.WithSession(sess),
		apiclient.WithRetry(apiclient.DefaultRetryBase, uint64(cfg.API.Retries)),
		apiclient.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	catalog := locale.MustNew()
	ux := uxanalyzer.New(api,
		uxanalyzer.WithLogger(logger),
		uxanalyzer.WithLocale(catalog, cfg.Locale),
		uxanalyzer.WithPollerOptions(
			poller.WithInterval(cfg.PollInterval()),
			poller.WithMaxAttempts(cfg.Poller.MaxAttempts),
			poller.WithTransportRetry(cfg.Poller.RetryTransport),
		),
	)

	return &app{
		cfg:    cfg,
		store:  store,
		api:    api,
		ux:     ux,
		loc:    catalog.For(cfg.Locale),
		logger: logger,
		out:    out,
	}, nil
}
