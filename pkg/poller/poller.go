// Package poller waits for an analysis to leave the processing state.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 60
)

var (
	// ErrTimeout is matched by every *TimeoutError
	ErrTimeout = errors.New("analysis polling timed out")
	// ErrAnalysisFailed is matched by every *AnalysisFailedError
	ErrAnalysisFailed = errors.New("analysis failed")
)

// TimeoutError means the analysis was still processing after the last attempt
type TimeoutError struct {
	ID       string
	Attempts int
	// LastErr is the last transport error, when transport retry is enabled
	LastErr error
}

func (e *TimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("analysis %s not finished after %d attempts (last error: %v)", e.ID, e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("analysis %s not finished after %d attempts", e.ID, e.Attempts)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// AnalysisFailedError means the backend reported the analysis as failed
type AnalysisFailedError struct {
	ID       string
	Analysis *types.Analysis
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis %s failed", e.ID)
}

func (e *AnalysisFailedError) Is(target error) bool { return target == ErrAnalysisFailed }

// Fetcher loads the current state of an analysis
type Fetcher interface {
	GetAnalysis(ctx context.Context, id string) (*types.Analysis, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, id string) (*types.Analysis, error)

func (f FetcherFunc) GetAnalysis(ctx context.Context, id string) (*types.Analysis, error) {
	return f(ctx, id)
}

// Poller repeatedly fetches an analysis until it completes or fails.
// A Poller holds no per-analysis state and can run many waits at once.
type Poller struct {
	fetcher        Fetcher
	interval       time.Duration
	maxAttempts    int
	clock          clockwork.Clock
	transportRetry bool
	logger         *log.Logger
}

// Option configures a Poller
type Option func(*Poller)

// WithInterval sets the pause between fetches
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts sets how many fetches are made before giving up
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// WithTransportRetry makes a failed fetch count as an attempt instead of
// aborting the wait
func WithTransportRetry(enabled bool) Option {
	return func(p *Poller) { p.transportRetry = enabled }
}

// WithLogger sets the logger for progress messages
func WithLogger(l *log.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a poller backed by fetcher
func New(fetcher Fetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		clock:       clockwork.NewRealClock(),
		logger:      log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval returns the configured pause between fetches
func (p *Poller) Interval() time.Duration { return p.interval }

// MaxAttempts returns the configured attempt limit
func (p *Poller) MaxAttempts() int { return p.maxAttempts }

// Wait blocks until analysis id is completed. A failed analysis returns an
// *AnalysisFailedError right away; an analysis still processing after
// MaxAttempts fetches returns a *TimeoutError. Cancelling ctx stops polling
// and returns ctx.Err().
func (p *Poller) Wait(ctx context.Context, id string) (*types.Analysis, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a, err := p.fetcher.GetAnalysis(ctx, id)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !p.transportRetry {
				return nil, fmt.Errorf("failed to fetch analysis %s: %w", id, err)
			}
			lastErr = err
			p.logger.Printf("poller: fetch of %s failed (attempt %d/%d): %v", id, attempt, p.maxAttempts, err)
		case a.Status == types.StatusCompleted:
			p.logger.Printf("poller: analysis %s completed after %d attempts", id, attempt)
			return a, nil
		case a.Status == types.StatusFailed:
			return a, &AnalysisFailedError{ID: id, Analysis: a}
		default:
			p.logger.Printf("poller: analysis %s still %s (attempt %d/%d)", id, a.Status, attempt, p.maxAttempts)
		}

		if attempt >= p.maxAttempts {
			return nil, &TimeoutError{ID: id, Attempts: attempt, LastErr: lastErr}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.clock.After(p.interval):
		}
	}
}

// Handle is a wait running in the background
type Handle struct {
	cancel   context.CancelFunc
	done     chan struct{}
	analysis *types.Analysis
	err      error
}

// Start runs Wait on its own goroutine
func (p *Poller) Start(ctx context.Context, id string) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		h.analysis, h.err = p.Wait(ctx, id)
	}()
	return h
}

// Cancel stops the wait. A fetch in flight sees its context cancelled.
func (h *Handle) Cancel() { h.cancel() }

// Done is closed when the wait has finished
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result blocks until the wait has finished and returns its outcome
func (h *Handle) Result() (*types.Analysis, error) {
	<-h.done
	return h.analysis, h.err
}
