package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

// scripted returns the given statuses in order and repeats the last one
type scripted struct {
	mu       sync.Mutex
	statuses []types.AnalysisStatus
	errs     []error
	calls    int
}

func (s *scripted) GetAnalysis(ctx context.Context, id string) (*types.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return &types.Analysis{ID: id, Status: s.statuses[i]}, nil
}

func (s *scripted) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// advance keeps moving the fake clock forward whenever the poller sleeps
func advance(ctx context.Context, clock *clockwork.FakeClock, d time.Duration) {
	for {
		if err := clock.BlockUntilContext(ctx, 1); err != nil {
			return
		}
		clock.Advance(d)
	}
}

func newTestPoller(f Fetcher, opts ...Option) (*Poller, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	return New(f, append([]Option{WithClock(clock)}, opts...)...), clock
}

func TestDefaults(t *testing.T) {
	p := New(&scripted{})
	if p.Interval() != 5*time.Second {
		t.Errorf("Expected 5s interval, got %v", p.Interval())
	}
	if p.MaxAttempts() != 60 {
		t.Errorf("Expected 60 attempts, got %d", p.MaxAttempts())
	}
}

func TestCompletesAfterProcessing(t *testing.T) {
	for n := 0; n < 4; n++ {
		statuses := make([]types.AnalysisStatus, 0, n+1)
		for i := 0; i < n; i++ {
			statuses = append(statuses, types.StatusProcessing)
		}
		f := &scripted{statuses: append(statuses, types.StatusCompleted)}
		p, clock := newTestPoller(f)

		ctx, cancel := context.WithCancel(context.Background())
		go advance(ctx, clock, DefaultInterval)

		a, err := p.Wait(ctx, "a1")
		cancel()
		if err != nil {
			t.Fatalf("n=%d: Wait failed: %v", n, err)
		}
		if a.Status != types.StatusCompleted {
			t.Errorf("n=%d: expected completed, got %s", n, a.Status)
		}
		if f.count() != n+1 {
			t.Errorf("n=%d: expected %d fetches, got %d", n, n+1, f.count())
		}
	}
}

func TestTimeoutAfterMaxAttempts(t *testing.T) {
	f := &scripted{statuses: []types.AnalysisStatus{types.StatusProcessing}}
	p, clock := newTestPoller(f, WithMaxAttempts(4), WithInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go advance(ctx, clock, time.Second)

	_, err := p.Wait(ctx, "a1")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Attempts != 4 {
		t.Errorf("Expected TimeoutError with 4 attempts, got %v", err)
	}
	if f.count() != 4 {
		t.Errorf("Expected exactly 4 fetches, got %d", f.count())
	}
}

func TestFailedReturnsImmediately(t *testing.T) {
	f := &scripted{statuses: []types.AnalysisStatus{types.StatusProcessing, types.StatusFailed}}
	p, clock := newTestPoller(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go advance(ctx, clock, DefaultInterval)

	a, err := p.Wait(ctx, "a1")
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("Expected ErrAnalysisFailed, got %v", err)
	}
	var fe *AnalysisFailedError
	if !errors.As(err, &fe) || fe.ID != "a1" {
		t.Errorf("Expected AnalysisFailedError for a1, got %v", err)
	}
	if a == nil || a.Status != types.StatusFailed {
		t.Errorf("Expected the failed analysis to be returned")
	}
	if f.count() != 2 {
		t.Errorf("Expected 2 fetches, got %d", f.count())
	}
}

func TestWaitsIntervalBetweenFetches(t *testing.T) {
	f := &scripted{statuses: []types.AnalysisStatus{types.StatusProcessing, types.StatusCompleted}}
	p, clock := newTestPoller(f, WithInterval(3*time.Second))

	ctx := context.Background()
	h := p.Start(ctx, "a1")

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Second)
	if f.count() != 1 {
		t.Fatalf("Expected no second fetch before the interval, got %d", f.count())
	}
	clock.Advance(time.Second)

	if _, err := h.Result(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if f.count() != 2 {
		t.Errorf("Expected 2 fetches, got %d", f.count())
	}
}

func TestCancelStopsFetching(t *testing.T) {
	f := &scripted{statuses: []types.AnalysisStatus{types.StatusProcessing}}
	p, clock := newTestPoller(f)

	ctx := context.Background()
	h := p.Start(ctx, "a1")
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("Wait did not stop after Cancel")
	}
	if _, err := h.Result(); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}

	clock.Advance(time.Hour)
	if f.count() != 1 {
		t.Errorf("Expected no fetch after cancel, got %d", f.count())
	}
}

func TestTransportErrorFailsFast(t *testing.T) {
	boom := errors.New("connection refused")
	f := &scripted{
		statuses: []types.AnalysisStatus{types.StatusCompleted},
		errs:     []error{boom},
	}
	p, _ := newTestPoller(f)

	_, err := p.Wait(context.Background(), "a1")
	if !errors.Is(err, boom) {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if f.count() != 1 {
		t.Errorf("Expected 1 fetch, got %d", f.count())
	}
}

func TestTransportRetryConsumesAttempts(t *testing.T) {
	boom := errors.New("connection reset")
	f := &scripted{
		statuses: []types.AnalysisStatus{types.StatusProcessing, types.StatusProcessing, types.StatusCompleted},
		errs:     []error{boom, boom},
	}
	p, clock := newTestPoller(f, WithTransportRetry(true), WithInterval(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go advance(ctx, clock, time.Second)

	a, err := p.Wait(ctx, "a1")
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if a.Status != types.StatusCompleted || f.count() != 3 {
		t.Errorf("Expected completion on the 3rd fetch, got %s after %d", a.Status, f.count())
	}

	// every attempt failing ends in a timeout that carries the last error
	f = &scripted{statuses: []types.AnalysisStatus{types.StatusProcessing}, errs: []error{boom, boom, boom}}
	p, clock = newTestPoller(f, WithTransportRetry(true), WithMaxAttempts(3), WithInterval(time.Second))
	go advance(ctx, clock, time.Second)

	_, err = p.Wait(ctx, "a1")
	var te *TimeoutError
	if !errors.As(err, &te) || !errors.Is(te.LastErr, boom) {
		t.Errorf("Expected timeout carrying the transport error, got %v", err)
	}
}

func TestPollersAreIndependent(t *testing.T) {
	fa := &scripted{statuses: []types.AnalysisStatus{types.StatusProcessing, types.StatusCompleted}}
	fb := &scripted{statuses: []types.AnalysisStatus{types.StatusFailed}}
	pa, ca := newTestPoller(fa)
	pb, _ := newTestPoller(fb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go advance(ctx, ca, DefaultInterval)

	ha := pa.Start(ctx, "a")
	hb := pb.Start(ctx, "b")

	if _, err := hb.Result(); !errors.Is(err, ErrAnalysisFailed) {
		t.Errorf("Expected b to fail, got %v", err)
	}
	if a, err := ha.Result(); err != nil || a.ID != "a" {
		t.Errorf("Expected a to complete, got %v", err)
	}
}

func TestFetcherFunc(t *testing.T) {
	calls := 0
	p := New(FetcherFunc(func(ctx context.Context, id string) (*types.Analysis, error) {
		calls++
		return &types.Analysis{ID: id, Status: types.StatusCompleted}, nil
	}))

	if _, err := p.Wait(context.Background(), "x"); err != nil || calls != 1 {
		t.Errorf("Expected one call and no error, got %d, %v", calls, err)
	}
}
