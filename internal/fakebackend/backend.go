// Package fakebackend is an in-memory client.Backend for tests.
package fakebackend

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

// Upload records one CreateAnalysis call
type Upload struct {
	Filename string
	Intent   string
	Data     []byte
}

// Backend stores analyses in a map. Progress lets a test script the statuses
// GetAnalysis reports before the stored analysis is returned.
type Backend struct {
	mu sync.Mutex

	ImageBase string
	Analyses  map[string]*types.Analysis
	Progress  map[string][]types.AnalysisStatus
	Uploads   []Upload
	Gets      map[string]int
	Deleted   []string

	// GetErr is returned by GetAnalysis when set
	GetErr error
	Token  string
}

// New creates an empty backend serving images below imageBase
func New(imageBase string) *Backend {
	return &Backend{
		ImageBase: strings.TrimSuffix(imageBase, "/"),
		Analyses:  make(map[string]*types.Analysis),
		Progress:  make(map[string][]types.AnalysisStatus),
		Gets:      make(map[string]int),
	}
}

// Put stores a copy of a
func (b *Backend) Put(a types.Analysis) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Analyses[a.ID] = &a
}

func (b *Backend) CreateAnalysis(ctx context.Context, file io.Reader, filename, userIntent string) (*types.CreateAnalysisResponse, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	now := time.Now()
	b.Uploads = append(b.Uploads, Upload{Filename: filename, Intent: userIntent, Data: data})
	b.Analyses[id] = &types.Analysis{
		ID:         id,
		FilePath:   "uploads/" + filename,
		UserIntent: userIntent,
		Status:     types.StatusCompleted,
		CreatedAt:  now,
	}
	return &types.CreateAnalysisResponse{
		ID:         id,
		FilePath:   "uploads/" + filename,
		UserIntent: userIntent,
		Status:     types.StatusProcessing,
		CreatedAt:  now,
	}, nil
}

func (b *Backend) ListAnalyses(ctx context.Context) ([]types.Analysis, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]types.Analysis, 0, len(b.Analyses))
	for _, a := range b.Analyses {
		out = append(out, *a)
	}
	return out, nil
}

func (b *Backend) GetAnalysis(ctx context.Context, id string) (*types.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.Gets[id]++
	if b.GetErr != nil {
		return nil, b.GetErr
	}
	a, ok := b.Analyses[id]
	if !ok {
		return nil, &types.APIError{StatusCode: 404, Message: fmt.Sprintf("analysis %s not found", id)}
	}
	cp := *a
	if steps := b.Progress[id]; len(steps) > 0 {
		cp.Status = steps[0]
		b.Progress[id] = steps[1:]
	}
	return &cp, nil
}

func (b *Backend) DeleteAnalysis(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.Analyses[id]; !ok {
		return &types.APIError{StatusCode: 404, Message: "not found"}
	}
	delete(b.Analyses, id)
	b.Deleted = append(b.Deleted, id)
	return nil
}

func (b *Backend) ImageURL(filePath string) string {
	return b.ImageBase + "/" + strings.TrimPrefix(filePath, "/")
}

func (b *Backend) Login(ctx context.Context, email, password string) (*types.AuthResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Token = "token-" + email
	return &types.AuthResponse{User: types.User{ID: "u1", Email: email}, AccessToken: b.Token}, nil
}

func (b *Backend) Logout(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Token = ""
	return nil
}

// GetCount returns how often id was fetched
func (b *Backend) GetCount(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Gets[id]
}
