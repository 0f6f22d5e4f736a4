package client

import (
	"context"
	"io"

	"github.com/menta2k/ux-analyzer/pkg/types"
)

// AnalysisService is the analysis part of the backend API
type AnalysisService interface {
	CreateAnalysis(ctx context.Context, file io.Reader, filename, userIntent string) (*types.CreateAnalysisResponse, error)
	ListAnalyses(ctx context.Context) ([]types.Analysis, error)
	GetAnalysis(ctx context.Context, id string) (*types.Analysis, error)
	DeleteAnalysis(ctx context.Context, id string) error
	ImageURL(filePath string) string
}

// AuthService issues and revokes the bearer token
type AuthService interface {
	Login(ctx context.Context, email, password string) (*types.AuthResponse, error)
	Logout(ctx context.Context) error
}

// Backend is everything the CLI and the report viewer need
type Backend interface {
	AnalysisService
	AuthService
}
