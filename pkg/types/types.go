package types

import (
	"fmt"
	"time"
)

// Severity is the importance of a UX issue
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Valid reports whether s is one of the three known levels
func (s Severity) Valid() bool {
	switch s {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Coordinates is a bounding box in original-image pixel space
type Coordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// HighlightRegion is one issue region returned by the backend
type HighlightRegion struct {
	ID          int         `json:"id"`
	Element     string      `json:"element"`
	Issue       string      `json:"issue"`
	Severity    Severity    `json:"severity"`
	Coordinates Coordinates `json:"coordinates"`
}

// AnalysisStatus is the lifecycle state of an analysis
type AnalysisStatus string

const (
	StatusProcessing AnalysisStatus = "processing"
	StatusCompleted  AnalysisStatus = "completed"
	StatusFailed     AnalysisStatus = "failed"
)

// Terminal reports whether no further transition can happen
func (s AnalysisStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Analysis is the analysis resource as served by the backend
type Analysis struct {
	ID               string            `json:"id"`
	UserID           string            `json:"userId"`
	FilePath         string            `json:"filePath"`
	UserIntent       string            `json:"userIntent"`
	Status           AnalysisStatus    `json:"status"`
	AIAnalysisResult string            `json:"aiAnalysisResult,omitempty"`
	ImageWidth       int               `json:"imageWidth,omitempty"`
	ImageHeight      int               `json:"imageHeight,omitempty"`
	Highlights       []HighlightRegion `json:"highlights,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// CreateAnalysisResponse is returned right after an upload
type CreateAnalysisResponse struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	FilePath   string         `json:"filePath"`
	UserIntent string         `json:"userIntent"`
	Status     AnalysisStatus `json:"status"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// User is the account the session belongs to
type User struct {
	ID        string     `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	Age       *int       `json:"age,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the issued access token
type AuthResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
}

// MessageResponse is the generic acknowledgement body
type MessageResponse struct {
	Message string `json:"message"`
}

// APIError is the error body of a non-2xx response
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Kind       string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}
