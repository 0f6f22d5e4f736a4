package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/menta2k/ux-analyzer/pkg/session"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	s := session.New("tok-1", nil)
	c, err := New(srv.URL, append([]Option{WithSession(s), WithRetry(time.Millisecond, 2)}, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c, s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestNewRejectsBadScheme(t *testing.T) {
	if _, err := New("ftp://example.com"); err == nil {
		t.Error("Expected error for ftp scheme")
	}
	c, err := New("")
	if err != nil || c.BaseURL() != DefaultBaseURL {
		t.Errorf("Expected default base URL, got %v %v", c, err)
	}
}

func TestImageURL(t *testing.T) {
	c, _ := New("http://localhost:8080/")
	if got := c.ImageURL("uploads/abc.png"); got != "http://localhost:8080/uploads/abc.png" {
		t.Errorf("Unexpected image URL %q", got)
	}
}

func TestGetAnalysisSendsHeaders(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analysis/a1" || r.Method != http.MethodGet {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("Expected a request id")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"id":          "a1",
			"status":      "completed",
			"filePath":    "uploads/a1.png",
			"imageWidth":  1440,
			"imageHeight": 900,
			"highlights": []map[string]any{{
				"id": 1, "element": "CTA", "issue": "Hidden", "severity": "high",
				"coordinates": map[string]float64{"x": 10, "y": 20, "width": 30, "height": 40},
			}},
			"createdAt": "2025-01-02T03:04:05Z",
		})
	}))

	a, err := c.GetAnalysis(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if a.Status != types.StatusCompleted || a.ImageWidth != 1440 || len(a.Highlights) != 1 {
		t.Errorf("Unexpected analysis %+v", a)
	}
	if a.Highlights[0].Coordinates.Height != 40 || a.Highlights[0].Severity != types.SeverityHigh {
		t.Errorf("Unexpected highlight %+v", a.Highlights[0])
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	c, s := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "message": "Unauthorized"})
	}))

	_, err := c.ListAnalyses(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if s.Authenticated() {
		t.Error("Expected session to be cleared")
	}
}

func TestAPIErrorBody(t *testing.T) {
	cases := []struct {
		body   string
		expect string
	}{
		{`{"statusCode":400,"message":"Bad file","error":"Bad Request"}`, "Bad file"},
		{`{"statusCode":400,"message":["userIntent should not be empty","file is required"],"error":"Bad Request"}`, "userIntent should not be empty; file is required"},
		{`plain failure`, "plain failure"},
	}

	for _, tc := range cases {
		c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, tc.body)
		}))

		err := c.DeleteAnalysis(context.Background(), "a1")
		var apiErr *types.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("Expected APIError, got %v", err)
		}
		if apiErr.StatusCode != 400 || apiErr.Message != tc.expect {
			t.Errorf("Expected %q, got %+v", tc.expect, apiErr)
		}
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream"})
			return
		}
		writeJSON(w, http.StatusOK, []map[string]any{{"id": "a1", "status": "processing"}})
	}))

	list, err := c.ListAnalyses(context.Background())
	if err != nil {
		t.Fatalf("ListAnalyses failed: %v", err)
	}
	if len(list) != 1 || calls.Load() != 3 {
		t.Errorf("Expected success on the 3rd call, got %d items after %d calls", len(list), calls.Load())
	}
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := c.GetAnalysis(context.Background(), "a1")
	var apiErr *types.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Fatalf("Expected 503 APIError, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 1 call plus 2 retries, got %d", calls.Load())
	}
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Analysis not found"})
	}))

	if _, err := c.GetAnalysis(context.Background(), "missing"); err == nil {
		t.Fatal("Expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single call, got %d", calls.Load())
	}
}

func TestCreateAnalysisMultipart(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analysis" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm failed: %v", err)
		}
		if got := r.FormValue("userIntent"); got != "Find checkout friction" {
			t.Errorf("Unexpected intent %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile failed: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if string(data) != "PNGDATA" || hdr.Filename != "shot.png" {
			t.Errorf("Unexpected file %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("Expected image/png part, got %q", ct)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": "new-1", "status": "processing"})
	}))

	resp, err := c.CreateAnalysis(context.Background(), strings.NewReader("PNGDATA"), "/tmp/shots/shot.png", "Find checkout friction")
	if err != nil {
		t.Fatalf("CreateAnalysis failed: %v", err)
	}
	if resp.ID != "new-1" || resp.Status != types.StatusProcessing {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestLoginAndLogout(t *testing.T) {
	var loggedOut atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoginRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "kim@example.com" || req.Password != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken": "fresh",
			"user":        map[string]any{"id": "u1", "email": req.Email, "name": "Kim"},
		})
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			t.Errorf("Expected new token on logout")
		}
		loggedOut.Store(true)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Logged out"})
	})
	c, s := newTestClient(t, mux)
	s.Clear()

	if _, err := c.Login(context.Background(), "kim@example.com", "pw"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if s.Token() != "fresh" {
		t.Errorf("Expected token in session, got %q", s.Token())
	}
	if u, _ := s.User(); u.Name != "Kim" {
		t.Errorf("Expected user in session, got %+v", u)
	}

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if !loggedOut.Load() || s.Authenticated() {
		t.Error("Expected logout call and cleared session")
	}
}

func TestContextCancelNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.GetAnalysis(ctx, "a1"); err == nil {
		t.Fatal("Expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected no retry after deadline, got %d calls", calls.Load())
	}
}
