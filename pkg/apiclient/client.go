// Package apiclient talks to the UX analysis backend over its REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/menta2k/ux-analyzer/pkg/session"
	"github.com/menta2k/ux-analyzer/pkg/types"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second

	DefaultRetryBase  = 200 * time.Millisecond
	DefaultMaxRetries = 2

	userAgent = "ux-analyzer/1.0"
)

// ErrUnauthorized is returned for a 401 response. The session is cleared
// before it is returned.
var ErrUnauthorized = errors.New("unauthorized")

// Client is a REST client for the analysis backend
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Session
	logger     *log.Logger

	retryBase  time.Duration
	maxRetries uint64
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithSession injects the session the bearer token is read from
func WithSession(s *session.Session) Option {
	return func(c *Client) { c.session = s }
}

// WithLogger sets the request logger
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetry configures retries of GET requests on transport errors and 5xx
// responses. maxRetries 0 disables them.
func WithRetry(base time.Duration, maxRetries uint64) Option {
	return func(c *Client) {
		c.retryBase = base
		c.maxRetries = maxRetries
	}
}

// New creates a client for baseURL (DefaultBaseURL when empty)
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported base URL scheme: %s (only http and https are supported)", u.Scheme)
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		session:    &session.Session{},
		logger:     log.New(io.Discard, "", 0),
		retryBase:  DefaultRetryBase,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root without a trailing slash
func (c *Client) BaseURL() string { return c.baseURL }

// Session returns the session the client authenticates with
func (c *Client) Session() *session.Session { return c.session }

// ImageURL resolves the public URL of an uploaded file
func (c *Client) ImageURL(filePath string) string {
	return c.baseURL + "/" + strings.TrimPrefix(filePath, "/")
}

// Login exchanges credentials for a token and stores it in the session
func (c *Client) Login(ctx context.Context, email, password string) (*types.AuthResponse, error) {
	body, err := json.Marshal(types.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}

	var resp types.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", bytes.NewReader(body), "application/json", &resp); err != nil {
		return nil, err
	}
	c.session.Set(resp.AccessToken, &resp.User)
	return &resp, nil
}

// Logout revokes the token. The local session is cleared even when the
// backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.session.Clear()
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, "", nil)
}

// CreateAnalysis uploads a screenshot with the user's intent
func (c *Client) CreateAnalysis(ctx context.Context, file io.Reader, filename, userIntent string) (*types.CreateAnalysisResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(filename))))
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.WriteField("userIntent", userIntent); err != nil {
		return nil, fmt.Errorf("failed to write intent: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %w", err)
	}

	var resp types.CreateAnalysisResponse
	if err := c.do(ctx, http.MethodPost, "/analysis", &buf, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAnalyses returns the signed-in user's analyses
func (c *Client) ListAnalyses(ctx context.Context) ([]types.Analysis, error) {
	var resp []types.Analysis
	if err := c.get(ctx, "/analysis", &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetAnalysis fetches one analysis
func (c *Client) GetAnalysis(ctx context.Context, id string) (*types.Analysis, error) {
	var resp types.Analysis
	if err := c.get(ctx, "/analysis/"+url.PathEscape(id), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteAnalysis removes an analysis
func (c *Client) DeleteAnalysis(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/analysis/"+url.PathEscape(id), nil, "", nil)
}

// get is do for idempotent reads, retried on transient failures
func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.maxRetries == 0 {
		return c.do(ctx, http.MethodGet, path, nil, "", out)
	}

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, path, nil, "", out)
		if transient(err) {
			c.logger.Printf("apiclient: GET %s will be retried: %v", path, err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *types.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, ErrUnauthorized) && !errors.Is(err, errDecode)
}

var errDecode = errors.New("failed to parse response")

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", reqID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: failed to send request: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}
	c.logger.Printf("apiclient: %s %s -> %d in %v (request %s)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond), reqID)

	if resp.StatusCode == http.StatusUnauthorized {
		c.session.Clear()
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, errDecode, err)
	}
	return nil
}

// parseAPIError reads the backend's error body. The message may be a string
// or a list of validation messages.
func parseAPIError(status int, data []byte) *types.APIError {
	apiErr := &types.APIError{StatusCode: status}

	var raw struct {
		Message json.RawMessage `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Kind = raw.Error

	var msg string
	var msgs []string
	switch {
	case json.Unmarshal(raw.Message, &msg) == nil:
		apiErr.Message = msg
	case json.Unmarshal(raw.Message, &msgs) == nil:
		apiErr.Message = strings.Join(msgs, "; ")
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
