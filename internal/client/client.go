// Package client provides a REST client for the lead-scraping backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/leadwatch/internal/metrics"
	"github.com/raphaelgruber/leadwatch/internal/models"
)

// DefaultTimeout bounds every request unless overridden.
const DefaultTimeout = 15 * time.Second

// ErrUnauthorized is returned when the backend answers 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response other than 401.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token() string
}

// Client is a REST client for the backend. All methods are safe for
// concurrent use.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized func()
	collector      *metrics.Collector
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHook registers fn to run when an authenticated request is
// answered with 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// WithCollector records request timings per endpoint.
func WithCollector(col *metrics.Collector) Option {
	return func(c *Client) { c.collector = col }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stats returns the collected request timings, if a collector is attached.
func (c *Client) Stats() metrics.Snapshot {
	if c.collector == nil {
		return metrics.Snapshot{}
	}
	return c.collector.Snapshot()
}

// errorBody is the error shape the backend returns.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request. op names the endpoint for metrics, path is relative
// to the base URL. A nil result discards the response body.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, result any) (err error) {
	start := time.Now()
	defer func() {
		if c.collector != nil {
			c.collector.RecordTiming(op, time.Since(start), err != nil)
		}
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	requestID := uuid.New().String()
	req.Header.Set("X-Request-ID", requestID)

	authenticated := false
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
			authenticated = true
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusUnauthorized {
		if authenticated && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Method: method, Path: path}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Message = firstNonEmpty(eb.Error, eb.Message)
		}
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if result != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// AUTH
// =============================================================================

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var result models.AuthResponse
	if err := c.do(ctx, "POST /auth/login", http.MethodPost, "/auth/login", nil, credentials{email, password}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Register creates an account and returns its token.
func (c *Client) Register(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	var result models.AuthResponse
	if err := c.do(ctx, "POST /auth/register", http.MethodPost, "/auth/register", nil, credentials{email, password}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// WORKSPACES
// =============================================================================

// ListWorkspaces returns the workspaces of the signed-in user.
func (c *Client) ListWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	var result []models.Workspace
	if err := c.do(ctx, "GET /workspaces", http.MethodGet, "/workspaces", nil, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateWorkspace creates a workspace.
func (c *Client) CreateWorkspace(ctx context.Context, name string) (*models.Workspace, error) {
	var result models.Workspace
	body := map[string]string{"name": name}
	if err := c.do(ctx, "POST /workspaces", http.MethodPost, "/workspaces", nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// LISTS AND LEADS
// =============================================================================

// ListLists returns the lead lists of a workspace.
func (c *Client) ListLists(ctx context.Context, workspaceID string) ([]models.LeadList, error) {
	var result []models.LeadList
	q := url.Values{"workspaceId": {workspaceID}}
	if err := c.do(ctx, "GET /lists", http.MethodGet, "/lists", q, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetList finds one list of a workspace by ID.
func (c *Client) GetList(ctx context.Context, workspaceID, listID string) (*models.LeadList, error) {
	lists, err := c.ListLists(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	for i := range lists {
		if lists[i].ID == listID {
			return &lists[i], nil
		}
	}
	return nil, fmt.Errorf("list %q not found in workspace", listID)
}

// CreateList creates a lead list.
func (c *Client) CreateList(ctx context.Context, input models.CreateListInput) (*models.LeadList, error) {
	var result models.LeadList
	if err := c.do(ctx, "POST /lists", http.MethodPost, "/lists", nil, input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListLeads returns one page of persisted leads.
func (c *Client) ListLeads(ctx context.Context, q models.LeadQuery) (*models.LeadPage, error) {
	var result models.LeadPage
	if err := c.do(ctx, "GET /leads", http.MethodGet, "/leads", q.Values(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// =============================================================================
// SCRAPE JOBS
// =============================================================================

type extendRequest struct {
	WorkspaceID string              `json:"workspaceId"`
	Config      models.ScrapeConfig `json:"config"`
}

// ExtendList starts a scrape job that adds leads to a list. The job's
// progress arrives on the event stream.
func (c *Client) ExtendList(ctx context.Context, listID, workspaceID string, cfg models.ScrapeConfig) (*models.ExtendResponse, error) {
	var result models.ExtendResponse
	path := "/lists/" + url.PathEscape(listID) + "/extend"
	body := extendRequest{WorkspaceID: workspaceID, Config: cfg}
	if err := c.do(ctx, "POST /lists/{id}/extend", http.MethodPost, path, nil, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StopScrape asks the backend to stop the active job of a workspace. The
// job_done event is the confirmation.
func (c *Client) StopScrape(ctx context.Context, workspaceID string) error {
	body := map[string]string{"workspaceId": workspaceID}
	return c.do(ctx, "POST /scrape/stop", http.MethodPost, "/scrape/stop", nil, body, nil)
}

// ListSessions returns the scrape session history of a workspace.
func (c *Client) ListSessions(ctx context.Context, workspaceID string) ([]models.ScrapeSession, error) {
	var result []models.ScrapeSession
	q := url.Values{"workspaceId": {workspaceID}}
	if err := c.do(ctx, "GET /scrape/sessions", http.MethodGet, "/scrape/sessions", q, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Sectors returns the sector catalogue for a use case.
func (c *Client) Sectors(ctx context.Context, useCase string) ([]models.Sector, error) {
	var result []models.Sector
	var q url.Values
	if useCase != "" {
		q = url.Values{"useCase": {useCase}}
	}
	if err := c.do(ctx, "GET /config/sectors", http.MethodGet, "/config/sectors", q, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SaveSectors replaces the sector catalogue.
func (c *Client) SaveSectors(ctx context.Context, sectors []models.Sector) error {
	return c.do(ctx, "POST /config/sectors", http.MethodPost, "/config/sectors", nil, sectors, nil)
}
