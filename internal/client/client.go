package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/stockpile-dev/stockpile/internal/metrics"
)

const (
	// DefaultTimeout bounds every API call unless configured otherwise
	DefaultTimeout = 5 * time.Second

	csrfCookieName = "csrftoken"
	csrfHeaderName = "X-CSRFToken"
	requestIDName  = "X-Request-ID"
)

// Options configures an API client
type Options struct {
	BaseURL string
	Timeout time.Duration

	// WithCredentials enables the cookie jar carrying the refresh cookie
	WithCredentials bool

	// Cookies persists the jar between processes; optional
	Cookies CookieStore

	// Transport overrides the default transport, mainly for tests
	Transport http.RoundTripper

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// API is the client for the inventory REST API. Calls made directly on API
// are unauthenticated; Authenticated derives a client that stamps the
// current access credential.
type API struct {
	baseURL    string
	httpClient *http.Client
	jar        *Jar
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// New creates a new API client
func New(opts Options) (*API, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: opts.Transport,
	}

	c := &API{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     opts.Logger.With().Str("component", "api").Logger(),
		metrics:    opts.Metrics,
	}

	if opts.WithCredentials {
		jar, err := NewJar(opts.BaseURL, opts.Cookies, c.logger)
		if err != nil {
			return nil, err
		}
		c.jar = jar
		httpClient.Jar = jar
	}

	return c, nil
}

// BaseURL returns the API base URL without a trailing slash
func (c *API) BaseURL() string {
	return c.baseURL
}

// Jar returns the cookie jar, or nil when credentials are disabled
func (c *API) Jar() *Jar {
	return c.jar
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TokenResponse is returned by the token and token refresh endpoints
type TokenResponse struct {
	Access string `json:"access"`
}

// Login exchanges credentials for an access token. The server also sets
// the refresh cookie, which lands in the jar.
func (c *API) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/token/", nil, LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, err
	}

	var tokenResp TokenResponse
	if err := c.send(req, &tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.Access == "" {
		return nil, fmt.Errorf("login response did not include an access token")
	}

	return &tokenResp, nil
}

// Refresh exchanges the refresh cookie for a new access token. Any non-2xx
// response means there is no valid session.
func (c *API) Refresh(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/token/refresh/", nil, nil)
	if err != nil {
		return "", err
	}

	var tokenResp TokenResponse
	if err := c.send(req, &tokenResp); err != nil {
		return "", err
	}
	if tokenResp.Access == "" {
		return "", fmt.Errorf("refresh response did not include an access token")
	}

	return tokenResp.Access, nil
}

// newRequest builds a request against the API. body, when not nil, is sent
// as JSON.
func (c *API) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(requestIDName, ulid.Make().String())

	return req, nil
}

// send performs req and decodes a 2xx JSON body into out when out is not nil
func (c *API) send(req *http.Request, out any) error {
	_, err := c.sendStatus(req, out)
	return err
}

// sendStatus is send that also reports the response status, 0 when no
// response arrived
func (c *API) sendStatus(req *http.Request, out any) (int, error) {
	start := time.Now()

	client := c.httpClient
	if c.jar != nil {
		pinned := *c.httpClient
		pinned.Jar = c.jar.pinned()
		client = &pinned
	}

	resp, err := client.Do(req)
	if err != nil {
		c.logger.Debug().
			Err(err).
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Msg("API request failed")
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Str("request_id", req.Header.Get(requestIDName)).
		Msg("API request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, newAPIError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}

	return resp.StatusCode, nil
}
