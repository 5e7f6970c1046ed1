package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// TokenSource yields the current access credential, "" when absent
type TokenSource interface {
	Token() string
}

// UnauthorizedFunc is invoked once per 401 response with the credential
// the rejected request was stamped with
type UnauthorizedFunc func(usedToken string)

// AuthClient issues authenticated API calls. It is cheap to create; each
// request reads the credential from the TokenSource when it is built, so a
// client never goes stale.
type AuthClient struct {
	api            *API
	tokens         TokenSource
	onUnauthorized UnauthorizedFunc
}

// Authenticated returns a client stamping credentials from tokens.
// onUnauthorized may be nil.
func (c *API) Authenticated(tokens TokenSource, onUnauthorized UnauthorizedFunc) *AuthClient {
	return &AuthClient{
		api:            c,
		tokens:         tokens,
		onUnauthorized: onUnauthorized,
	}
}

// Do performs an authenticated call. A 401 response invokes the
// unauthorized hook and is returned as an *APIError matching
// ErrUnauthorized; the call is never retried.
func (a *AuthClient) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := a.api.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	token := a.tokens.Token()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if a.api.jar != nil {
		if csrf, ok := a.api.jar.Value(csrfCookieName); ok {
			req.Header.Set(csrfHeaderName, csrf)
		}
	}

	status, err := a.api.sendStatus(req, out)
	if status != 0 {
		a.api.metrics.Response(method, status)
	}

	if err != nil && errors.Is(err, ErrUnauthorized) {
		a.api.logger.Info().
			Str("method", method).
			Str("path", path).
			Msg("API rejected credential")
		if a.onUnauthorized != nil {
			a.onUnauthorized(token)
		}
	}

	return err
}

// Get performs an authenticated GET
func (a *AuthClient) Get(ctx context.Context, path string, query url.Values, out any) error {
	return a.Do(ctx, http.MethodGet, path, query, nil, out)
}

// Post performs an authenticated POST with a JSON body
func (a *AuthClient) Post(ctx context.Context, path string, body, out any) error {
	return a.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Patch performs an authenticated PATCH with a JSON body
func (a *AuthClient) Patch(ctx context.Context, path string, body, out any) error {
	return a.Do(ctx, http.MethodPatch, path, nil, body, out)
}

// Delete performs an authenticated DELETE
func (a *AuthClient) Delete(ctx context.Context, path string) error {
	return a.Do(ctx, http.MethodDelete, path, nil, nil, nil)
}
