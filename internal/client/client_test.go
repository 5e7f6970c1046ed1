package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-dev/stockpile/internal/models"
)

// staticTokens is a mutable TokenSource
type staticTokens struct {
	mu    sync.Mutex
	token string
}

func (s *staticTokens) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *staticTokens) set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// memoryCookies is an in-memory CookieStore
type memoryCookies struct {
	mu      sync.Mutex
	cookies map[string][]*http.Cookie
}

func newMemoryCookies() *memoryCookies {
	return &memoryCookies{cookies: make(map[string][]*http.Cookie)}
}

func (m *memoryCookies) LoadCookies(baseURL string) ([]*http.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cookies[baseURL], nil
}

func (m *memoryCookies) SaveCookies(baseURL string, cookies []*http.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cookies[baseURL] = cookies
	return nil
}

func newTestAPI(t *testing.T, baseURL string, withCredentials bool) *API {
	t.Helper()

	api, err := New(Options{
		BaseURL:         baseURL,
		Timeout:         2 * time.Second,
		WithCredentials: withCredentials,
		Logger:          zerolog.Nop(),
	})
	require.NoError(t, err)
	return api
}

// mockTokenServer serves /token/ and /token/refresh/ the way the inventory
// API does: login sets an httponly refresh cookie, refresh requires it
func mockTokenServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if req.Email != "a@b.com" || req.Password != "x" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail": "No active account found with the given credentials"}`))
			return
		}

		http.SetCookie(w, &http.Cookie{Name: "refresh", Value: "refresh-1", Path: "/api/token/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: "csrf-1", Path: "/"})
		json.NewEncoder(w).Encode(map[string]string{"access": "access-1"})
	})
	mux.HandleFunc("/api/token/refresh/", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("refresh")
		if err != nil || cookie.Value != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail": "Refresh token missing"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access": "access-2"})
	})

	return httptest.NewServer(mux)
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestLogin_Success(t *testing.T) {
	srv := mockTokenServer(t)
	defer srv.Close()

	api := newTestAPI(t, srv.URL+"/api/", true)

	resp, err := api.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, "access-1", resp.Access)

	csrf, ok := api.Jar().Value(csrfCookieName)
	require.True(t, ok)
	assert.Equal(t, "csrf-1", csrf)
}

func TestLogin_BadCredentials(t *testing.T) {
	srv := mockTokenServer(t)
	defer srv.Close()

	api := newTestAPI(t, srv.URL+"/api", true)

	_, err := api.Login(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "No active account found with the given credentials", Message(err))
}

func TestRefresh_UsesRefreshCookieFromLogin(t *testing.T) {
	srv := mockTokenServer(t)
	defer srv.Close()

	api := newTestAPI(t, srv.URL+"/api", true)

	// no cookie yet
	_, err := api.Refresh(context.Background())
	require.Error(t, err)

	_, err = api.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	token, err := api.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestRefresh_WithoutCredentialsSendsNoCookie(t *testing.T) {
	srv := mockTokenServer(t)
	defer srv.Close()

	api := newTestAPI(t, srv.URL+"/api", false)
	assert.Nil(t, api.Jar())

	_, err := api.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	_, err = api.Refresh(context.Background())
	assert.Error(t, err)
}

func TestJar_PersistsAndRestoresCookies(t *testing.T) {
	srv := mockTokenServer(t)
	defer srv.Close()

	store := newMemoryCookies()
	first, err := New(Options{BaseURL: srv.URL + "/api", WithCredentials: true, Cookies: store, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = first.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	// a new process restores the refresh cookie from the store
	second, err := New(Options{BaseURL: srv.URL + "/api", WithCredentials: true, Cookies: store, Logger: zerolog.Nop()})
	require.NoError(t, err)

	token, err := second.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)

	second.Jar().Reset()
	assert.Empty(t, store.cookies[srv.URL+"/api"])
	_, err = second.Refresh(context.Background())
	assert.Error(t, err)
}

func TestAuthClient_ReadsCredentialPerRequest(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		json.NewEncoder(w).Encode(models.User{ID: 1, Email: "a@b.com"})
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	ac := newTestAPI(t, srv.URL, false).Authenticated(tokens, nil)

	_, err := ac.Me(context.Background())
	require.NoError(t, err)

	tokens.set("token-a")
	_, err = ac.Me(context.Background())
	require.NoError(t, err)

	tokens.set("token-b")
	user, err := ac.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", user.Email)

	assert.Equal(t, []string{"", "Bearer token-a", "Bearer token-b"}, seen)
}

func TestAuthClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "Given token not valid for any token type", "code": "token_not_valid"}`))
	}))
	defer srv.Close()

	var hooked []string
	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "expired"}, func(used string) {
		hooked = append(hooked, used)
	})

	_, err := ac.ListProducts(context.Background(), models.ListParams{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, "Given token not valid for any token type", Message(err))
	assert.Equal(t, []string{"expired"}, hooked)
}

func TestAuthClient_OtherErrorsDoNotInvokeHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"detail": "You do not have permission to perform this action."}`))
	}))
	defer srv.Close()

	called := false
	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "t"}, func(string) { called = true })

	err := ac.DeleteProduct(context.Background(), 3)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, called)
}

func TestAuthClient_TimeoutIsPlainFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	api, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)

	called := false
	ac := api.Authenticated(&staticTokens{token: "t"}, func(string) { called = true })

	_, err = ac.Me(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
	assert.False(t, called)
}

func TestAuthClient_CSRFAndRequestIDHeaders(t *testing.T) {
	var csrf, requestID string
	mux := http.NewServeMux()
	mux.HandleFunc("/token/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: csrfCookieName, Value: "csrf-xyz", Path: "/"})
		json.NewEncoder(w).Encode(map[string]string{"access": "a"})
	})
	mux.HandleFunc("/token/logout/", func(w http.ResponseWriter, r *http.Request) {
		csrf = r.Header.Get(csrfHeaderName)
		requestID = r.Header.Get(requestIDName)
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	api := newTestAPI(t, srv.URL, true)
	_, err := api.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)

	require.NoError(t, api.Authenticated(&staticTokens{token: "a"}, nil).Logout(context.Background()))
	assert.Equal(t, "csrf-xyz", csrf)
	assert.Len(t, requestID, 26)
}

func TestListProducts_EncodesQuery(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{"count": 41, "next": "http://x/v1/products/?limit=20&offset=20", "previous": null, "results": [{"id": 7, "name": "Oat milk", "slug": "oat-milk", "unit": 2, "is_active": true}]}`))
	}))
	defer srv.Close()

	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "t"}, nil)

	page, err := ac.ListProducts(context.Background(), models.ListParams{
		Limit:    20,
		Offset:   20,
		Search:   "milk",
		Ordering: "-name",
		Category: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "category=3&limit=20&offset=20&ordering=-name&search=milk", query)
	assert.Equal(t, 41, page.Count)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "Oat milk", page.Results[0].Name)
	assert.Nil(t, page.Previous)
}

func TestBulkDelete_SendsIDs(t *testing.T) {
	var got models.BulkDeleteRequest
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "t"}, nil)

	require.NoError(t, ac.BulkDeleteUnits(context.Background(), []int{1, 2, 3}))
	assert.Equal(t, "/v1/units/bulk-delete/", path)
	assert.Equal(t, []int{1, 2, 3}, got.IDs)
}

func TestCreateUnit_ValidatesBeforeSending(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 9, "name": "Kilogram", "symbol": "kg"}`))
	}))
	defer srv.Close()

	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "t"}, nil)

	_, err := ac.CreateUnit(context.Background(), models.UnitInput{Name: "Kilogram"})
	require.Error(t, err)
	assert.Equal(t, 0, requests)
	assert.Equal(t, "Symbol is required", Message(err))

	unit, err := ac.CreateUnit(context.Background(), models.UnitInput{Name: "Kilogram", Symbol: "kg"})
	require.NoError(t, err)
	assert.Equal(t, 9, unit.ID)
	assert.Equal(t, 1, requests)
}

func TestProductWrites(t *testing.T) {
	var (
		method string
		path   string
		body   map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body = nil
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 4, "name": "Hex bolt", "unit": 2, "is_active": true}`))
	}))
	defer srv.Close()

	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "t"}, nil)
	category := 3

	product, err := ac.CreateProduct(context.Background(), models.ProductInput{
		Name:     "Hex bolt",
		Unit:     2,
		Category: &category,
		Tags:     []string{"metal"},
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, product.ID)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v1/products/", path)
	assert.Equal(t, "Hex bolt", body["name"])
	assert.Equal(t, float64(3), body["category"])
	assert.Equal(t, []any{"metal"}, body["tags"])

	_, err = ac.UpdateProduct(context.Background(), 4, models.ProductInput{Name: "Hex bolt", Unit: 2})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/v1/products/4/", path)
	assert.Contains(t, body, "category")
	assert.Nil(t, body["category"], "a nil category clears it")
	assert.Equal(t, false, body["is_active"])
}

func TestVariantWrites(t *testing.T) {
	var (
		method string
		path   string
		in     models.VariantInput
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 8, "sku": "HB-500", "size": "500g", "price": "4.20"}`))
	}))
	defer srv.Close()

	ac := newTestAPI(t, srv.URL, false).Authenticated(&staticTokens{token: "t"}, nil)
	want := models.VariantInput{Product: 4, Size: "500g", Price: "4.20", Brand: "Acme", IsActive: true}

	variant, err := ac.CreateVariant(context.Background(), want)
	require.NoError(t, err)
	assert.Equal(t, "HB-500", variant.SKU)
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/v1/variants/", path)
	assert.Equal(t, want, in)

	_, err = ac.UpdateVariant(context.Background(), 8, want)
	require.NoError(t, err)
	assert.Equal(t, http.MethodPatch, method)
	assert.Equal(t, "/v1/variants/8/", path)
}
