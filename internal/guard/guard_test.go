package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-dev/stockpile/internal/session"
)

var (
	loading         = session.Snapshot{IsLoading: true}
	anonymous       = session.Snapshot{}
	authenticated   = session.Snapshot{AccessToken: "token"}
	loadingWithAuth = session.Snapshot{IsLoading: true, AccessToken: "token"}
)

func TestRequireAuth(t *testing.T) {
	g := RequireAuth{LoginPath: "/login"}

	tests := []struct {
		name      string
		snap      session.Snapshot
		requested string
		want      Decision
	}{
		{"loading", loading, "/products", Decision{Outcome: Placeholder}},
		{"loading ignores token", loadingWithAuth, "/products", Decision{Outcome: Placeholder}},
		{"authenticated", authenticated, "/products", Decision{Outcome: Allow}},
		{"anonymous root", anonymous, "/", Decision{Outcome: Redirect, Location: "/login"}},
		{"anonymous keeps location", anonymous, "/products?search=bolt", Decision{
			Outcome:  Redirect,
			Location: "/login?next=%2Fproducts%3Fsearch%3Dbolt",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Decide(tt.snap, tt.requested))
		})
	}
}

func TestRequireAnonymous(t *testing.T) {
	g := RequireAnonymous{HomePath: "/"}

	assert.Equal(t, Decision{Outcome: Placeholder}, g.Decide(loading, "/login"))
	assert.Equal(t, Decision{Outcome: Allow}, g.Decide(anonymous, "/login"))
	assert.Equal(t, Decision{Outcome: Redirect, Location: "/"}, g.Decide(authenticated, "/login"))

	assert.Equal(t, "/", RequireAnonymous{}.Decide(authenticated, "/login").Location)
}

func TestReturnLocation(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"/products?page=2", "/products?page=2"},
		{"", "/"},
		{"https://evil.example/", "/"},
		{"//evil.example/", "/"},
		{"/\\evil.example", "/"},
		{"products", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			assert.Equal(t, tt.want, ReturnLocation(tt.next, "/"))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "placeholder", Placeholder.String())
	assert.Equal(t, "redirect", Redirect.String())
}

func newRouter(store session.Reader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	placeholder := func(c *gin.Context) {
		c.String(http.StatusOK, "Loading")
	}

	protected := r.Group("/")
	protected.Use(Middleware(RequireAuth{LoginPath: "/login"}, store, placeholder, zerolog.Nop()))
	protected.GET("/products", func(c *gin.Context) { c.String(http.StatusOK, "products") })

	public := r.Group("/")
	public.Use(Middleware(RequireAnonymous{HomePath: "/"}, store, placeholder, zerolog.Nop()))
	public.GET("/login", func(c *gin.Context) { c.String(http.StatusOK, "login form") })

	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_FollowsSessionState(t *testing.T) {
	store := session.New()
	r := newRouter(store)

	// resolving
	w := get(r, "/products")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Loading", w.Body.String())
	w = get(r, "/login")
	assert.Equal(t, "Loading", w.Body.String())

	// bootstrap failed
	store.FinishLoading()
	w = get(r, "/products?ordering=-name")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fproducts%3Fordering%3D-name", w.Header().Get("Location"))
	w = get(r, "/login")
	assert.Equal(t, "login form", w.Body.String())

	// signed in
	store.Set("token")
	w = get(r, "/products")
	assert.Equal(t, "products", w.Body.String())
	w = get(r, "/login")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
}
