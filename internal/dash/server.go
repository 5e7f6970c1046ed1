// Package dash serves the local admin console: login and logout pages and
// list pages for products, variants, categories and units, all backed by
// the process session.
package dash

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stockpile-dev/stockpile/internal/auth"
	"github.com/stockpile-dev/stockpile/internal/guard"
	"github.com/stockpile-dev/stockpile/internal/metrics"
	"github.com/stockpile-dev/stockpile/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options configures the console
type Options struct {
	Addr         string
	LoginPath    string
	HomePath     string
	AllowOrigins []string

	// CacheTTL bounds how long a list page is reused; 30s when zero
	CacheTTL time.Duration

	Version string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Server is the admin console
type Server struct {
	router    *gin.Engine
	provider  *auth.Provider
	cache     *pageCache
	views     []*resourceView
	addr      string
	hosts     []string
	csrfToken string
	loginPath string
	homePath  string
	version   string
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	// expired is set when the session was ended by a rejected credential
	// and cleared once the login page has said so
	expired atomic.Bool

	unsubscribe func()
}

// New creates the console on top of provider. It registers its page cache
// for logout invalidation and becomes the provider's navigator.
func New(provider *auth.Provider, opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	s := &Server{
		provider:  provider,
		cache:     newPageCache(ttl),
		views:     resourceViews(),
		addr:      opts.Addr,
		hosts:     allowedHosts(opts.Addr),
		csrfToken: newCSRFToken(),
		loginPath: opts.LoginPath,
		homePath:  opts.HomePath,
		version:   opts.Version,
		logger:    opts.Logger.With().Str("component", "dash").Logger(),
		metrics:   opts.Metrics,
	}
	if s.loginPath == "" {
		s.loginPath = "/login"
	}
	if s.homePath == "" {
		s.homePath = "/"
	}

	provider.Register(s.cache)
	provider.SetNavigator(auth.NavigatorFunc(s.navigate))
	s.unsubscribe = provider.Store().Subscribe(s.onSessionChange())

	s.setupRouter(tmpl, opts.AllowOrigins)
	return s, nil
}

// Handler returns the console's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter(tmpl *template.Template, origins []string) {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()
	s.router.SetHTMLTemplate(tmpl)

	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.hostGuard())

	if len(origins) > 0 {
		s.router.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	s.router.Use(s.csrfGuard(origins))

	s.router.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	s.router.POST("/logout", s.logout)

	store := s.provider.Store()

	anonymous := s.router.Group("/")
	anonymous.Use(guard.Middleware(guard.RequireAnonymous{HomePath: s.homePath}, store, s.placeholder, s.logger))
	{
		anonymous.GET(s.loginPath, s.loginPage)
		anonymous.POST(s.loginPath, s.login)
	}

	protected := s.router.Group("/")
	protected.Use(guard.Middleware(guard.RequireAuth{LoginPath: s.loginPath}, store, s.placeholder, s.logger))
	{
		protected.GET(s.homePath, s.home)

		for _, v := range s.views {
			protected.GET(v.Path(), s.listPage(v))
			protected.GET(v.Path()+"/:id", s.detailPage(v))
			protected.POST(v.Path()+"/:id", s.updateOne(v))
			protected.POST(v.Path()+"/:id/delete", s.deleteOne(v))
			protected.POST(v.Path()+"/bulk-delete", s.deleteMany(v))
			protected.POST(v.Path(), s.createOne(v))
		}
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	snap := s.provider.Session()
	c.JSON(http.StatusOK, gin.H{
		"status":        "online",
		"timestamp":     time.Now().UTC(),
		"service":       "stockpile-dash",
		"version":       s.version,
		"loading":       snap.IsLoading,
		"authenticated": snap.Authenticated(),
	})
}

// navigate is called once when a rejected credential ends the session.
// Browsers are redirected by the guards on their next request; the login
// page tells the user why.
func (s *Server) navigate(path string) {
	s.expired.Store(true)
	s.logger.Info().Str("path", path).Msg("Session expired, requests will be sent to login")
}

// onSessionChange drops cached pages whenever the signed-in user changes
func (s *Server) onSessionChange() func(session.Snapshot) {
	var lastUser atomic.Int64
	return func(snap session.Snapshot) {
		var id int64
		if snap.User != nil {
			id = int64(snap.User.ID)
		} else if snap.AccessToken != "" {
			// profile still loading; keep what is cached for now
			return
		}
		if lastUser.Swap(id) != id {
			s.cache.Invalidate()
		}
	}
}

// Run serves the console until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("Starting admin console")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down admin console...")
	s.unsubscribe()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down admin console")
		return err
	}

	s.logger.Info().Msg("Admin console stopped")
	return nil
}
