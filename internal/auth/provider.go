// Package auth bootstraps and owns the process session. A Provider wires
// the Token Store, the Session Refresher and the API client together and
// exposes the consumer surface: session reads, login, logout and a factory
// for authenticated clients.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/stockpile-dev/stockpile/internal/client"
	"github.com/stockpile-dev/stockpile/internal/logger"
	"github.com/stockpile-dev/stockpile/internal/metrics"
	"github.com/stockpile-dev/stockpile/internal/models"
	"github.com/stockpile-dev/stockpile/internal/refresher"
	"github.com/stockpile-dev/stockpile/internal/session"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a session
	// and none is held
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidCredentials is matched by login input validation failures
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CredentialsError reports the first invalid login field
type CredentialsError struct {
	Field   string
	Message string
}

func (e *CredentialsError) Error() string {
	return e.Message
}

// Is makes errors.Is(err, ErrInvalidCredentials) hold
func (e *CredentialsError) Is(target error) bool {
	return target == ErrInvalidCredentials
}

// Navigator moves the user to another location. The console and the CLI
// each provide one.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

// Navigate calls f(path)
func (f NavigatorFunc) Navigate(path string) {
	f(path)
}

// Invalidator is consumer-side data keyed by session, dropped on logout
type Invalidator interface {
	Invalidate()
}

// Options configures a Provider
type Options struct {
	// RefreshSchedule is a cron descriptor; RefreshEvery wins when set
	RefreshSchedule string
	RefreshEvery    time.Duration

	// LoginPath is where the user is sent after a rejected credential
	LoginPath string
	Navigator Navigator

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Provider is the session provider. One exists per process.
type Provider struct {
	api       *client.API
	store     *session.Store
	refresher *refresher.Refresher
	loginPath string
	nav       Navigator
	log       zerolog.Logger
	metrics   *metrics.Metrics

	profiles    singleflight.Group
	unsubscribe func()

	// redirected holds the store version a login redirect was issued for
	redirected atomic.Uint64

	bootOnce sync.Once

	mu           sync.Mutex
	invalidators []Invalidator
}

// New creates a Provider around api. The session starts in its loading
// state until Bootstrap or Login resolves it.
func New(api *client.API, opts Options) (*Provider, error) {
	log := opts.Logger.With().Str("component", "auth").Logger()

	store := session.New()
	r, err := refresher.New(store, api, refresher.Options{
		Schedule: opts.RefreshSchedule,
		Every:    opts.RefreshEvery,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	loginPath := opts.LoginPath
	if loginPath == "" {
		loginPath = "/login"
	}
	nav := opts.Navigator
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}

	p := &Provider{
		api:       api,
		store:     store,
		refresher: r,
		loginPath: loginPath,
		nav:       nav,
		log:       log,
		metrics:   opts.Metrics,
	}
	p.unsubscribe = store.Subscribe(p.onChange)

	return p, nil
}

// Session returns the current session snapshot
func (p *Provider) Session() session.Snapshot {
	return p.store.Snapshot()
}

// Store returns the read side of the session store
func (p *Provider) Store() session.Reader {
	return p.store
}

// Require returns ErrNotAuthenticated unless a credential is held
func (p *Provider) Require() error {
	if !p.store.Snapshot().Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Client returns an authenticated client. It is cheap; every request it
// makes reads the credential current at that moment.
func (p *Provider) Client() *client.AuthClient {
	return p.api.Authenticated(p.store, p.handleUnauthorized)
}

// SetNavigator replaces the navigator used for login redirects
func (p *Provider) SetNavigator(nav Navigator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nav = nav
}

// LoginPath returns the login entry point
func (p *Provider) LoginPath() string {
	return p.loginPath
}

// Register adds consumer data to drop on logout
func (p *Provider) Register(inv Invalidator) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invalidators = append(p.invalidators, inv)
}

// Bootstrap resolves the initial session with a single refresh call and,
// on success, loads the profile and starts the refresh cycle. Only the
// first call does any work. It reports whether a credential is held.
func (p *Provider) Bootstrap(ctx context.Context) bool {
	p.bootOnce.Do(func() {
		if !p.refresher.Bootstrap(ctx) {
			return
		}

		token := p.store.Token()
		p.fetchProfile(ctx, token)

		// the profile call may have rejected the credential
		if p.store.Token() != "" {
			p.refresher.Start()
		}
	})

	return p.store.Snapshot().Authenticated()
}

// Login validates the credentials, exchanges them for an access token,
// commits it and loads the profile with it. It returns once both are in
// the store. A failed login leaves the existing session untouched; a
// failed profile load rolls the new credential back.
func (p *Provider) Login(ctx context.Context, email, password string) error {
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	resp, err := p.api.Login(ctx, email, password)
	if err != nil {
		p.log.Info().Err(err).Msg("Login rejected")
		return fmt.Errorf("login failed: %w", err)
	}

	p.refresher.Stop()
	p.store.Clear()
	p.store.Set(resp.Access)
	p.store.FinishLoading()

	if _, err := p.loadProfile(ctx, resp.Access); err != nil {
		p.store.ClearIfCurrent(resp.Access)
		return fmt.Errorf("failed to load profile: %w", err)
	}

	p.refresher.Start()

	user := p.store.Snapshot().User
	event := p.log.Info().Str("token", logger.Fingerprint(resp.Access))
	if user != nil {
		event = event.Str("email", user.Email)
	}
	event.Msg("Logged in")

	return nil
}

// Logout stops the refresh cycle, tells the server to drop its refresh
// state, clears the session and the cookie jar and drops consumer data.
// Local state is cleared even when the server call fails; that failure is
// returned.
func (p *Provider) Logout(ctx context.Context) error {
	p.refresher.Stop()

	var serverErr error
	if p.store.Token() != "" {
		serverErr = p.api.Authenticated(p.store, nil).Logout(ctx)
	}

	p.store.Clear()
	p.store.FinishLoading()
	if jar := p.api.Jar(); jar != nil {
		jar.Reset()
	}

	p.mu.Lock()
	invalidators := append([]Invalidator(nil), p.invalidators...)
	p.mu.Unlock()
	for _, inv := range invalidators {
		inv.Invalidate()
	}

	if serverErr != nil {
		p.log.Warn().Err(serverErr).Msg("Server logout failed")
		return fmt.Errorf("server logout failed: %w", serverErr)
	}

	p.log.Info().Msg("Logged out")
	return nil
}

// Close stops background work. The session is left as is.
func (p *Provider) Close() {
	p.unsubscribe()
	p.refresher.Stop()
}

// handleUnauthorized runs for every 401 from a Client. Only a rejection of
// the current credential clears the session; a rejection of a credential
// that has since been rotated is ignored.
func (p *Provider) handleUnauthorized(used string) {
	if p.store.ClearIfCurrent(used) {
		p.metrics.Invalidation()
		p.log.Info().Str("token", logger.Fingerprint(used)).Msg("Credential rejected, session cleared")
		p.refresher.Invalidate()
	}
	p.redirectToLogin()
}

// redirectToLogin navigates to the login path at most once per session
// state, so a burst of rejected requests yields one redirect
func (p *Provider) redirectToLogin() {
	snap := p.store.Snapshot()
	if snap.AccessToken != "" {
		return
	}

	mark := snap.Version + 1
	if p.redirected.Swap(mark) == mark {
		return
	}

	p.mu.Lock()
	nav := p.nav
	p.mu.Unlock()

	p.metrics.Redirect()
	p.log.Debug().Str("path", p.loginPath).Msg("Redirecting to login")
	nav.Navigate(p.loginPath)
}

// onChange starts a profile fetch for every new credential that arrives
// without one, such as a session revived by the refresher. Bootstrap and
// Login fetch synchronously; the shared flight keeps it to one call.
func (p *Provider) onChange(s session.Snapshot) {
	if s.IsLoading || s.AccessToken == "" || s.User != nil {
		return
	}
	go p.fetchProfile(context.Background(), s.AccessToken)
}

// fetchProfile loads the profile for token, treating a 401 like any other
// rejected request
func (p *Provider) fetchProfile(ctx context.Context, token string) {
	_, err := p.loadProfile(ctx, token)
	switch {
	case err == nil, errors.Is(err, ErrNotAuthenticated):
	case errors.Is(err, client.ErrUnauthorized):
		p.handleUnauthorized(token)
	default:
		p.log.Warn().Err(err).Msg("Failed to load profile")
	}
}

// loadProfile fetches the profile with exactly token and caches it if token
// is still current. Concurrent loads for one token share a call.
func (p *Provider) loadProfile(ctx context.Context, token string) (*models.User, error) {
	v, err, _ := p.profiles.Do(token, func() (any, error) {
		snap := p.store.Snapshot()
		if snap.AccessToken != token {
			return nil, ErrNotAuthenticated
		}
		if snap.User != nil {
			return snap.User, nil
		}

		user, err := p.api.Authenticated(fixedToken(token), nil).Me(ctx)
		if err != nil {
			return nil, err
		}
		if !p.store.SetUser(token, user) {
			return nil, ErrNotAuthenticated
		}
		return user, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.User), nil
}

// fixedToken stamps one specific credential
type fixedToken string

func (t fixedToken) Token() string {
	return string(t)
}

var validate = validator.New()

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

func validateCredentials(email, password string) error {
	err := validate.Struct(credentials{Email: email, Password: password})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	fe := verrs[0]
	switch {
	case fe.Field() == "Email" && fe.Tag() == "required":
		return &CredentialsError{Field: "email", Message: "Email is required"}
	case fe.Field() == "Email":
		return &CredentialsError{Field: "email", Message: "Invalid email address"}
	default:
		return &CredentialsError{Field: "password", Message: "Password is required"}
	}
}
