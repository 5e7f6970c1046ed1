package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"

	"github.com/stockpile-dev/stockpile/internal/auth"
	"github.com/stockpile-dev/stockpile/internal/client"
	"github.com/stockpile-dev/stockpile/internal/config"
	"github.com/stockpile-dev/stockpile/internal/logger"
	"github.com/stockpile-dev/stockpile/internal/metrics"
)

// Option customizes how a command runs. Production code passes none;
// tests inject configuration, output and prompts.
type Option func(*env)

// WithConfig uses cfg instead of loading configuration
func WithConfig(cfg *config.Config) Option {
	return func(r *env) { r.cfg = cfg }
}

// WithOutput redirects command output
func WithOutput(w io.Writer) Option {
	return func(r *env) { r.out = w }
}

// WithCookieStore persists API cookies in store instead of the OS keyring
func WithCookieStore(store client.CookieStore) Option {
	return func(r *env) { r.cookies = store }
}

// WithConfirm replaces the interactive yes/no prompt
func WithConfirm(fn func(label string) (bool, error)) Option {
	return func(r *env) { r.confirm = fn }
}

// WithPasswordPrompt replaces the terminal password prompt
func WithPasswordPrompt(fn func() (string, error)) Option {
	return func(r *env) { r.readPassword = fn }
}

// WithLogger replaces the stderr logger
func WithLogger(l zerolog.Logger) Option {
	return func(r *env) { r.log = &l }
}

// withDefaultLogLevel sets the level used when LOG_LEVEL is unset
func withDefaultLogLevel(level string) Option {
	return func(r *env) { r.defaultLevel = level }
}

// env is what a command needs to talk to the API
type env struct {
	cfg          *config.Config
	out          io.Writer
	cookies      client.CookieStore
	confirm      func(label string) (bool, error)
	readPassword func() (string, error)
	log          *zerolog.Logger
	defaultLevel string

	metrics  *metrics.Metrics
	api      *client.API
	provider *auth.Provider
}

func newEnv(opts []Option) (*env, error) {
	r := &env{
		out:          os.Stdout,
		cookies:      auth.Keyring{},
		confirm:      promptConfirm,
		readPassword: promptPassword,
		defaultLevel: "warn",
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		r.cfg = cfg
	}

	if r.log == nil {
		// keep command output clean unless asked otherwise
		level := r.cfg.Logging.Level
		if os.Getenv("LOG_LEVEL") == "" {
			level = r.defaultLevel
		}
		logger.Init(level, r.cfg.Logging.Format)
		l := logger.GetLogger()
		r.log = &l
	}

	r.metrics = metrics.New()

	api, err := client.New(client.Options{
		BaseURL:         r.cfg.BaseURL(),
		Timeout:         r.cfg.API.Timeout,
		WithCredentials: r.cfg.API.WithCredentials,
		Cookies:         r.cookies,
		Logger:          *r.log,
		Metrics:         r.metrics,
	})
	if err != nil {
		return nil, err
	}
	r.api = api

	provider, err := auth.New(api, auth.Options{
		RefreshSchedule: r.cfg.Session.RefreshSchedule,
		LoginPath:       r.cfg.Session.LoginPath,
		Navigator:       auth.NavigatorFunc(r.sessionExpired),
		Logger:          *r.log,
		Metrics:         r.metrics,
	})
	if err != nil {
		return nil, err
	}
	r.provider = provider

	return r, nil
}

// close stops the provider's background work
func (r *env) close() {
	r.provider.Close()
}

// sessionExpired is the CLI's login redirect
func (r *env) sessionExpired(string) {
	fmt.Fprintln(r.out, "Session expired. Run 'stockpile login' to sign in again.")
}

// session resolves the stored session and fails when there is none
func (r *env) session(ctx context.Context) (*client.AuthClient, error) {
	if !r.provider.Bootstrap(ctx) {
		return nil, fmt.Errorf("%w. Run 'stockpile login' first", auth.ErrNotAuthenticated)
	}
	return r.provider.Client(), nil
}

// apiError shortens API errors to the server's message
func apiError(action string, err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		return fmt.Errorf("%s: %w", action, err)
	}
	var (
		apiErr  *client.APIError
		invalid *client.ValidationError
	)
	if errors.As(err, &apiErr) || errors.As(err, &invalid) {
		return fmt.Errorf("%s: %s", action, client.Message(err))
	}
	return fmt.Errorf("%s: %w", action, err)
}

func promptConfirm(label string) (bool, error) {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, fmt.Errorf("confirmation cancelled: %w", err)
	}
	return true, nil
}
