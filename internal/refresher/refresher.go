// Package refresher keeps the session's access credential alive by
// exchanging the server-held refresh cookie for a new access token: once at
// bootstrap, then on a fixed schedule while a credential is held.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stockpile-dev/stockpile/internal/logger"
	"github.com/stockpile-dev/stockpile/internal/metrics"
	"github.com/stockpile-dev/stockpile/internal/session"
)

// DefaultSchedule renews the credential before its short expiry
const DefaultSchedule = "@every 4m"

// TokenRefresher performs one refresh call
type TokenRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Options configures a Refresher
type Options struct {
	// Schedule is a cron spec or descriptor; DefaultSchedule when empty.
	// Ignored when Every is set.
	Schedule string
	// Every sets a fixed interval directly, with sub-second precision
	Every time.Duration
	// Timeout bounds a single refresh call; 0 relies on the client timeout
	Timeout time.Duration

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Refresher is the only background writer of the session store.
//
// A refresh cycle runs from Start (successful bootstrap or login) until Stop
// (logout) or until a scheduled refresh fails. At most one refresh call is in
// flight at any time; ticks that arrive while one is pending are skipped.
type Refresher struct {
	store    session.Writer
	api      TokenRefresher
	schedule cron.Schedule
	timeout  time.Duration
	log      zerolog.Logger
	metrics  *metrics.Metrics

	inFlight atomic.Bool

	mu    sync.Mutex
	cycle *cycle
}

// cycle is one Start..Stop span. Calls made within it use ctx, which Stop
// cancels before waiting for them on calls.
type cycle struct {
	id     uint64
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	calls  sync.WaitGroup
}

var cycleIDs atomic.Uint64

// New creates a Refresher writing to store
func New(store session.Writer, api TokenRefresher, opts Options) (*Refresher, error) {
	var schedule cron.Schedule
	if opts.Every > 0 {
		schedule = every(opts.Every)
	} else {
		spec := opts.Schedule
		if spec == "" {
			spec = DefaultSchedule
		}
		parsed, err := cron.ParseStandard(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
		}
		schedule = parsed
	}

	return &Refresher{
		store:    store,
		api:      api,
		schedule: schedule,
		timeout:  opts.Timeout,
		log:      opts.Logger.With().Str("component", "refresher").Logger(),
		metrics:  opts.Metrics,
	}, nil
}

// Bootstrap performs the single initial refresh. On success the credential
// is stored; on any failure the session is cleared. Either way the loading
// window ends. There is no retry. It reports whether a credential is held.
func (r *Refresher) Bootstrap(ctx context.Context) bool {
	defer r.store.FinishLoading()

	token, err := r.call(ctx)
	if err != nil {
		r.log.Debug().Err(err).Msg("No session at bootstrap")
		r.metrics.Refresh(metrics.RefreshFailure)
		r.store.Clear()
		return false
	}

	r.metrics.Refresh(metrics.RefreshSuccess)
	r.store.Set(token)
	r.log.Info().Str("token", logger.Fingerprint(token)).Msg("Session restored")
	return true
}

// Start begins a refresh cycle. It is a no-op when a cycle is running.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cycle != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &cycle{id: cycleIDs.Add(1), ctx: ctx, cancel: cancel}
	c.cron = cron.New(
		cron.WithLogger(logger.Cron(r.log)),
		cron.WithChain(
			cron.Recover(logger.Cron(r.log)),
			cron.SkipIfStillRunning(logger.Cron(r.log)),
		),
	)
	c.cron.Schedule(r.schedule, cron.FuncJob(func() { r.tick(c) }))
	c.cron.Start()

	r.cycle = c
	r.log.Debug().Uint64("cycle", c.id).Msg("Refresh cycle started")
}

// Stop ends the refresh cycle. A call in flight is cancelled and Stop
// returns only after it has finished, so no refresh request or result
// outlives Stop.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c := r.endLocked()
	r.mu.Unlock()

	if c != nil {
		c.calls.Wait()
	}
}

// endLocked detaches the running cycle and cancels its calls without
// waiting for them
func (r *Refresher) endLocked() *cycle {
	c := r.cycle
	if c == nil {
		return nil
	}

	r.cycle = nil
	c.cancel()
	c.cron.Stop()
	r.log.Debug().Uint64("cycle", c.id).Msg("Refresh cycle stopped")
	return c
}

// Active reports whether a refresh cycle is running
func (r *Refresher) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cycle != nil
}

// Invalidate marks the current credential as stale and re-evaluates it with
// an immediate out-of-schedule refresh. It does nothing outside a refresh
// cycle, so it cannot revive a session after logout.
func (r *Refresher) Invalidate() {
	r.mu.Lock()
	c := r.cycle
	r.mu.Unlock()

	if c != nil {
		go r.tick(c)
	}
}

// tick performs one refresh within cycle c
func (r *Refresher) tick(c *cycle) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.Refresh(metrics.RefreshSkipped)
		r.log.Debug().Msg("Refresh already in flight, skipping")
		return
	}
	defer r.inFlight.Store(false)

	// a job dispatched just before Stop must not reach the network
	if !r.begin(c) {
		return
	}
	defer c.calls.Done()

	token, err := r.call(c.ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	// the cycle ended while the call was pending
	if r.cycle != c {
		r.metrics.Refresh(metrics.RefreshDiscarded)
		r.log.Debug().Msg("Discarding refresh result from an ended cycle")
		return
	}

	if err != nil {
		r.metrics.Refresh(metrics.RefreshFailure)
		r.log.Info().Err(err).Msg("Session refresh failed, clearing session")
		r.store.Clear()
		r.endLocked()
		return
	}

	r.metrics.Refresh(metrics.RefreshSuccess)
	r.store.Set(token)

	event := r.log.Debug().Str("token", logger.Fingerprint(token))
	if exp, ok := session.ExpiresAt(token); ok {
		event = event.Time("expires_at", exp)
	}
	event.Msg("Session refreshed")
}

// begin registers a call in c if c is still the running cycle
func (r *Refresher) begin(c *cycle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cycle != c {
		return false
	}
	c.calls.Add(1)
	return true
}

func (r *Refresher) call(ctx context.Context) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.api.Refresh(ctx)
}

// every is a fixed-interval cron.Schedule. cron.Every rounds to whole
// seconds; this one does not.
type every time.Duration

func (e every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}
