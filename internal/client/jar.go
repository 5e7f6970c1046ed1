package client

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"
)

// CookieStore persists the API's cookies (the refresh credential among them)
// between processes
type CookieStore interface {
	LoadCookies(baseURL string) ([]*http.Cookie, error)
	SaveCookies(baseURL string, cookies []*http.Cookie) error
}

// Jar is a cookie jar scoped to the API base URL that mirrors the cookies
// the API sets into a CookieStore
type Jar struct {
	key   string
	base  *url.URL
	store CookieStore
	log   zerolog.Logger

	mu    sync.Mutex
	inner *cookiejar.Jar
	// kept keeps the full attributes the server sent, which cookiejar
	// does not hand back, keyed by cookieKey
	kept map[string]*http.Cookie
	// epoch advances on Reset; responses to requests sent in an earlier
	// epoch cannot set cookies
	epoch uint64
}

// NewJar creates a jar for baseURL and restores persisted cookies from
// store when one is given
func NewJar(baseURL string, store CookieStore, log zerolog.Logger) (*Jar, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	j := &Jar{
		key:   baseURL,
		base:  base,
		store: store,
		log:   log,
		inner: inner,
		kept:  make(map[string]*http.Cookie),
	}

	if store != nil {
		cookies, err := store.LoadCookies(baseURL)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to restore persisted cookies")
		}
		now := time.Now()
		for _, c := range cookies {
			if !c.Expires.IsZero() && c.Expires.Before(now) {
				continue
			}
			j.kept[cookieKey(c)] = c
		}
		if len(j.kept) > 0 {
			j.inner.SetCookies(base, j.keptList())
			log.Debug().Int("count", len(j.kept)).Msg("Restored persisted cookies")
		}
	}

	return j, nil
}

// SetCookies implements http.CookieJar
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.setCookiesLocked(u, cookies)
}

// setCookiesAt stores cookies from a response to a request sent in epoch.
// They are dropped when the jar was reset since.
func (j *Jar) setCookiesAt(epoch uint64, u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if epoch != j.epoch {
		j.log.Debug().Int("count", len(cookies)).Msg("Dropping cookies from a request sent before reset")
		return
	}
	j.setCookiesLocked(u, cookies)
}

// setCookiesLocked must be called with mu held
func (j *Jar) setCookiesLocked(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)

	if u.Host != j.base.Host {
		return
	}

	now := time.Now()
	for _, c := range cookies {
		key := cookieKey(c)
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.kept, key)
			continue
		}
		kept := *c
		if c.MaxAge > 0 {
			kept.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
			kept.MaxAge = 0
		}
		j.kept[key] = &kept
	}

	j.persist()
}

// pinned returns a view of the jar for one request. Cookies the response
// sets are kept only if the jar was not reset while it was in flight.
func (j *Jar) pinned() http.CookieJar {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &pinnedJar{jar: j, epoch: j.epoch}
}

type pinnedJar struct {
	jar   *Jar
	epoch uint64
}

func (p *pinnedJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	p.jar.setCookiesAt(p.epoch, u, cookies)
}

func (p *pinnedJar) Cookies(u *url.URL) []*http.Cookie {
	return p.jar.Cookies(u)
}

// cookieKey identifies a cookie the way a browser does: name, domain and
// path together
func cookieKey(c *http.Cookie) string {
	domain := strings.TrimPrefix(strings.ToLower(c.Domain), ".")
	path := c.Path
	if path == "" {
		path = "/"
	}
	return c.Name + "|" + domain + "|" + path
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Value returns the value of the named cookie as it would be sent to the
// API base URL
func (j *Jar) Value(name string) (string, bool) {
	for _, c := range j.Cookies(j.base) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Reset drops every cookie, in memory and in the store
func (j *Jar) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()

	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to recreate cookie jar")
		return
	}
	j.inner = inner
	j.kept = make(map[string]*http.Cookie)
	j.epoch++
	j.persist()
}

func (j *Jar) keptList() []*http.Cookie {
	list := make([]*http.Cookie, 0, len(j.kept))
	for _, c := range j.kept {
		list = append(list, c)
	}
	return list
}

// persist must be called with mu held
func (j *Jar) persist() {
	if j.store == nil {
		return
	}
	if err := j.store.SaveCookies(j.key, j.keptList()); err != nil {
		j.log.Warn().Err(err).Msg("Failed to persist cookies")
	}
}
