// Package guard decides whether a route may render for the current session.
// Decisions are pure functions of a session snapshot; the gin middleware in
// this package applies them to console routes.
package guard

import (
	"net/url"
	"strings"

	"github.com/stockpile-dev/stockpile/internal/session"
)

// Outcome is what the routing layer should do with a request
type Outcome int

const (
	// Placeholder means the session is still resolving; render a neutral
	// page and do not navigate
	Placeholder Outcome = iota
	// Allow renders the route unchanged
	Allow
	// Redirect navigates to Decision.Location
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Placeholder:
		return "placeholder"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the result of a guard check
type Decision struct {
	Outcome  Outcome
	Location string
}

// Guard gates a route on session state
type Guard interface {
	Decide(s session.Snapshot, requested string) Decision
}

// RequireAuth admits only authenticated sessions. Others are sent to
// LoginPath with the requested location in the next parameter.
type RequireAuth struct {
	LoginPath string
}

// Decide implements Guard
func (g RequireAuth) Decide(s session.Snapshot, requested string) Decision {
	if s.IsLoading {
		return Decision{Outcome: Placeholder}
	}
	if s.AccessToken != "" {
		return Decision{Outcome: Allow}
	}
	return Decision{Outcome: Redirect, Location: LoginLocation(g.LoginPath, requested)}
}

// RequireAnonymous admits only sessions without a credential, for the
// login entry point. Authenticated sessions are sent to HomePath.
type RequireAnonymous struct {
	HomePath string
}

// Decide implements Guard
func (g RequireAnonymous) Decide(s session.Snapshot, _ string) Decision {
	if s.IsLoading {
		return Decision{Outcome: Placeholder}
	}
	if s.AccessToken == "" {
		return Decision{Outcome: Allow}
	}

	home := g.HomePath
	if home == "" {
		home = "/"
	}
	return Decision{Outcome: Redirect, Location: home}
}

// LoginLocation returns loginPath carrying requested as the post-login
// return location. The root path is not carried.
func LoginLocation(loginPath, requested string) string {
	if loginPath == "" {
		loginPath = "/login"
	}
	if requested == "" || requested == "/" || !IsLocalPath(requested) {
		return loginPath
	}
	return loginPath + "?" + url.Values{"next": {requested}}.Encode()
}

// ReturnLocation picks where to go after login: next when it is a local
// absolute path, home otherwise
func ReturnLocation(next, home string) string {
	if next != "" && IsLocalPath(next) {
		return next
	}
	if home == "" {
		return "/"
	}
	return home
}

// IsLocalPath reports whether p is an absolute path on this host. Scheme
// relative ("//evil") and backslash forms are rejected.
func IsLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}
