package dash

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// csrfCookieName holds the launch token in the browser
	csrfCookieName = "stockpile_csrf"
	// csrfFieldName is the hidden form field every POST form carries
	csrfFieldName = "csrf_token"
)

// newCSRFToken returns the token for one console launch
func newCSRFToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("dash: failed to read random bytes: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// allowedHosts lists the Host headers the console answers to when bound to
// addr. It returns nil when addr listens on every interface; any host is
// accepted then.
func allowedHosts(addr string) []string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return nil
	}

	ip := net.ParseIP(host)
	if host == "" || (ip != nil && ip.IsUnspecified()) {
		return nil
	}

	hosts := []string{strings.ToLower(net.JoinHostPort(host, port))}
	if strings.EqualFold(host, "localhost") || (ip != nil && ip.IsLoopback()) {
		for _, alias := range []string{"127.0.0.1", "localhost", "::1"} {
			if h := net.JoinHostPort(alias, port); !slices.Contains(hosts, h) {
				hosts = append(hosts, h)
			}
		}
	}
	return hosts
}

// hostGuard rejects requests addressed to a host the console is not bound
// to, which is how a rebound DNS name reaches a loopback listener
func (s *Server) hostGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(s.hosts) > 0 && !slices.Contains(s.hosts, strings.ToLower(c.Request.Host)) {
			s.logger.Warn().
				Str("host", c.Request.Host).
				Str("path", c.Request.URL.Path).
				Msg("Rejected request for unknown host")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// csrfGuard hands the launch token to browsers on safe requests and
// rejects state-changing requests that are cross-site or do not echo the
// token back in both the cookie and the form
func (s *Server) csrfGuard(origins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := c.Request
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if cookie, err := r.Cookie(csrfCookieName); err != nil || cookie.Value != s.csrfToken {
				http.SetCookie(c.Writer, &http.Cookie{
					Name:     csrfCookieName,
					Value:    s.csrfToken,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteStrictMode,
				})
			}
			c.Next()
			return
		}

		if reason := s.forgeryReason(r, origins); reason != "" {
			s.logger.Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("origin", r.Header.Get("Origin")).
				Str("reason", reason).
				Msg("Rejected cross-site request")
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

// forgeryReason explains why r cannot be trusted, or returns ""
func (s *Server) forgeryReason(r *http.Request, origins []string) string {
	origin := r.Header.Get("Origin")
	allowed := origin != "" && slices.Contains(origins, origin)

	if !allowed {
		switch r.Header.Get("Sec-Fetch-Site") {
		case "", "same-origin", "none":
		default:
			return "cross-site fetch"
		}

		if origin != "" {
			u, err := url.Parse(origin)
			if err != nil || u.Host == "" || !strings.EqualFold(u.Host, r.Host) {
				return "foreign origin"
			}
		}
	}

	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || !hmac.Equal([]byte(cookie.Value), []byte(s.csrfToken)) {
		return "missing token cookie"
	}
	if !hmac.Equal([]byte(r.PostFormValue(csrfFieldName)), []byte(s.csrfToken)) {
		return "token mismatch"
	}
	return ""
}
