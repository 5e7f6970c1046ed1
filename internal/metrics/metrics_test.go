package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Refresh(RefreshSuccess)
	m.Refresh(RefreshSuccess)
	m.Refresh(RefreshFailure)
	m.Response(http.MethodGet, http.StatusUnauthorized)
	m.Invalidation()
	m.Redirect()

	body := scrape(t, m)
	assert.Contains(t, body, `stockpile_session_refresh_total{outcome="success"} 2`)
	assert.Contains(t, body, `stockpile_session_refresh_total{outcome="failure"} 1`)
	assert.Contains(t, body, `stockpile_api_responses_total{code="401",method="GET"} 1`)
	assert.Contains(t, body, "stockpile_session_invalidations_total 1")
	assert.Contains(t, body, "stockpile_login_redirects_total 1")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Refresh(RefreshSkipped)
		m.Response(http.MethodPost, 200)
		m.Invalidation()
		m.Redirect()
	})
}
