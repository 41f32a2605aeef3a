package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/avs/internal/verify"
)

func TestObserveVerification(t *testing.T) {
	m := New("")

	m.ObserveVerification(verify.OutcomeExact, 0, time.Millisecond)
	m.ObserveVerification(verify.OutcomeNearMatch, 12, time.Millisecond)
	m.ObserveVerification(verify.OutcomeNearMatch, 3, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("exact")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.verifications.WithLabelValues("near_match")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.verifications.WithLabelValues("error")))
}

func TestMiddlewareLabelsRouteTemplate(t *testing.T) {
	m := New("test")

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/v1/addresses/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodDelete)

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/addresses/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.requestsTotal.WithLabelValues(http.MethodDelete, "/api/v1/addresses/{id}", "404"))
	assert.Equal(t, 3.0, got)
}

func TestHandler(t *testing.T) {
	m := New("")
	m.RateLimited("/api/v1/verify")
	m.EventPublishFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `avs_rate_limited_total{route="/api/v1/verify"} 1`))
	assert.True(t, strings.Contains(body, "avs_event_publish_errors_total 1"))
}
