package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/avs/internal/address"
	"github.com/TFMV/avs/internal/config"
	"github.com/TFMV/avs/internal/events"
	"github.com/TFMV/avs/internal/metrics"
	"github.com/TFMV/avs/internal/query"
	"github.com/TFMV/avs/internal/store"
	"github.com/TFMV/avs/internal/verify"
)

const testKey = "test-key"

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 8080
	cfg.Store.Driver = config.DriverMemory
	cfg.Auth.AdminUser = "admin"
	cfg.Auth.AdminPassword = "secret"
	return cfg
}

func clayRoad() address.Address {
	return address.Address{
		AddressLine1: "2870 Clay Road",
		City:         "Antioch",
		StateProv:    "TN",
		PostalCode:   "37013-1234",
		Country:      "US",
		ReferenceID:  address.Ref(1),
	}
}

type fixture struct {
	server *Server
	store  *store.Memory
	events *recordingPublisher
}

func newFixture(t *testing.T, cfg *config.Config, seed ...address.Address) *fixture {
	t.Helper()
	mem := store.NewMemory(seed...)
	require.NoError(t, mem.InsertKey(context.Background(), store.APIKey{Key: testKey, ClientIP: "10.0.0.1", Created: time.Now()}))

	pub := &recordingPublisher{}
	srv := NewServer(cfg, Deps{
		Store:    mem,
		Verifier: verify.NewService(mem, verify.Config{}),
		Events:   pub,
	})
	return &fixture{server: srv, store: mem, events: pub}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func adminRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.SetBasicAuth("admin", "secret")
	return req
}

func verifyRequest(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Authorization", testKey)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

const submittedJSON = `{"addressLine1":"2870 clay rd","city":"antioch","stateProv":"Tennessee","postalCode":"37013","country":"USA"}`

func TestVerifyRequiresAPIKey(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	tests := []struct {
		name    string
		key     string
		wantMsg string
	}{
		{"missing", "", "API key is required to access resource - Missing API KEY"},
		{"unknown", "nope", "Invalid API key - Unauthorized access"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", strings.NewReader(submittedJSON))
			if tt.key != "" {
				req.Header.Set("Authorization", tt.key)
			}
			rec := f.do(req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantMsg, body["error"])
			assert.Equal(t, "failure", body["status"])
			assert.NotEmpty(t, body["fail_time"])
		})
	}
}

func TestVerifyExactMatch(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	rec := f.do(verifyRequest("/api/v1/verify", submittedJSON))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	d := decode(t, rec)["avsAddressDetails"].(map[string]any)
	assert.Equal(t, true, d["addressVerified"])
	assert.Equal(t, "Success", d["avsResponseDecision"])
	assert.Equal(t, "2870 clay rd", d["address"].(map[string]any)["addressLine1"])

	recommended := d["recommendedAddresses"].(map[string]any)["recommendedAddress"].(map[string]any)
	assert.Equal(t, "2870 Clay Road", recommended["addressLine1"])
	assert.Equal(t, "37013-1234", recommended["postalCode"])
	assert.Equal(t, "TN", recommended["stateProv"])
}

func TestVerifyBearerKey(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", strings.NewReader(submittedJSON))
	req.Header.Set("Authorization", "Bearer "+testKey)
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestVerifySuppressRecommendation(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	rec := f.do(verifyRequest("/api/v1/verify?nr=F", submittedJSON))
	require.Equal(t, http.StatusOK, rec.Code)

	d := decode(t, rec)["avsAddressDetails"].(map[string]any)
	assert.NotContains(t, d, "recommendedAddresses")
	assert.NotContains(t, d, "nearMatchAddressRecommendation")
}

func TestVerifyNearMatch(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	body := strings.Replace(submittedJSON, "antioch", "Nashville", 1)
	rec := f.do(verifyRequest("/api/v1/verify", body))
	require.Equal(t, http.StatusOK, rec.Code)

	d := decode(t, rec)["avsAddressDetails"].(map[string]any)
	assert.Equal(t, false, d["addressVerified"])
	assert.Equal(t, "Failure", d["avsResponseDecision"])
	near := d["nearMatchAddressRecommendation"].(map[string]any)
	assert.Equal(t, "2870 Clay Road", near["addressLine1"])
	assert.Equal(t, "Antioch", near["city"])
}

func TestVerifyInvalidInput(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	t.Run("validation errors", func(t *testing.T) {
		rec := f.do(verifyRequest("/api/v1/verify", `{"addressLine1":"Clay","city":"Antioch"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		body := decode(t, rec)
		assert.Equal(t, "Invalid address data, please check your input", body["message"])
		errs := body["errors"].(map[string]any)
		assert.Contains(t, errs, "addressLine1")
		assert.Contains(t, errs, "postalCode")
		assert.Contains(t, errs, "stateProv")
		assert.NotContains(t, errs, "city")
	})

	t.Run("street not a string", func(t *testing.T) {
		rec := f.do(verifyRequest("/api/v1/verify", `{"addressLine1":42}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid addressLine1 Input", decode(t, rec)["error"])
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := f.do(verifyRequest("/api/v1/verify", `{`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthIssuesOneKeyPerClient(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	key := body["key"].(string)
	assert.Len(t, key, 64)
	assert.NotEmpty(t, body["time_generated"])

	// The key authenticates verification requests
	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", strings.NewReader(submittedJSON))
	req.Header.Set("Authorization", key)
	assert.Equal(t, http.StatusOK, f.do(req).Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Key already exist. Please use that instead.", decode(t, rec)["error"])
}

func TestAdminRoutesRequireBasicAuth(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/addresses", nil)
	rec := f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized access", decode(t, rec)["error"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/addresses", nil)
	req.SetBasicAuth("admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)

	// No configured credentials locks the routes
	cfg := testConfig()
	cfg.Auth.AdminPassword = ""
	locked := newFixture(t, cfg, clayRoad())
	assert.Equal(t, http.StatusUnauthorized, locked.do(adminRequest(http.MethodGet, "/api/v1/addresses", "")).Code)
}

func TestListAddresses(t *testing.T) {
	austin := address.Address{
		AddressLine1: "12 Oak Street", City: "Austin", StateProv: "TX",
		PostalCode: "78701", Country: "US", ReferenceID: address.Ref(2),
	}
	f := newFixture(t, testConfig(), clayRoad(), austin)

	t.Run("all sorted by city", func(t *testing.T) {
		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses?sort=City", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		var recs []store.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
		require.Len(t, recs, 2)
		assert.Equal(t, "Antioch", recs[0].City)
		assert.Equal(t, "Austin", recs[1].City)
		assert.NotEmpty(t, recs[0].ID)
	})

	t.Run("postal prefix", func(t *testing.T) {
		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses?postalcode=37013", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		var recs []store.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
		require.Len(t, recs, 1)
		assert.Equal(t, "2870 Clay Road", recs[0].AddressLine1)
	})

	t.Run("street in body", func(t *testing.T) {
		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses", `{"addressLine1":"12 Oak Street"}`))
		require.Equal(t, http.StatusOK, rec.Code)

		var recs []store.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recs))
		require.Len(t, recs, 1)
		assert.Equal(t, "Austin", recs[0].City)
	})

	t.Run("csv", func(t *testing.T) {
		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses?format=csv&ref_id=2", ""))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))

		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "id,addressLine1"))
		assert.Contains(t, lines[1], "12 Oak Street")
	})

	t.Run("invalid sort", func(t *testing.T) {
		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses?sort=addressLine1", ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid sort field", decode(t, rec)["Message"])
	})

	t.Run("no match", func(t *testing.T) {
		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses?city=Boston", ""))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "Address not found", decode(t, rec)["Message"])
	})

	t.Run("by id", func(t *testing.T) {
		recs, err := f.store.List(context.Background(), queryAll())
		require.NoError(t, err)

		rec := f.do(adminRequest(http.MethodGet, "/api/v1/addresses?id="+recs[0].ID, ""))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, recs[0].ID, decode(t, rec)["id"])

		rec = f.do(adminRequest(http.MethodGet, "/api/v1/addresses?id=missing", ""))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestCreateAddress(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	body := `{"addressLine1":"12 oak st","city":"austin","stateProv":"Texas","postalCode":"78701","country":"united states","referenceId":2}`
	rec := f.do(adminRequest(http.MethodPost, "/api/v1/address/", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, "success", resp["status"])
	created := resp["newly_created_address"].(map[string]any)
	assert.Equal(t, "12 Oak Street", created["addressLine1"])
	assert.Equal(t, "Austin", created["city"])
	assert.Equal(t, "TX", created["stateProv"])
	assert.Equal(t, "US", created["country"])
	assert.Equal(t, float64(2), created["referenceId"])
	assert.NotEmpty(t, created["id"])
	assert.Equal(t, 2, f.store.Len())

	// Same address in another spelling is a duplicate
	rec = f.do(adminRequest(http.MethodPost, "/api/v1/address", strings.Replace(body, "12 oak st", "12 Oak Street", 1)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Address already exists", decode(t, rec)["message"])

	rec = f.do(adminRequest(http.MethodPost, "/api/v1/address/", `{"addressLine1":"12"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid address data", decode(t, rec)["message"])

	assert.Equal(t, []events.Type{events.Created}, f.events.types())
}

func TestUpdateAddress(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	body := `{"addressLine1":"2870 clay rd","addressLine2":"suite 4","city":"antioch","stateProv":"TN","postalCode":"37013-1234","country":"US"}`
	rec := f.do(adminRequest(http.MethodPut, "/api/v1/address/1", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode(t, rec)
	assert.Equal(t, "Address Updated successfully", resp["message"])
	assert.NotContains(t, resp["old_address"].(map[string]any), "addressLine2")
	updated := resp["new_address"].(map[string]any)
	assert.Equal(t, "Suite 4", updated["addressLine2"])
	assert.Equal(t, float64(1), updated["referenceId"])

	rec = f.do(adminRequest(http.MethodPut, "/api/v1/address/99", body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "99", decode(t, rec)["address_ref_id"])

	rec = f.do(adminRequest(http.MethodPut, "/api/v1/address/abc", body))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(adminRequest(http.MethodPut, "/api/v1/address/1", `{"city":"Antioch"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, []events.Type{events.Updated}, f.events.types())
}

func TestDeleteAddress(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	rec := f.do(adminRequest(http.MethodDelete, "/api/v1/addresses/1", ""))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.Equal(t, "Address deleted successfully", resp["message"])
	assert.Equal(t, "2870 Clay Road", resp["deleted_address"].(map[string]any)["addressLine1"])
	assert.Equal(t, 0, f.store.Len())

	rec = f.do(adminRequest(http.MethodDelete, "/api/v1/addresses/1", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, []events.Type{events.Deleted}, f.events.types())
}

func TestDeleteAddressByID(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())
	recs, err := f.store.List(context.Background(), queryAll())
	require.NoError(t, err)

	rec := f.do(adminRequest(http.MethodDelete, "/api/v1/addresses/"+recs[0].ID, ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	f := newFixture(t, testConfig())

	rec := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	h := rec.Header()
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "1; mode=block", h.Get("X-XSS-Protection"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "Cookie", h.Get("Vary"))
	assert.Equal(t, "max-age=31536000; includeSubDomains", h.Get("Strict-Transport-Security"))
	assert.NotEmpty(t, h.Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", f.do(req).Header().Get(RequestIDHeader))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimits.Enabled = true
	cfg.RateLimits.Auth = 1
	f := newFixture(t, cfg)

	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth", nil)).Code)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Another client has its own allowance
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	assert.Equal(t, http.StatusOK, f.do(req).Code)
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(0, 0)
	rl := newRateLimiter("/x", 2)
	rl.now = func() time.Time { return now }

	ok, _ := rl.allow("a")
	assert.True(t, ok)
	ok, _ = rl.allow("a")
	assert.True(t, ok)
	ok, wait := rl.allow("a")
	assert.False(t, ok)
	assert.Equal(t, 30*time.Minute, wait)

	now = now.Add(30 * time.Minute)
	ok, _ = rl.allow("a")
	assert.True(t, ok)
}

func TestMetricsEndpoint(t *testing.T) {
	mem := store.NewMemory(clayRoad())
	m := metrics.New("")
	srv := NewServer(testConfig(), Deps{
		Store:    mem,
		Verifier: verify.NewService(mem, verify.Config{}, verify.WithObserver(m)),
		Metrics:  m,
	})

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `avs_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestNewAPIKey(t *testing.T) {
	a, err := NewAPIKey()
	require.NoError(t, err)
	b, err := NewAPIKey()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func queryAll() query.Filter {
	return query.Filter{}
}

type brokenStore struct {
	*store.Memory
}

func (b brokenStore) FindOne(context.Context, query.Exact) (*store.Record, error) {
	return nil, store.Wrap("broken.FindOne", "connection refused", errors.New("dial tcp: refused"))
}

func TestVerifyStoreFailure(t *testing.T) {
	st := brokenStore{Memory: store.NewMemory()}
	require.NoError(t, st.InsertKey(context.Background(), store.APIKey{Key: testKey, ClientIP: "10.0.0.1"}))
	srv := NewServer(testConfig(), Deps{Store: st, Verifier: verify.NewService(st, verify.Config{})})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, verifyRequest("/api/v1/verify", submittedJSON))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Database error: connection refused", decode(t, rec)["error"])
}

type keyOutageStore struct {
	*store.Memory
}

func (keyOutageStore) FindKey(context.Context, string) (*store.APIKey, error) {
	return nil, store.Wrap("outage.FindKey", "server selection timeout", errors.New("no reachable servers"))
}

func (keyOutageStore) List(context.Context, query.Filter) ([]store.Record, error) {
	return nil, store.Wrap("outage.List", "server selection timeout", errors.New("no reachable servers"))
}

func TestStoreOutageIsNotUnauthorized(t *testing.T) {
	st := keyOutageStore{Memory: store.NewMemory(clayRoad())}
	srv := NewServer(testConfig(), Deps{Store: st, Verifier: verify.NewService(st, verify.Config{})})

	tests := []struct {
		name string
		req  *http.Request
	}{
		{"api key lookup", verifyRequest("/api/v1/verify", submittedJSON)},
		{"listing", adminRequest(http.MethodGet, "/api/v1/addresses", "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, tt.req)
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Equal(t, "Database error: server selection timeout", decode(t, rec)["error"])
		})
	}
}

func TestVerifyBodyLimit(t *testing.T) {
	f := newFixture(t, testConfig(), clayRoad())

	body := `{"addressLine1":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec := f.do(verifyRequest("/api/v1/verify", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request payload", decode(t, rec)["error"])
}
