package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/sundayezeilo/linkstat/internal/auth"
)

const e2eSecret = "e2e-jwt-secret-that-is-long-enough!!"

// testApp is a fully wired App running against real Postgres and MongoDB
// containers and an in-process Redis.
type testApp struct {
	*App
	handler http.Handler
	jwt     *auth.JWT
}

func setupTestApp(t *testing.T) *testApp {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container e2e test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	mongoContainer, err := tcmongo.Run(ctx, "mongo:7")
	require.NoError(t, err, "start mongo container")
	t.Cleanup(func() { _ = mongoContainer.Terminate(context.Background()) })

	mongoURI, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	mr := miniredis.RunT(t)

	env := map[string]string{
		"SERVER_PORT":             "0",
		"SERVER_HOST":             "127.0.0.1",
		"SERVER_BASE_URL":         "http://lnk.test",
		"SERVER_READ_TIMEOUT":     "10s",
		"SERVER_WRITE_TIMEOUT":    "10s",
		"SERVER_IDLE_TIMEOUT":     "60s",
		"SERVER_SHUTDOWN_TIMEOUT": "10s",
		"SERVER_TRUST_PROXY":      "true",

		"DB_HOST":         pgHost,
		"DB_PORT":         pgPort.Port(),
		"DB_USER":         "testuser",
		"DB_PASSWORD":     "testpass",
		"DB_NAME":         "testdb",
		"DB_SSLMODE":      "disable",
		"DB_MAX_CONNS":    "10",
		"DB_MIN_CONNS":    "2",
		"DB_AUTO_MIGRATE": "true",

		"REDIS_URL": "redis://" + mr.Addr() + "/0",

		"MONGO_URI":      mongoURI,
		"MONGO_DATABASE": "linkstat_e2e",

		"ANALYTICS_IP_HASH_SALT": "e2e-fingerprint-salt",
		// A single worker keeps unique-visitor classification deterministic.
		"ANALYTICS_WORKERS":      "1",
		"ANALYTICS_STEP_TIMEOUT": "5s",

		"AUTH_JWT_SECRET":    e2eSecret,
		"RATE_LIMIT_ENABLED": "false",

		"APP_ENV":   "test",
		"LOG_LEVEL": "error",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	a, err := New(ctx)
	require.NoError(t, err, "wire application")
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(shutdownCtx))
	})

	return &testApp{
		App:     a,
		handler: a.Server.Handler(),
		jwt:     auth.NewJWT(e2eSecret, ""),
	}
}

func (ta *testApp) do(t *testing.T, method, path, owner string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if owner != "" {
		token, err := ta.jwt.Issue(owner, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	ta.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), "body: %s", rr.Body.String())
	return v
}

func TestLinkLifecycle_E2E(t *testing.T) {
	app := setupTestApp(t)

	rr := app.do(t, http.MethodGet, "/x/health", "", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Create
	rr = app.do(t, http.MethodPost, "/api/links", "alice", map[string]string{
		"original_url": "https://example.com/landing",
		"custom_code":  "spring-sale",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	created := decode[map[string]any](t, rr)
	assert.Equal(t, "spring-sale", created["short_code"])
	assert.Equal(t, "http://lnk.test/spring-sale", created["short_url"])
	assert.Equal(t, "https://example.com/landing", created["original_url"])
	assert.EqualValues(t, 0, created["total_clicks"])

	// Same custom code again
	rr = app.do(t, http.MethodPost, "/api/links", "bob", map[string]string{
		"original_url": "https://example.com/other",
		"custom_code":  "spring-sale",
	}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "conflict", decode[map[string]any](t, rr)["error"])

	// Three visits from two clients
	for _, ip := range []string{"203.0.113.1", "203.0.113.1", "203.0.113.2"} {
		rr = app.do(t, http.MethodGet, "/spring-sale", "", nil, map[string]string{
			"X-Forwarded-For": ip,
			"User-Agent":      "e2e-agent",
			"Referer":         "https://news.example",
		})
		require.Equal(t, http.StatusFound, rr.Code)
		assert.Equal(t, "https://example.com/landing", rr.Header().Get("Location"))
	}

	require.Eventually(t, func() bool {
		rr := app.do(t, http.MethodGet, "/api/links/spring-sale", "alice", nil, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		var link map[string]any
		if err := json.NewDecoder(rr.Body).Decode(&link); err != nil {
			return false
		}
		return link["total_clicks"] == float64(3) && link["unique_clicks"] == float64(2)
	}, 15*time.Second, 100*time.Millisecond, "counters never reached 3 total / 2 unique")

	// Click log, newest first
	rr = app.do(t, http.MethodGet, "/api/links/spring-sale/clicks?limit=10", "alice", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	clicks := decode[struct {
		Clicks []struct {
			Timestamp string  `json:"timestamp"`
			Referrer  *string `json:"referrer"`
			UserAgent *string `json:"user_agent"`
			IsUnique  bool    `json:"is_unique"`
		} `json:"clicks"`
		Total int `json:"total"`
	}](t, rr)
	require.Equal(t, 3, clicks.Total)
	require.Len(t, clicks.Clicks, 3)
	assert.True(t, clicks.Clicks[0].IsUnique, "visit from second client is unique")
	assert.False(t, clicks.Clicks[1].IsUnique, "repeat visit is not unique")
	assert.True(t, clicks.Clicks[2].IsUnique, "first visit is unique")
	require.NotNil(t, clicks.Clicks[0].Referrer)
	assert.Equal(t, "https://news.example", *clicks.Clicks[0].Referrer)

	// Daily stats
	rr = app.do(t, http.MethodGet, "/api/links/spring-sale/stats?days=7", "alice", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decode[struct {
		ChartData []struct {
			Date   string `json:"date"`
			Clicks int64  `json:"clicks"`
		} `json:"chart_data"`
	}](t, rr)
	require.Len(t, stats.ChartData, 7)
	today := stats.ChartData[6]
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), today.Date)
	assert.EqualValues(t, 3, today.Clicks)

	// QR code
	rr = app.do(t, http.MethodGet, "/api/links/spring-sale/qr", "alice", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))

	// Another owner cannot see or delete it
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/links/spring-sale", "bob", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodDelete, "/api/links/spring-sale", "bob", nil, nil).Code)

	// Delete
	rr = app.do(t, http.MethodDelete, "/api/links/spring-sale", "alice", nil, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/spring-sale", "", nil, nil).Code,
		"deleted link must not resolve from cache")
	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/api/links/spring-sale", "alice", nil, nil).Code)

	remaining, err := app.Mongo.Database("linkstat_e2e").Collection("clicks").
		CountDocuments(context.Background(), bson.D{{Key: "code", Value: "spring-sale"}})
	require.NoError(t, err)
	assert.Zero(t, remaining, "click events survive delete")
}

func TestRecreatedCodeStartsEmpty_E2E(t *testing.T) {
	app := setupTestApp(t)
	ctx := context.Background()
	clicks := app.Mongo.Database("linkstat_e2e").Collection("clicks")

	body := map[string]string{"original_url": "https://example.com/first", "custom_code": "reused-code"}
	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/api/links", "erin", body, nil).Code)
	require.Equal(t, http.StatusNoContent, app.do(t, http.MethodDelete, "/api/links/reused-code", "erin", nil, nil).Code)

	// a visit queued before the delete lands after it
	_, err := clicks.InsertOne(ctx, bson.D{
		{Key: "code", Value: "reused-code"},
		{Key: "timestamp", Value: time.Now().UTC()},
		{Key: "ip_fingerprint", Value: "0123456789abcdef0123456789abcdef"},
		{Key: "is_unique", Value: true},
	})
	require.NoError(t, err)

	body["original_url"] = "https://example.com/second"
	require.Equal(t, http.StatusCreated, app.do(t, http.MethodPost, "/api/links", "frank", body, nil).Code)

	remaining, err := clicks.CountDocuments(ctx, bson.D{{Key: "code", Value: "reused-code"}})
	require.NoError(t, err)
	assert.Zero(t, remaining)

	rr := app.do(t, http.MethodGet, "/api/links/reused-code/clicks", "frank", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, rr)["total"])
}

func TestRedirectErrors_E2E(t *testing.T) {
	app := setupTestApp(t)

	assert.Equal(t, http.StatusNotFound, app.do(t, http.MethodGet, "/nope-nope", "", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, app.do(t, http.MethodGet, "/x!", "", nil, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, app.do(t, http.MethodGet, "/api/links", "", nil, nil).Code)
}

func TestListLinks_E2E(t *testing.T) {
	app := setupTestApp(t)

	for i := range 5 {
		rr := app.do(t, http.MethodPost, "/api/links", "carol", map[string]string{
			"original_url": fmt.Sprintf("https://example.com/%d", i),
		}, nil)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}
	rr := app.do(t, http.MethodPost, "/api/links", "dave", map[string]string{
		"original_url": "https://example.com/dave",
	}, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = app.do(t, http.MethodGet, "/api/links?limit=2&offset=1", "carol", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[struct {
		Links  []map[string]any `json:"links"`
		Total  int              `json:"total"`
		Limit  int              `json:"limit"`
		Offset int              `json:"offset"`
	}](t, rr)

	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Limit)
	assert.Equal(t, 1, page.Offset)
	assert.Len(t, page.Links, 2)
}

func TestConcurrentLinkCreation_E2E(t *testing.T) {
	app := setupTestApp(t)

	const concurrency = 10
	var (
		mu    sync.Mutex
		codes = make(map[string]bool)
		wg    sync.WaitGroup
	)

	for i := range concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rr := app.do(t, http.MethodPost, "/api/links", "erin", map[string]string{
				"original_url": fmt.Sprintf("https://example.com/concurrent-%d", i),
			}, nil)
			if rr.Code != http.StatusCreated {
				t.Errorf("request %d failed with status %d", i, rr.Code)
				return
			}
			var resp map[string]any
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			mu.Lock()
			codes[resp["short_code"].(string)] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, codes, concurrency, "generated codes must be unique")
}
