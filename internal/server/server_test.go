package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonathan/iiif-validator/internal/fetch"
	"github.com/jonathan/iiif-validator/internal/server/middleware"
	"github.com/jonathan/iiif-validator/internal/server/ratelimit"
	"github.com/jonathan/iiif-validator/internal/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadManifest(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "manifest_v2.json"))
	require.NoError(t, err)
	return string(data)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(Config{RateLimit: &ratelimit.Config{Enabled: false}}, validator.New(validator.Options{}), nil)
	t.Cleanup(s.rateLimiter.Stop)
	return s
}

// upstream serves body with the given content type and optional CORS header.
func upstream(t *testing.T, body, contentType string, cors bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		if cors {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func post(t *testing.T, s *Server, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func validateURL(manifestURL string, extra ...string) string {
	q := url.Values{"url": {manifestURL}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return "/validate?" + q.Encode()
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestValidateURL_WellServedManifest(t *testing.T) {
	manifest := loadManifest(t)
	up := upstream(t, manifest, "application/ld+json", true)
	s := newTestServer(t)

	rec := get(t, s, validateURL(up.URL))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	m := decodeBody(t, rec)
	assert.Equal(t, float64(1), m["okay"])
	assert.Equal(t, "None", m["error"])
	assert.Equal(t, []any{}, m["warnings"])
	assert.Equal(t, up.URL, m["url"])
	assert.Equal(t, manifest, m["received"])
}

func TestValidateURL_HTTPLevelWarnings(t *testing.T) {
	up := upstream(t, loadManifest(t), "text/plain; charset=utf-8", false)
	s := newTestServer(t)

	m := decodeBody(t, get(t, s, validateURL(up.URL)))

	assert.Equal(t, float64(1), m["okay"])
	assert.Equal(t, []any{
		"WARNING: Manifest should be sent as application/json or application/ld+json, not text/plain; charset=utf-8\n",
		"WARNING: Manifest should be sent with Access-Control-Allow-Origin: *\n",
	}, m["warnings"])
}

func TestValidateURL_BadScheme(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{"ftp://example.org/manifest", "file:///etc/passwd", "", "not a url"} {
		t.Run(target, func(t *testing.T) {
			rec := get(t, s, validateURL(target))
			require.Equal(t, http.StatusOK, rec.Code)
			m := decodeBody(t, rec)
			assert.Equal(t, float64(0), m["okay"])
			assert.Equal(t, "URLs must use HTTP or HTTPS", m["error"])
			assert.Equal(t, strings.TrimSpace(target), m["url"])
			assert.NotContains(t, m, "received")
		})
	}
}

func TestValidateURL_CannotFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	}))
	defer srv.Close()
	s := newTestServer(t)

	m := decodeBody(t, get(t, s, validateURL(srv.URL+"/missing")))
	assert.Equal(t, float64(0), m["okay"])
	assert.Equal(t, "Cannot fetch url", m["error"])
	assert.Equal(t, srv.URL+"/missing", m["url"])
}

func TestValidateURL_InvalidManifest(t *testing.T) {
	up := upstream(t, `{"@context":"http://iiif.io/api/presentation/2/context.json"}`, "application/json", true)
	s := newTestServer(t)

	m := decodeBody(t, get(t, s, validateURL(up.URL)))
	assert.Equal(t, float64(0), m["okay"])
	assert.NotEqual(t, "None", m["error"])
	assert.Equal(t, up.URL, m["url"])
}

func TestValidateURL_AcceptHeader(t *testing.T) {
	var gotAccept atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept.Store(r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	s := newTestServer(t)

	rec := get(t, s, validateURL(srv.URL, "version", "3.0", "accept", "true"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, validator.AcceptPresentation3, gotAccept.Load())

	m := decodeBody(t, rec)
	assert.Equal(t, float64(0), m["okay"])
	assert.Contains(t, m, "errorList")
	assert.NotContains(t, m, "warnings")
}

func TestValidateURL_JSONP(t *testing.T) {
	up := upstream(t, loadManifest(t), "application/json", true)
	s := newTestServer(t)

	rec := get(t, s, validateURL(up.URL, "callback", "handle.result_1"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/javascript", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	require.True(t, strings.HasPrefix(body, "handle.result_1("), body)
	require.True(t, strings.HasSuffix(body, ")"), body)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(body[len("handle.result_1("):len(body)-1]), &m))
	assert.Equal(t, float64(1), m["okay"])
}

func TestValidateURL_JSONPOnBadScheme(t *testing.T) {
	s := newTestServer(t)
	rec := get(t, s, validateURL("ftp://example.org/m", "callback", "cb"))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "cb({"), body)
	assert.Contains(t, body, "URLs must use HTTP or HTTPS")
}

func TestValidateURL_BadCallback(t *testing.T) {
	s := newTestServer(t)

	for _, cb := range []string{"alert(1);x", "1abc", "a b", strings.Repeat("a", 200)} {
		rec := get(t, s, validateURL("ftp://example.org/m", "callback", cb))
		assert.Equal(t, http.StatusBadRequest, rec.Code, cb)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Contains(t, decodeBody(t, rec)["error"], "callback")
	}
}

func TestValidateURL_UnknownVersion(t *testing.T) {
	up := upstream(t, loadManifest(t), "application/json", true)
	s := newTestServer(t)

	m := decodeBody(t, get(t, s, validateURL(up.URL, "version", "9.9")))
	assert.Equal(t, float64(0), m["okay"])
	assert.Contains(t, m["error"], "unsupported presentation version")
}

func TestValidateBody_Valid(t *testing.T) {
	manifest := loadManifest(t)
	s := newTestServer(t)

	rec := post(t, s, "/validate", manifest)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decodeBody(t, rec)
	assert.Equal(t, float64(1), m["okay"])
	assert.Equal(t, []any{}, m["warnings"])
	assert.Contains(t, m, "url")
	assert.Nil(t, m["url"])
	assert.Equal(t, manifest, m["received"])
}

func TestValidateBody_Version3Malformed(t *testing.T) {
	s := newTestServer(t)

	m := decodeBody(t, post(t, s, "/validate?version=3.0", "{nope"))
	assert.Equal(t, float64(0), m["okay"])
	assert.Equal(t, "{nope", m["received"])
	assert.NotContains(t, m, "warnings")
	assert.NotContains(t, m, "errorList")
}

func TestValidateBody_TooLarge(t *testing.T) {
	s := New(Config{RateLimit: &ratelimit.Config{}, MaxBodyBytes: 16}, validator.New(validator.Options{}), nil)
	defer s.rateLimiter.Stop()

	rec := post(t, s, "/validate", loadManifest(t))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestValidateBody_InvalidUTF8(t *testing.T) {
	s := newTestServer(t)

	rec := post(t, s, "/validate", "{\"label\":\"\xff\xfe\"}")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "UTF-8")
}

type failingChecker struct{}

func (failingChecker) Fetch(context.Context, string, string, bool) (*fetch.Result, error) {
	return &fetch.Result{ContentType: "application/json", Header: http.Header{}, Text: "{}"}, nil
}

func (failingChecker) CheckJSON(string, string, *string, []string) ([]byte, error) {
	return nil, errors.New("schema could not be loaded")
}

func TestValidate_CheckerErrorIsServerError(t *testing.T) {
	s := New(Config{RateLimit: &ratelimit.Config{}}, failingChecker{}, nil)
	defer s.rateLimiter.Stop()

	rec := get(t, s, validateURL("https://example.org/manifest", "version", "3.0"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "schema could not be loaded")

	rec = post(t, s, "/validate?version=3.0", "{}")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type blockingChecker struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingChecker) Fetch(context.Context, string, string, bool) (*fetch.Result, error) {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	<-b.release
	return &fetch.Result{ContentType: "application/json", Header: http.Header{"Access-Control-Allow-Origin": {"*"}}, Text: "{}"}, nil
}

func (b *blockingChecker) CheckJSON(data, _ string, url *string, _ []string) ([]byte, error) {
	return json.Marshal(map[string]any{"received": data, "okay": 1, "url": url})
}

func TestValidateURL_ConcurrentRequestsShareFetch(t *testing.T) {
	checker := &blockingChecker{started: make(chan struct{}), release: make(chan struct{})}
	s := New(Config{RateLimit: &ratelimit.Config{}}, checker, nil)
	defer s.rateLimiter.Stop()

	const n = 5
	target := validateURL("https://example.org/manifest")
	bodies := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			bodies[i] = rec.Body.String()
		}(i)
	}

	<-checker.started
	time.Sleep(100 * time.Millisecond)
	close(checker.release)
	wg.Wait()

	assert.Less(t, int(checker.calls.Load()), n)
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}
}

func TestCORS(t *testing.T) {
	s := newTestServer(t)

	rec := get(t, s, "/health")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	opt := httptest.NewRecorder()
	s.Handler().ServeHTTP(opt, httptest.NewRequest(http.MethodOptions, "/validate", nil))
	assert.Equal(t, http.StatusOK, opt.Code)
	assert.Equal(t, "GET, POST, OPTIONS", opt.Header().Get("Access-Control-Allow-Methods"))
}

func TestRateLimit(t *testing.T) {
	s := New(Config{RateLimit: &ratelimit.Config{Enabled: true, RequestsPerMinute: 2}}, validator.New(validator.Options{}), nil)
	defer s.rateLimiter.Stop()

	for i := 0; i < 2; i++ {
		rec := post(t, s, "/validate?version=9.9", "{}")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := post(t, s, "/validate?version=9.9", "{}")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	m := decodeBody(t, rec)
	assert.Equal(t, "rate_limit_exceeded", m["error"])
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := New(Config{Port: 0, RateLimit: &ratelimit.Config{}}, validator.New(validator.Options{}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
