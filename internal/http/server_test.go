package httpx

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
)

const upstreamPage = `<html><body><p data-for="mac">Mac</p><p data-for="win10">Windows</p></body></html>`

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kb/article":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, upstreamPage)
		case "/kb/gzipped":
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Content-Encoding", "gzip")
			zw := gzip.NewWriter(w)
			_, _ = io.WriteString(zw, upstreamPage)
			_ = zw.Close()
		case "/static/app.js":
			w.Header().Set("Content-Type", "application/javascript")
			_, _ = io.WriteString(w, `console.log("data-for")`)
		case "/plain":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<p>nothing to do</p>")
		case "/echo":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, r.Method+" "+r.URL.RawQuery)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestIsHTMLContent(t *testing.T) {
	tests := map[string]bool{
		"text/html":                 true,
		"TEXT/HTML; charset=utf-8":  true,
		"application/xhtml+xml":     true,
		"application/json":          false,
		"":                          false,
		"text/plain; format=flowed": false,
	}
	for ct, want := range tests {
		if got := isHTMLContent(ct); got != want {
			t.Errorf("isHTMLContent(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestProxyHandler_RewritesHTML(t *testing.T) {
	env, _ := testEnv(t)
	up := upstream(t)
	proxy := NewProxyHandler(mustURL(t, up.URL), env.rewriteHTML, nil)

	req := httptest.NewRequest(http.MethodGet, "/kb/article", nil)
	req.Header.Set("User-Agent", firefoxWin10UA)
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `<p data-for="mac" hidden="">Mac</p>`) {
		t.Errorf("mac paragraph not hidden:\n%s", body)
	}
	if !strings.Contains(body, `<p data-for="win10">Windows</p>`) {
		t.Errorf("windows paragraph hidden:\n%s", body)
	}
	if rec.Header().Get("Content-Length") != strconv.Itoa(len(body)) {
		t.Errorf("Content-Length = %s, body %d", rec.Header().Get("Content-Length"), len(body))
	}
}

func TestProxyHandler_PreservesGzip(t *testing.T) {
	env, _ := testEnv(t)
	up := upstream(t)
	proxy := NewProxyHandler(mustURL(t, up.URL), env.rewriteHTML, nil)

	req := httptest.NewRequest(http.MethodGet, "/kb/gzipped", nil)
	req.Header.Set("User-Agent", firefoxWin10UA)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("response is not gzip: %v", err)
	}
	html, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(html), `data-for="mac" hidden=""`) {
		t.Errorf("gzipped page not rewritten:\n%s", html)
	}
}

func TestProxyHandler_PassThrough(t *testing.T) {
	up := upstream(t)
	called := false
	rewrite := func(r *http.Request, body []byte) ([]byte, error) {
		called = true
		return body, nil
	}
	proxy := NewProxyHandler(mustURL(t, up.URL), rewrite, nil)

	for _, path := range []string{"/static/app.js", "/plain"} {
		rec := httptest.NewRecorder()
		proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
	if called {
		t.Error("rewrite should only run on HTML containing showfor markup")
	}

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/echo?a=1", strings.NewReader("x")))
	if rec.Body.String() != "POST a=1" {
		t.Errorf("echo = %q", rec.Body.String())
	}
}

func TestProxyHandler_RewriteFailureServesOriginal(t *testing.T) {
	up := upstream(t)
	proxy := NewProxyHandler(mustURL(t, up.URL), func(*http.Request, []byte) ([]byte, error) {
		return nil, errors.New("broken")
	}, nil)

	rec := httptest.NewRecorder()
	proxy.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kb/article", nil))
	if rec.Body.String() != upstreamPage {
		t.Errorf("body = %q, want upstream page", rec.Body.String())
	}
}

func TestProxyHandler_UpstreamDown(t *testing.T) {
	up := upstream(t)
	dest := mustURL(t, up.URL)
	up.Close()

	rec := httptest.NewRecorder()
	NewProxyHandler(dest, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestNewRouter_Routes(t *testing.T) {
	env, _ := testEnv(t)
	env.Cfg.RateLimit.Enabled = true
	env.Cfg.RateLimit.RPS = 100
	env.Cfg.RateLimit.Burst = 100
	router := NewRouter(env)

	tests := []struct {
		method, path string
		body         string
		want         int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/readyz", "", http.StatusOK},
		{http.MethodGet, "/detect", "", http.StatusOK},
		{http.MethodPost, "/detect", `{}`, http.StatusOK},
		{http.MethodGet, "/showfor/data", "", http.StatusOK},
		{http.MethodPost, "/showfor/match", `{"defaults": true, "criteria": ["win"]}`, http.StatusOK},
		{http.MethodPost, "/showfor/render", `<p data-for="win">x</p>`, http.StatusOK},
		{http.MethodGet, "/showfor/state", "", http.StatusOK},
		{http.MethodPut, "/showfor/state", `{}`, http.StatusOK},
		{http.MethodGet, "/markup/toolbar", "", http.StatusOK},
		{http.MethodPost, "/markup/apply", `{"kind": "bold", "editor": {"text": ""}}`, http.StatusOK},
		{http.MethodGet, "/dashboard/filters?locale=de", "", http.StatusOK},
		{http.MethodPost, "/account/email", `{"email": "a@b.org"}`, http.StatusOK},
		{http.MethodGet, "/nowhere", "", http.StatusNotFound},
		{http.MethodDelete, "/showfor/state", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("User-Agent", firefoxWin10UA)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestNewRouter_MiddlewareMode(t *testing.T) {
	env, _ := testEnv(t)
	up := upstream(t)
	env.Cfg.Server.MiddlewareMode = true
	env.Cfg.Server.ForwardDestination = up.URL
	router := NewRouter(env)

	req := httptest.NewRequest(http.MethodGet, "/kb/article", nil)
	req.Header.Set("User-Agent", firefoxWin10UA)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), `data-for="mac" hidden=""`) {
		t.Errorf("proxied page not rewritten:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Body.String() != "ok" {
		t.Errorf("own routes must not be proxied, got %q", rec.Body.String())
	}
}

func TestNewRouter_InvalidDestination(t *testing.T) {
	env, _ := testEnv(t)
	env.Cfg.Server.MiddlewareMode = true
	env.Cfg.Server.ForwardDestination = "not a url"
	rec := httptest.NewRecorder()
	NewRouter(env).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/kb/article", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 with proxy disabled", rec.Code)
	}
}
