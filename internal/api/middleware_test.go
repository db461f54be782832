package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost",
		"http://127.0.0.1:3000",
		"http://127.0.0.1",
		"https://acme.app.heimdex.co",
		"https://demo-org.app.heimdex.co",
		"https://acme.app.heimdex.local",
		"http://acme.app.heimdex.local",
		"http://devorg.app.heimdex.local:3000",
		"https://acme.app.heimdex.co:443",
		"http://acme.app.heimdex.local:8080",
		"https://a--b.app.heimdex.co",
		"https://a.app.heimdex.co",
	}

	for _, origin := range allowed {
		if !isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = false, want true", origin)
		}
	}

	denied := []string{
		"https://evil.com",
		"https://app.heimdex.co",
		"https://app.heimdex.co.evil.com",
		"https://evil.app.heimdex.co.evil.com",
		"https://acme.app.heimdex.co.evil.com",
		"http://192.168.1.1:3000",
		"https://heimdex.co",
		"",
		"ftp://localhost:3000",
		"http://localhost:not-a-port",
		"http://localhost:3000/path",
		"https://-bad.app.heimdex.co",
		"https://bad-.app.heimdex.co",
		"https://acme.app.heimdex.co:not-a-port",
		"https://acme.app.heimdex.co:3000/path",
	}

	for _, origin := range denied {
		if isAllowedOrigin(origin) {
			t.Errorf("isAllowedOrigin(%q) = true, want false", origin)
		}
	}
}

func TestIsLoopbackRemoteAddr(t *testing.T) {
	loopback := []string{
		"127.0.0.1:12345",
		"[::1]:12345",
	}

	for _, addr := range loopback {
		if !isLoopbackRemoteAddr(addr) {
			t.Errorf("isLoopbackRemoteAddr(%q) = false, want true", addr)
		}
	}

	nonLoopback := []string{
		"8.8.8.8:12345",
		"192.168.1.1:8080",
		"10.0.0.1:3000",
		"not-an-ip:1234",
	}

	for _, addr := range nonLoopback {
		if isLoopbackRemoteAddr(addr) {
			t.Errorf("isLoopbackRemoteAddr(%q) = true, want false", addr)
		}
	}
}

func TestCORSAllowlist(t *testing.T) {
	cases := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantACAO    string
		wantHandler bool
	}{
		{"allowed origin", http.MethodGet, "http://localhost:3000", http.StatusOK, "http://localhost:3000", true},
		{"review workspace subdomain", http.MethodGet, "https://acme.app.heimdex.local", http.StatusOK, "https://acme.app.heimdex.local", true},
		{"denied origin passes without CORS", http.MethodGet, "https://evil.com", http.StatusOK, "", true},
		{"denied preflight", http.MethodOptions, "https://evil.com", http.StatusForbidden, "", false},
		{"no origin", http.MethodGet, "", http.StatusOK, "", true},
		{"allowed preflight", http.MethodOptions, "http://localhost:3000", http.StatusNoContent, "http://localhost:3000", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tc.method, "/annotations", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tc.wantStatus)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantACAO {
				t.Errorf("ACAO = %q, want %q", got, tc.wantACAO)
			}
			if called != tc.wantHandler {
				t.Errorf("handler called = %v, want %v", called, tc.wantHandler)
			}
			if tc.wantACAO != "" && !slices.Contains(rr.Header().Values("Vary"), "Origin") {
				t.Errorf("Vary = %v, want Origin", rr.Header().Values("Vary"))
			}
		})
	}
}

func headerList(h http.Header, key string) []string {
	var out []string
	for _, part := range strings.Split(h.Get(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Preflights must admit everything the review surface sends: range requests
// for the media element and annotation edits.
func TestCORSAllowlist_PreflightHeaders(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called for preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/playback/file", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	req.Header.Set("Access-Control-Request-Headers", "range,authorization")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	want := map[string][]string{
		"Access-Control-Allow-Headers":  {"Range", "Content-Type", "Authorization", "X-Heimdex-Request-Id", "X-Heimdex-Device-Id"},
		"Access-Control-Expose-Headers": {"Content-Range", "Accept-Ranges", "Content-Length", "Content-Type"},
		"Access-Control-Allow-Methods":  {"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
	}
	for key, values := range want {
		got := headerList(rr.Header(), key)
		for _, v := range values {
			if !slices.Contains(got, v) {
				t.Errorf("%s missing %q, got %v", key, v, got)
			}
		}
	}
}

func TestCORSAllowlist_VaryIsAdditive(t *testing.T) {
	handler := CORSAllowlist()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/moments", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	rr.Header().Set("Vary", "Accept-Encoding")

	handler.ServeHTTP(rr, req)

	vary := rr.Header().Values("Vary")
	if !slices.Contains(vary, "Accept-Encoding") || !slices.Contains(vary, "Origin") {
		t.Errorf("Vary = %v, want Accept-Encoding and Origin", vary)
	}
}

func TestIsLoopbackRemoteAddr_EdgeCases(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"::1", true},
		{"", false},
		{"garbage", false},
		{"[::1]", true},
		{"127.0.0.1", true},
	}

	for _, tc := range cases {
		got := isLoopbackRemoteAddr(tc.addr)
		if got != tc.want {
			t.Errorf("isLoopbackRemoteAddr(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}

func TestLoopbackGuard(t *testing.T) {
	cases := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:12345", http.StatusOK},
		{"[::1]:12345", http.StatusOK},
		{"8.8.8.8:12345", http.StatusForbidden},
		{"192.168.1.20:5000", http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.remote, func(t *testing.T) {
			called := false
			handler := LoopbackGuard()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/playback/events", nil)
			req.RemoteAddr = tc.remote
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
			if called != (tc.want == http.StatusOK) {
				t.Fatalf("handler called = %v", called)
			}
			if tc.want == http.StatusForbidden {
				body := decodeJSONBody(t, rr)
				if body["code"] != "FORBIDDEN" {
					t.Errorf("error code = %v, want FORBIDDEN", body["code"])
				}
			}
		})
	}
}

func TestPlaybackRoute_Loopback_Integration(t *testing.T) {
	env := newTestEnv(t)

	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/playback/file?game_id=g1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d (loopback request via httptest should be allowed)", resp.StatusCode, http.StatusOK)
	}
}

func TestPlaybackRoute_NonLoopback_Rejected(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/playback/file?game_id=g1", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestHealthRoute_CORS_Integration(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()

	env.router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestHEAD_PlaybackFile_NoBody(t *testing.T) {
	env := newTestEnv(t)

	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/playback/file?game_id=g1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if got := resp.Header.Get("Accept-Ranges"); got != "bytes" {
		t.Errorf("Accept-Ranges = %q, want bytes", got)
	}

	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD response body length = %d, want 0", len(body))
	}
}

func TestHEAD_PlaybackFile_NoGameLoaded(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.CloseProject(context.Background()); err != nil {
		t.Fatalf("close project: %v", err)
	}

	server := httptest.NewServer(env.router)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodHead, server.URL+"/playback/file", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("HEAD response body length = %d, want 0", len(body))
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + testToken, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/status", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			env.router.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}
