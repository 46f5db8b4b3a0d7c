// SPDX-License-Identifier: MIT

package signer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func validRequest() Request {
	return Request{
		APIKey:        "k",
		AccountTypeID: "a1",
		TenantDomain:  "t.in",
		Path:          "/hls/",
		PlaylistFile:  "x.m3u8",
	}
}

func newTestClient(base string) *Client {
	c := New(base)
	c.http.Timeout = 2 * time.Second
	return c
}

func TestAcquireUnknownStrategy(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	cred, err := c.Acquire(context.Background(), validRequest(), Strategy("magic"))
	if cred != nil || err == nil {
		t.Fatal("expected error for unknown strategy")
	}
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestAcquireRejectsEmptyFields(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	for _, mutate := range []func(*Request){
		func(r *Request) { r.APIKey = "" },
		func(r *Request) { r.AccountTypeID = "" },
		func(r *Request) { r.TenantDomain = "" },
		func(r *Request) { r.Path = "" },
	} {
		req := validRequest()
		mutate(&req)
		cred, err := c.Acquire(context.Background(), req, StrategyCookie)
		if cred != nil || !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("expected ErrInvalidRequest for %+v, got cred=%v err=%v", req, cred, err)
		}
	}
}

func TestAcquireTransportFailure(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	s.Close() // connection refused from here on

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyCookie)
	if cred != nil {
		t.Fatal("expected no credential on transport failure")
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestCookieStrategySuccess(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		http.SetCookie(w, &http.Cookie{Name: "CloudFront-Key-Pair-Id", Value: "KP"})
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sampleHlsUrl": "https://media.t.in/hls/x.m3u8",
			"expiresAt":    1700000000000,
		})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyCookie)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Mode != ModeCookie {
		t.Fatalf("expected cookie mode, got %s", cred.Mode)
	}
	if cred.MediaURL != "https://media.t.in/hls/x.m3u8" {
		t.Fatalf("wrong media URL: %q", cred.MediaURL)
	}
	if !cred.ExpiresAt.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("wrong expiry: %v", cred.ExpiresAt)
	}
	if gotAuth != "Bearer k" {
		t.Fatalf("wrong Authorization header: %q", gotAuth)
	}
	if gotPath != mediaAPIPath+"/signed_cookies" {
		t.Fatalf("wrong endpoint path: %q", gotPath)
	}
	if gotBody["accountTypeId"] != "a1" || gotBody["tenantDomain"] != "t.in" {
		t.Fatalf("wrong request body: %v", gotBody)
	}
	if gotBody["expiresInSeconds"] != float64(DefaultExpiresInSeconds) {
		t.Fatalf("expected default expiry in body, got %v", gotBody["expiresInSeconds"])
	}
}

func TestCookieStrategyMissingMediaURL(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyCookie)
	if cred != nil || !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected shape error, got cred=%v err=%v", cred, err)
	}
	if !strings.Contains(err.Error(), "missing sampleHlsUrl") {
		t.Fatalf("expected missing-field reason, got %q", err.Error())
	}
}

func TestBackendMessagePreferred(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "bad api key"})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.Acquire(context.Background(), validRequest(), StrategyCookie)
	if !errors.Is(err, ErrBackend) {
		t.Fatalf("expected ErrBackend, got %v", err)
	}
	if FailureReason(err) != "bad api key" {
		t.Fatalf("expected backend message as reason, got %q", FailureReason(err))
	}
}

func TestBackendGenericReason(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.Acquire(context.Background(), validRequest(), StrategyCookie)
	if FailureReason(err) != "Authentication failed" {
		t.Fatalf("expected generic reason, got %q", FailureReason(err))
	}
}

func mintToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant": "t.in",
		"exp":    exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return signed
}

func TestTokenStrategySuccess(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := mintToken(t, exp)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != mediaAPIPath+"/generate_jwt" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":        token,
			"sampleHlsUrl": "https://media.t.in/hls/x.m3u8",
		})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyToken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Mode != ModeToken || cred.Token != token {
		t.Fatalf("wrong credential: %+v", cred)
	}
	// expiry derived from the token's exp claim
	if !cred.ExpiresAt.Equal(exp) {
		t.Fatalf("expected expiry %v from exp claim, got %v", exp, cred.ExpiresAt)
	}
	if cred.Mode.CredentialedFetch() {
		t.Fatal("token mode must not rely on the cookie jar")
	}
}

func TestTokenStrategyMissingToken(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sampleHlsUrl": "https://x"})
	}))
	defer s.Close()

	c := newTestClient(s.URL)
	_, err := c.Acquire(context.Background(), validRequest(), StrategyToken)
	if !errors.Is(err, ErrBadShape) || !strings.Contains(err.Error(), "missing token") {
		t.Fatalf("expected missing token shape error, got %v", err)
	}
}

// folderBackend wires a signed_url endpoint and an auth endpoint together.
func folderBackend(t *testing.T, authStatus int, respond func(base string) map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	mux.HandleFunc(mediaAPIPath+"/signed_url", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["isFolder"] != true {
			t.Errorf("expected isFolder=true in signed_url request, got %v", body["isFolder"])
		}
		_ = json.NewEncoder(w).Encode(respond(s.URL))
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		if authStatus == http.StatusOK {
			http.SetCookie(w, &http.Cookie{Name: "CloudFront-Key-Pair-Id", Value: "KP", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "CloudFront-Signature", Value: "SIG", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "CloudFront-Expires", Value: "1700000000", Path: "/"})
		}
		w.WriteHeader(authStatus)
	})
	return s
}

func TestFolderURLStrategySuccess(t *testing.T) {
	s := folderBackend(t, http.StatusOK, func(base string) map[string]any {
		return map[string]any{
			"authUrl":     base + "/auth",
			"playlistUrl": "https://media.t.in/hls/x.m3u8",
			"expiresAt":   1700000000000,
		}
	})

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyFolderURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.Mode != ModeSignedURL {
		t.Fatalf("expected signed_url mode, got %s", cred.Mode)
	}
	if cred.MediaURL != "https://media.t.in/hls/x.m3u8" {
		t.Fatalf("wrong media URL: %q", cred.MediaURL)
	}
	if !cred.ExpiresAt.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("wrong expiry: %v", cred.ExpiresAt)
	}
	// the auth fetch must have stored the cookie triple in the jar
	jarURL, _ := url.Parse(s.URL + "/")
	if got := c.http.Jar.Cookies(jarURL); len(got) != 3 {
		t.Fatalf("expected 3 signed cookies in jar, got %d", len(got))
	}
}

func TestFolderURLStrategyEmptyResponse(t *testing.T) {
	s := folderBackend(t, http.StatusOK, func(string) map[string]any {
		return map[string]any{}
	})

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyFolderURL)
	if cred != nil || !errors.Is(err, ErrBadShape) {
		t.Fatalf("expected shape error, got cred=%v err=%v", cred, err)
	}
	if !strings.Contains(err.Error(), "missing authUrl or playlistUrl") {
		t.Fatalf("expected missing-URL reason, got %q", err.Error())
	}
}

func TestFolderURLStrategyAuthForbidden(t *testing.T) {
	s := folderBackend(t, http.StatusForbidden, func(base string) map[string]any {
		return map[string]any{
			"authUrl":     base + "/auth",
			"playlistUrl": "https://media.t.in/hls/x.m3u8",
		}
	})

	c := newTestClient(s.URL)
	cred, err := c.Acquire(context.Background(), validRequest(), StrategyFolderURL)
	if cred != nil || !errors.Is(err, ErrCookieSetup) {
		t.Fatalf("expected cookie setup error, got cred=%v err=%v", cred, err)
	}
	if !strings.Contains(err.Error(), "signed cookies") {
		t.Fatalf("expected reason mentioning signed cookies, got %q", err.Error())
	}
	var ae *AcquireError
	if !errors.As(err, &ae) || ae.Status != http.StatusForbidden {
		t.Fatalf("expected HTTP 403 in error, got %v", err)
	}
}

func TestFolderURLStrategyRequiresPlaylistFile(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")
	req := validRequest()
	req.PlaylistFile = ""
	_, err := c.Acquire(context.Background(), req, StrategyFolderURL)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestAcquireContextCancelled(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := newTestClient(s.URL)
	cred, err := c.Acquire(ctx, validRequest(), StrategyCookie)
	if cred != nil || !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error on cancellation, got cred=%v err=%v", cred, err)
	}
}
