// SPDX-License-Identifier: MIT

// Package stub implements the credential backend contract for local demos
// and integration tests: it issues signed cookies, JWTs and signed URLs for
// a single configured tenant and serves a small gated HLS tree.
package stub

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tenantcast/tenantcast/internal/log"
)

const mediaAPIPath = "/business_website/class_room/media"

// Options configures the stub backend.
type Options struct {
	APIKey        string        // accepted bearer key
	SigningSecret []byte        // secret for JWTs and cookie signatures
	RateLimit     int           // requests per window per IP, defaults to 120
	RateWindow    time.Duration // rate limit window, defaults to one minute
	Logger        *zerolog.Logger
}

type server struct {
	opts      Options
	keyPairID string
	logger    zerolog.Logger
}

// New returns the stub backend handler.
func New(opts Options) http.Handler {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}
	if opts.RateWindow <= 0 {
		opts.RateWindow = time.Minute
	}
	logger := log.WithComponent("stub")
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &server{
		opts:      opts,
		keyPairID: "K" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:14],
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(httprate.Limit(opts.RateLimit, opts.RateWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))

	r.Route(mediaAPIPath, func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/signed_cookies", s.handleSignedCookies)
		r.Post("/generate_jwt", s.handleGenerateJWT)
		r.Post("/signed_url", s.handleSignedURL)
	})
	r.Get("/auth", s.handleAuth)
	r.Get("/hls/*", s.handleMedia)
	return r
}

// signRequest is the shared body of the three issue endpoints.
type signRequest struct {
	AccountTypeID    string `json:"accountTypeId"`
	Path             string `json:"path"`
	ExpiresInSeconds int    `json:"expiresInSeconds"`
	TenantDomain     string `json:"tenantDomain"`
	IsFolder         bool   `json:"isFolder"`
	PlaylistFile     string `json:"playlistFile"`
}

func (s *server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" || got != s.opts.APIKey {
			s.logger.Warn().
				Str(log.FieldEvent, "stub.auth_rejected").
				Str(log.FieldPath, r.URL.Path).
				Msg("bearer key rejected")
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "invalid API key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) decodeSignRequest(w http.ResponseWriter, r *http.Request) (*signRequest, bool) {
	var req signRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "malformed request body"})
		return nil, false
	}
	if req.AccountTypeID == "" || req.Path == "" || req.TenantDomain == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "accountTypeId, path and tenantDomain are required"})
		return nil, false
	}
	if req.ExpiresInSeconds <= 0 {
		req.ExpiresInSeconds = 3600
	}
	return &req, true
}

func (s *server) handleSignedCookies(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSignRequest(w, r)
	if !ok {
		return
	}
	expires := time.Now().Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	s.setSignedCookies(w, req.Path, expires)
	writeJSON(w, http.StatusOK, map[string]any{
		"sampleHlsUrl": s.sampleURL(r, req),
		"expiresAt":    expires.UnixMilli(),
	})
}

func (s *server) handleGenerateJWT(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSignRequest(w, r)
	if !ok {
		return
	}
	expires := time.Now().Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant": req.TenantDomain,
		"path":   req.Path,
		"exp":    expires.Unix(),
	})
	signed, err := token.SignedString(s.opts.SigningSecret)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "token signing failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":        signed,
		"sampleHlsUrl": s.sampleURL(r, req),
		"expiresAt":    expires.UnixMilli(),
	})
}

func (s *server) handleSignedURL(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSignRequest(w, r)
	if !ok {
		return
	}
	if !req.IsFolder || req.PlaylistFile == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "signed URL generation requires isFolder and playlistFile"})
		return
	}
	expires := time.Now().Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	base := baseURL(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"authUrl":     fmt.Sprintf("%s/auth?path=%s&expires=%d", base, strings.Trim(req.Path, "/"), expires.Unix()),
		"playlistUrl": fmt.Sprintf("%s/hls/%s/%s", base, strings.Trim(req.Path, "/"), req.PlaylistFile),
		"expiresAt":   expires.UnixMilli(),
	})
}

// handleAuth establishes the signed-cookie triple, mirroring the CDN's
// cookie-setting endpoint.
func (s *server) handleAuth(w http.ResponseWriter, r *http.Request) {
	expires := time.Now().Add(time.Hour)
	if v := r.URL.Query().Get("expires"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			expires = time.Unix(unix, 0)
		}
	}
	s.setSignedCookies(w, r.URL.Query().Get("path"), expires)
	w.WriteHeader(http.StatusOK)
}

// handleMedia serves a generated HLS tree, gated on either the cookie triple
// or a valid token query parameter.
func (s *server) handleMedia(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "missing or invalid media credential", http.StatusForbidden)
		return
	}
	switch {
	case strings.HasSuffix(r.URL.Path, ".m3u8"):
		w.Header().Set("Content-Type", "application/x-mpegURL")
		_, _ = w.Write([]byte(mediaPlaylist))
	case strings.HasSuffix(r.URL.Path, ".ts"):
		w.Header().Set("Content-Type", "video/MP2T")
		_, _ = w.Write(fakeSegment)
	default:
		http.NotFound(w, r)
	}
}

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-PLAYLIST-TYPE:VOD
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

var fakeSegment = []byte{0x47, 0x40, 0x00, 0x10}

func (s *server) authorized(r *http.Request) bool {
	if token := r.URL.Query().Get("token"); token != "" {
		_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.opts.SigningSecret, nil
		}, jwt.WithExpirationRequired())
		return err == nil
	}

	sig, err := r.Cookie("CloudFront-Signature")
	if err != nil {
		return false
	}
	expCookie, err := r.Cookie("CloudFront-Expires")
	if err != nil {
		return false
	}
	unix, err := strconv.ParseInt(expCookie.Value, 10, 64)
	if err != nil || time.Now().After(time.Unix(unix, 0)) {
		return false
	}
	// the signature covers the expiry only; good enough for a demo backend
	return hmac.Equal([]byte(sig.Value), []byte(s.signature(expCookie.Value)))
}

func (s *server) setSignedCookies(w http.ResponseWriter, _ string, expires time.Time) {
	expVal := strconv.FormatInt(expires.Unix(), 10)
	for name, value := range map[string]string{
		"CloudFront-Key-Pair-Id": s.keyPairID,
		"CloudFront-Signature":   s.signature(expVal),
		"CloudFront-Expires":     expVal,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Expires:  expires,
			HttpOnly: false,
		})
	}
}

func (s *server) signature(payload string) string {
	mac := hmac.New(sha256.New, s.opts.SigningSecret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *server) sampleURL(r *http.Request, req *signRequest) string {
	file := req.PlaylistFile
	if file == "" {
		file = "index.m3u8"
	}
	return fmt.Sprintf("%s/hls/%s/%s", baseURL(r), strings.Trim(req.Path, "/"), file)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
