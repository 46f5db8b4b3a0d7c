// SPDX-License-Identifier: MIT

package player

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tenantcast/tenantcast/internal/signer"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:10.0,
seg0.ts
#EXTINF:10.0,
seg1.ts
#EXT-X-ENDLIST
`

func TestOpenMediaPlaylist(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(mediaPlaylist))
	}))
	defer s.Close()

	e := NewManifestEngine(s.Client())
	err := e.Open(context.Background(), Source{MediaURL: s.URL + "/x.m3u8", Mode: signer.ModeCookie})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestOpenMasterProbesVariants(t *testing.T) {
	var variantHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/master.m3u8", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\n360p.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=1400000\n720p.m3u8\n"))
	})
	variant := func(w http.ResponseWriter, _ *http.Request) {
		variantHits.Add(1)
		_, _ = w.Write([]byte(mediaPlaylist))
	}
	mux.HandleFunc("/360p.m3u8", variant)
	mux.HandleFunc("/720p.m3u8", variant)
	s := httptest.NewServer(mux)
	defer s.Close()

	e := NewManifestEngine(s.Client())
	err := e.Open(context.Background(), Source{MediaURL: s.URL + "/master.m3u8", Mode: signer.ModeSignedURL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if variantHits.Load() != 2 {
		t.Fatalf("expected 2 variant probes, got %d", variantHits.Load())
	}
}

func TestOpenForbiddenIsNetworkError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "expired", http.StatusForbidden)
	}))
	defer s.Close()

	e := NewManifestEngine(s.Client())
	err := e.Open(context.Background(), Source{MediaURL: s.URL + "/x.m3u8", Mode: signer.ModeCookie})
	var pe *PlaybackError
	if !errors.As(err, &pe) || pe.Code != CodeNetwork {
		t.Fatalf("expected network playback error, got %v", err)
	}
	if !strings.Contains(pe.Message, "403") {
		t.Fatalf("expected status in message, got %q", pe.Message)
	}
}

func TestOpenNonManifestIsUnsupported(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not a playlist</html>"))
	}))
	defer s.Close()

	e := NewManifestEngine(s.Client())
	err := e.Open(context.Background(), Source{MediaURL: s.URL + "/x.m3u8", Mode: signer.ModeCookie})
	var pe *PlaybackError
	if !errors.As(err, &pe) || pe.Code != CodeSrcNotSupported {
		t.Fatalf("expected source-unsupported error, got %v", err)
	}
}

func TestTokenModeAttachesQueryParameter(t *testing.T) {
	var gotToken string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		if gotToken == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(mediaPlaylist))
	}))
	defer s.Close()

	e := NewManifestEngine(s.Client())
	err := e.Open(context.Background(), Source{
		MediaURL: s.URL + "/x.m3u8",
		Mode:     signer.ModeToken,
		Token:    "jwt-token",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken != "jwt-token" {
		t.Fatalf("token not attached, got %q", gotToken)
	}
}

func TestScanManifest(t *testing.T) {
	variants, segments := scanManifest(mediaPlaylist)
	if len(variants) != 0 || segments != 2 {
		t.Fatalf("media playlist: variants=%d segments=%d", len(variants), segments)
	}

	master := "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nlow.m3u8\n#EXT-X-STREAM-INF:BANDWIDTH=2\nhigh.m3u8\n"
	variants, segments = scanManifest(master)
	if len(variants) != 2 || segments != 0 {
		t.Fatalf("master playlist: variants=%d segments=%d", len(variants), segments)
	}
	if variants[0] != "low.m3u8" || variants[1] != "high.m3u8" {
		t.Fatalf("wrong variant URIs: %v", variants)
	}
}
