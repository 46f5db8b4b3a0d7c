// SPDX-License-Identifier: MIT

package player

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tenantcast/tenantcast/internal/log"
)

// maxManifestBytes bounds how much of a playlist is read.
const maxManifestBytes = 4 << 20

// maxVariantProbes caps how many variant playlists of a master are probed.
const maxVariantProbes = 4

// ManifestEngine validates a bound source the way a player starts playback:
// it fetches the HLS manifest through the credentialed transport (shared
// cookie jar, or the token query parameter) and, for master playlists,
// probes the variant media playlists.
type ManifestEngine struct {
	http   *http.Client
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewManifestEngine creates an engine using the given transport. Pass the
// signer client's HTTP client so media fetches share its cookie jar.
func NewManifestEngine(httpClient *http.Client) *ManifestEngine {
	return &ManifestEngine{
		http:   httpClient,
		logger: log.WithComponent("hlsengine"),
	}
}

// Open loads the manifest for the source. It returns a *PlaybackError for
// everything a player would surface as a media error.
func (e *ManifestEngine) Open(ctx context.Context, src Source) error {
	mediaURL, err := attachToken(src)
	if err != nil {
		return &PlaybackError{Code: CodeSrcNotSupported, Message: "invalid media URL: " + err.Error()}
	}

	manifest, err := e.fetch(ctx, mediaURL)
	if err != nil {
		return err
	}

	variants, segments := scanManifest(manifest)
	e.logger.Debug().
		Str(log.FieldEvent, "hlsengine.manifest_loaded").
		Str(log.FieldMediaURL, src.MediaURL).
		Int("variants", len(variants)).
		Int("segments", segments).
		Msg("manifest loaded")

	if len(variants) == 0 {
		return nil
	}
	return e.probeVariants(ctx, mediaURL, variants, src)
}

// Close releases the engine. Idempotent.
func (e *ManifestEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.http.CloseIdleConnections()
	return nil
}

// attachToken appends the token query parameter for token-mode sources.
func attachToken(src Source) (string, error) {
	return attachTokenTo(src.MediaURL, src)
}

func attachTokenTo(raw string, src Source) (string, error) {
	if src.Mode.CredentialedFetch() || src.Token == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", src.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *ManifestEngine) fetch(ctx context.Context, mediaURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return "", &PlaybackError{Code: CodeSrcNotSupported, Message: "invalid media URL: " + err.Error()}
	}
	res, err := e.http.Do(req)
	if err != nil {
		return "", &PlaybackError{Code: CodeNetwork, Message: "manifest fetch failed: " + err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &PlaybackError{
			Code:    CodeNetwork,
			Message: fmt.Sprintf("manifest fetch rejected with HTTP %d (expired or invalid credential?)", res.StatusCode),
		}
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxManifestBytes))
	if err != nil {
		return "", &PlaybackError{Code: CodeNetwork, Message: "manifest read failed: " + err.Error()}
	}
	manifest := string(body)
	if !strings.HasPrefix(strings.TrimSpace(manifest), "#EXTM3U") {
		return "", &PlaybackError{Code: CodeSrcNotSupported, Message: "response is not an HLS manifest"}
	}
	return manifest, nil
}

// scanManifest walks the playlist lines and returns the variant URIs of a
// master playlist, or the media segment count of a media playlist.
func scanManifest(manifest string) (variants []string, segments int) {
	scanner := bufio.NewScanner(strings.NewReader(manifest))
	expectVariant := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXT-X-STREAM-INF:") {
			expectVariant = true
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if expectVariant {
			variants = append(variants, line)
			expectVariant = false
		} else {
			segments++
		}
	}
	return variants, segments
}

// probeVariants fetches up to maxVariantProbes variant playlists
// concurrently and fails if any of them is unplayable.
func (e *ManifestEngine) probeVariants(ctx context.Context, masterURL string, variants []string, src Source) error {
	base, err := url.Parse(masterURL)
	if err != nil {
		return &PlaybackError{Code: CodeSrcNotSupported, Message: "invalid master URL: " + err.Error()}
	}
	if len(variants) > maxVariantProbes {
		variants = variants[:maxVariantProbes]
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, v := range variants {
		ref, err := url.Parse(v)
		if err != nil {
			return &PlaybackError{Code: CodeSrcNotSupported, Message: "invalid variant URI: " + err.Error()}
		}
		target, err := attachTokenTo(base.ResolveReference(ref).String(), src)
		if err != nil {
			return &PlaybackError{Code: CodeSrcNotSupported, Message: "invalid variant URI: " + err.Error()}
		}
		g.Go(func() error {
			_, err := e.fetch(ctx, target)
			return err
		})
	}
	return g.Wait()
}
