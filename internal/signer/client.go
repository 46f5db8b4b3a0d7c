// SPDX-License-Identifier: MIT

package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/tenantcast/tenantcast/internal/log"
	"github.com/tenantcast/tenantcast/internal/metrics"
)

// mediaAPIPath is where the backend mounts the credential endpoints.
const mediaAPIPath = "/business_website/class_room/media"

// maxResponseBytes bounds how much of a backend response is read.
const maxResponseBytes = 1 << 20

// Client acquires playback credentials from the backend. It owns the cookie
// jar that stands in for browser cookie storage; Set-Cookie responses from
// the backend land there and subsequent credentialed media fetches read it.
type Client struct {
	base    string
	apiPath string
	http    *http.Client
	store   CookieStore
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithAPIPath overrides the media API mount path.
func WithAPIPath(p string) Option {
	return func(c *Client) { c.apiPath = strings.TrimRight(p, "/") }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a credential client for the given backend base URL.
func New(base string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		apiPath: mediaAPIPath,
		http:    &http.Client{Timeout: 30 * time.Second, Jar: jar},
		store:   NewJarStore(jar),
		logger:  log.WithComponent("signer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HTTPClient exposes the credentialed transport so the playback engine can
// fetch media through the same cookie jar.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Cookies exposes the cookie store collaborator.
func (c *Client) Cookies() CookieStore {
	return c.store
}

// acquireFunc is one strategy of the dispatch table.
type acquireFunc func(*Client, context.Context, Request) (*Credential, error)

var strategies = map[Strategy]acquireFunc{
	StrategyCookie:    (*Client).acquireCookie,
	StrategyToken:     (*Client).acquireToken,
	StrategyFolderURL: (*Client).acquireFolderURL,
}

// Acquire obtains a playback credential using the given strategy. It returns
// exactly one of credential or error; every transport, backend and shape
// problem is converted into an *AcquireError rather than escaping.
func (c *Client) Acquire(ctx context.Context, req Request, strategy Strategy) (*Credential, error) {
	fn, ok := strategies[strategy]
	if !ok {
		return nil, &AcquireError{
			Sentinel: ErrInvalidRequest,
			Op:       "acquire",
			Reason:   fmt.Sprintf("unknown strategy %q", strategy),
		}
	}
	if req.ExpiresInSeconds == 0 {
		req.ExpiresInSeconds = DefaultExpiresInSeconds
	}
	if err := req.Validate(); err != nil {
		return nil, &AcquireError{
			Sentinel: ErrInvalidRequest,
			Op:       strategy.String(),
			Reason:   err.Error(),
			Err:      err,
		}
	}

	start := time.Now()
	cred, err := fn(c, ctx, req)
	metrics.IncAcquire(strategy.String(), err == nil)
	metrics.ObserveAcquireDuration(strategy.String(), time.Since(start))

	evt := c.logger.Info()
	if err != nil {
		evt = c.logger.Warn().Err(err)
	}
	evt.
		Str(log.FieldEvent, "signer.acquire").
		Str(log.FieldAttemptID, log.AttemptIDFromContext(ctx)).
		Str(log.FieldStrategy, strategy.String()).
		Str(log.FieldTenant, req.TenantDomain).
		Bool("success", err == nil).
		Dur("duration", time.Since(start)).
		Msg("credential acquisition finished")
	return cred, err
}

// issueResponse is the union of fields the three endpoints may return.
type issueResponse struct {
	Message      string `json:"message"`
	SampleHLSURL string `json:"sampleHlsUrl"`
	Token        string `json:"token"`
	AuthURL      string `json:"authUrl"`
	PlaylistURL  string `json:"playlistUrl"`
	ExpiresAt    int64  `json:"expiresAt"` // epoch milliseconds
}

// post issues the signing request and decodes the body. It returns an error
// only for transport failures and undecodable 2xx bodies; callers decide how
// to treat the HTTP status against the decoded shape.
func (c *Client) post(ctx context.Context, endpoint string, r Request) (*issueResponse, json.RawMessage, int, error) {
	body := struct {
		AccountTypeID    string `json:"accountTypeId"`
		Path             string `json:"path"`
		ExpiresInSeconds int    `json:"expiresInSeconds"`
		TenantDomain     string `json:"tenantDomain"`
		IsFolder         bool   `json:"isFolder,omitempty"`
		PlaylistFile     string `json:"playlistFile,omitempty"`
	}{
		AccountTypeID:    r.AccountTypeID,
		Path:             r.Path,
		ExpiresInSeconds: r.ExpiresInSeconds,
		TenantDomain:     r.TenantDomain,
		IsFolder:         r.IsFolder,
		PlaylistFile:     r.PlaylistFile,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, 0, &AcquireError{Sentinel: ErrInvalidRequest, Op: endpoint, Reason: "could not encode request", Err: err}
	}

	url := c.base + c.apiPath + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, 0, &AcquireError{Sentinel: ErrTransport, Op: endpoint, Reason: "could not build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.APIKey)

	c.logger.Debug().
		Str(log.FieldEvent, "signer.request").
		Str(log.FieldEndpoint, endpoint).
		Str(log.FieldTenant, r.TenantDomain).
		Str(log.FieldPath, r.Path).
		Str("api_key", log.MaskSecret(r.APIKey)).
		Msg("issuing signing request")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, nil, 0, &AcquireError{Sentinel: ErrTransport, Op: endpoint, Reason: "network error contacting backend", Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, res.StatusCode, &AcquireError{Sentinel: ErrTransport, Op: endpoint, Status: res.StatusCode, Reason: "could not read backend response", Err: err}
	}

	var parsed issueResponse
	if err := json.Unmarshal(raw, &parsed); err != nil && is2xx(res.StatusCode) {
		return nil, nil, res.StatusCode, &AcquireError{Sentinel: ErrBadShape, Op: endpoint, Status: res.StatusCode, Reason: "invalid response: malformed JSON", Err: err}
	}
	return &parsed, raw, res.StatusCode, nil
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

// backendError converts a non-2xx response into the uniform failure shape,
// preferring the backend-provided message.
func backendError(endpoint string, status int, parsed *issueResponse) error {
	reason := "Authentication failed"
	if parsed != nil && parsed.Message != "" {
		reason = parsed.Message
	}
	return &AcquireError{Sentinel: ErrBackend, Op: endpoint, Status: status, Reason: reason}
}

func shapeError(endpoint string, field string) error {
	return &AcquireError{
		Sentinel: ErrBadShape,
		Op:       endpoint,
		Reason:   "invalid response: missing " + field,
	}
}

// expiry resolves the credential lifetime: the backend timestamp wins,
// otherwise the requested lifetime counts from now.
func expiry(millis int64, requestedSeconds int) time.Time {
	if millis > 0 {
		return time.UnixMilli(millis)
	}
	return time.Now().Add(time.Duration(requestedSeconds) * time.Second)
}

// acquireCookie posts to signed_cookies. The backend response carries a
// sample playlist URL; the signed-cookie pair lands in the jar via the
// Set-Cookie headers of the response itself.
func (c *Client) acquireCookie(ctx context.Context, req Request) (*Credential, error) {
	parsed, raw, status, err := c.post(ctx, "signed_cookies", req)
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, backendError("signed_cookies", status, parsed)
	}
	if parsed.SampleHLSURL == "" {
		return nil, shapeError("signed_cookies", "sampleHlsUrl")
	}
	return &Credential{
		Mode:      ModeCookie,
		MediaURL:  parsed.SampleHLSURL,
		ExpiresAt: expiry(parsed.ExpiresAt, req.ExpiresInSeconds),
		Raw:       raw,
	}, nil
}

// acquireToken posts to generate_jwt. The credential is the opaque token;
// the playback side attaches it as the "token" query parameter.
func (c *Client) acquireToken(ctx context.Context, req Request) (*Credential, error) {
	parsed, raw, status, err := c.post(ctx, "generate_jwt", req)
	if err != nil {
		return nil, err
	}
	if !is2xx(status) {
		return nil, backendError("generate_jwt", status, parsed)
	}
	if parsed.Token == "" {
		return nil, shapeError("generate_jwt", "token")
	}
	if parsed.SampleHLSURL == "" {
		return nil, shapeError("generate_jwt", "sampleHlsUrl")
	}
	exp := parsed.ExpiresAt
	if exp == 0 {
		if t, ok := tokenExpiry(parsed.Token); ok {
			exp = t.UnixMilli()
		}
	}
	return &Credential{
		Mode:      ModeToken,
		MediaURL:  parsed.SampleHLSURL,
		Token:     parsed.Token,
		ExpiresAt: expiry(exp, req.ExpiresInSeconds),
		Raw:       raw,
	}, nil
}

// tokenExpiry reads the exp claim of a JWT without verifying the signature.
// The client has no signing key; the claim is advisory display data here.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// acquireFolderURL runs the canonical two-step flow: request a signed URL
// for the whole folder, then hit the returned auth URL so the backend's
// Set-Cookie response lands in the jar.
func (c *Client) acquireFolderURL(ctx context.Context, req Request) (*Credential, error) {
	req.IsFolder = true
	if req.PlaylistFile == "" {
		return nil, &AcquireError{
			Sentinel: ErrInvalidRequest,
			Op:       "signed_url",
			Reason:   "playlistFile is required for the folder flow",
		}
	}

	parsed, raw, status, err := c.post(ctx, "signed_url", req)
	if err != nil {
		return nil, err
	}
	// Shape is checked before status: a response without both URLs is a
	// shape failure no matter what the backend set the status to.
	if parsed.AuthURL == "" || parsed.PlaylistURL == "" {
		if !is2xx(status) && parsed.Message != "" {
			return nil, backendError("signed_url", status, parsed)
		}
		return nil, &AcquireError{
			Sentinel: ErrBadShape,
			Op:       "signed_url",
			Status:   status,
			Reason:   "invalid response: missing authUrl or playlistUrl",
		}
	}
	if !is2xx(status) {
		return nil, backendError("signed_url", status, parsed)
	}

	if err := c.fetchAuthURL(ctx, parsed.AuthURL); err != nil {
		return nil, err
	}

	return &Credential{
		Mode:      ModeSignedURL,
		MediaURL:  parsed.PlaylistURL,
		ExpiresAt: expiry(parsed.ExpiresAt, req.ExpiresInSeconds),
		Raw:       raw,
	}, nil
}

// fetchAuthURL issues the credentialed GET that establishes the signed
// cookies. This is the one step that mutates shared state: the jar.
func (c *Client) fetchAuthURL(ctx context.Context, authURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return &AcquireError{Sentinel: ErrCookieSetup, Op: "auth_url", Reason: "failed to set signed cookies", Err: err}
	}
	res, err := c.http.Do(req)
	if err != nil {
		return &AcquireError{Sentinel: ErrCookieSetup, Op: "auth_url", Reason: "failed to set signed cookies", Err: err}
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBytes))

	if !is2xx(res.StatusCode) {
		return &AcquireError{
			Sentinel: ErrCookieSetup,
			Op:       "auth_url",
			Status:   res.StatusCode,
			Reason:   "failed to set signed cookies",
		}
	}
	c.logger.Debug().
		Str(log.FieldEvent, "signer.cookies_set").
		Int(log.FieldStatus, res.StatusCode).
		Msg("signed cookies established")
	return nil
}
