// SPDX-License-Identifier: MIT

// Package signer implements the client side of the signed-media-access flow:
// it obtains a time-limited, tenant-scoped playback credential from the
// backend and reports it in a uniform shape regardless of strategy.
package signer

import (
	"encoding/json"
	"fmt"
	"time"
)

// TransportMode identifies how the acquired credential travels with
// subsequent media requests.
type TransportMode string

const (
	// ModeCookie relies on the signed-cookie pair held in the cookie jar.
	ModeCookie TransportMode = "cookie"

	// ModeToken carries an opaque token attached to every media request.
	ModeToken TransportMode = "token"

	// ModeSignedURL relies on cookies established by the auth-URL fetch of
	// the folder flow.
	ModeSignedURL TransportMode = "signed_url"
)

// String implements fmt.Stringer.
func (m TransportMode) String() string {
	return string(m)
}

// IsValid checks whether the transport mode is valid.
func (m TransportMode) IsValid() bool {
	switch m {
	case ModeCookie, ModeToken, ModeSignedURL:
		return true
	default:
		return false
	}
}

// CredentialedFetch reports whether media requests must be issued with the
// shared cookie jar attached. Token mode does not use cookies; the token is
// attached as the "token" query parameter of every media request instead.
func (m TransportMode) CredentialedFetch() bool {
	return m == ModeCookie || m == ModeSignedURL
}

// Strategy selects one of the three acquisition flows.
type Strategy string

const (
	// StrategyCookie posts to the signed_cookies endpoint.
	StrategyCookie Strategy = "cookie"

	// StrategyToken posts to the generate_jwt endpoint.
	StrategyToken Strategy = "token"

	// StrategyFolderURL runs the canonical two-step signed_url flow.
	StrategyFolderURL Strategy = "folder_url"
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	return string(s)
}

// IsValid checks whether the strategy is valid.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyCookie, StrategyToken, StrategyFolderURL:
		return true
	default:
		return false
	}
}

// ParseStrategy parses a string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid strategy: %q", s)
	}
	return st, nil
}

// Request carries everything a credential endpoint needs.
type Request struct {
	APIKey           string // bearer token, never logged in clear
	AccountTypeID    string
	TenantDomain     string // fully-qualified tenant host segment
	Path             string // tenant-relative resource path or path prefix
	ExpiresInSeconds int    // credential lifetime, defaults to 3600
	IsFolder         bool
	PlaylistFile     string // known playlist filename for the folder flow
}

// DefaultExpiresInSeconds is applied when the request leaves the lifetime unset.
const DefaultExpiresInSeconds = 3600

// Validate enforces the request invariant: the identifying fields are
// non-empty and the lifetime is positive.
func (r Request) Validate() error {
	if r.APIKey == "" {
		return fmt.Errorf("request: apiKey must not be empty")
	}
	if r.AccountTypeID == "" {
		return fmt.Errorf("request: accountTypeId must not be empty")
	}
	if r.TenantDomain == "" {
		return fmt.Errorf("request: tenantDomain must not be empty")
	}
	if r.Path == "" {
		return fmt.Errorf("request: path must not be empty")
	}
	if r.ExpiresInSeconds < 0 {
		return fmt.Errorf("request: expiresInSeconds must be positive, got %d", r.ExpiresInSeconds)
	}
	return nil
}

// Credential is the uniform success result of an acquisition.
type Credential struct {
	Mode      TransportMode
	MediaURL  string // playable HLS manifest URL
	Token     string // set for ModeToken only
	ExpiresAt time.Time
	Raw       json.RawMessage // backend payload, kept for diagnostics
}
