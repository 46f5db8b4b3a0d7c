// SPDX-License-Identifier: MIT

// Package config loads the tenantcast configuration from the environment.
//
// Precedence is ENV > defaults; the demo has no config file layer. All
// variables use the TC_ prefix.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Defaults mirror the demo values the flow was built against.
const (
	DefaultAPIBase      = "http://localhost:4000"
	DefaultTenantDomain = "tenant-domain.in"
	DefaultPathPrefix   = "hls/1759300486531/hls/"
	DefaultPlaylistFile = "1758719155895-BigBuckBunny.m3u8"
	DefaultExpiresIn    = 3600
	DefaultStrategy     = "folder_url"
	DefaultHTTPTimeout  = 30 * time.Second
)

// Config holds everything the credential flow needs to run.
type Config struct {
	APIBase       string        // backend base URL
	APIKey        string        // bearer token for the credential endpoints
	AccountTypeID string        // tenant account type identifier
	TenantDomain  string        // fully-qualified tenant host segment
	PathPrefix    string        // tenant-relative media path or path prefix
	PlaylistFile  string        // known playlist filename for the folder flow
	ExpiresIn     int           // credential lifetime in seconds
	Strategy      string        // acquisition strategy: cookie, token or folder_url
	HTTPTimeout   time.Duration // transport timeout for backend calls
	LogLevel      string
	MetricsAddr   string // optional address for the /metrics listener
}

// FromEnv builds a Config from TC_* environment variables and defaults.
func FromEnv() Config {
	return Config{
		APIBase:       ParseString("TC_API_BASE", DefaultAPIBase),
		APIKey:        ParseString("TC_API_KEY", ""),
		AccountTypeID: ParseString("TC_ACCOUNT_TYPE_ID", ""),
		TenantDomain:  ParseString("TC_TENANT_DOMAIN", DefaultTenantDomain),
		PathPrefix:    ParseString("TC_PATH_PREFIX", DefaultPathPrefix),
		PlaylistFile:  ParseString("TC_PLAYLIST_FILE", DefaultPlaylistFile),
		ExpiresIn:     ParseInt("TC_EXPIRES_IN", DefaultExpiresIn),
		Strategy:      ParseString("TC_STRATEGY", DefaultStrategy),
		HTTPTimeout:   ParseDuration("TC_HTTP_TIMEOUT", DefaultHTTPTimeout),
		LogLevel:      ParseString("TC_LOG_LEVEL", "info"),
		MetricsAddr:   ParseString("TC_METRICS_ADDR", ""),
	}
}

// Validate checks the configuration before the flow starts.
func (c Config) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("config: APIBase must not be empty")
	}
	if u, err := url.Parse(c.APIBase); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: APIBase %q is not an absolute URL", c.APIBase)
	}
	if c.APIKey == "" {
		return fmt.Errorf("config: APIKey is required (TC_API_KEY)")
	}
	if c.AccountTypeID == "" {
		return fmt.Errorf("config: AccountTypeID is required (TC_ACCOUNT_TYPE_ID)")
	}
	if c.TenantDomain == "" {
		return fmt.Errorf("config: TenantDomain must not be empty")
	}
	if c.PathPrefix == "" {
		return fmt.Errorf("config: PathPrefix must not be empty")
	}
	if c.ExpiresIn <= 0 {
		return fmt.Errorf("config: ExpiresIn must be positive, got %d", c.ExpiresIn)
	}
	switch c.Strategy {
	case "cookie", "token", "folder_url":
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("config: HTTPTimeout must be positive, got %s", c.HTTPTimeout)
	}
	return nil
}
