// SPDX-License-Identifier: MIT

package signer

import (
	"fmt"
	"net/http"
	"net/url"
)

// signedCookieNames is the CloudFront signed-cookie triple the backend issues.
var signedCookieNames = []string{
	"CloudFront-Key-Pair-Id",
	"CloudFront-Signature",
	"CloudFront-Expires",
}

// CookieStore models browser-held cookie storage as an explicit collaborator
// so the one shared mutable resource of the flow can be faked in tests.
type CookieStore interface {
	Cookies(u *url.URL) []*http.Cookie
	SetCookies(u *url.URL, cookies []*http.Cookie)
	Clear(u *url.URL)
}

type jarStore struct {
	jar http.CookieJar
}

// NewJarStore wraps an HTTP cookie jar in the CookieStore interface.
func NewJarStore(jar http.CookieJar) CookieStore {
	return &jarStore{jar: jar}
}

func (s *jarStore) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}

func (s *jarStore) SetCookies(u *url.URL, cookies []*http.Cookie) {
	s.jar.SetCookies(u, cookies)
}

// Clear expires the signed-cookie triple for the given origin. http.CookieJar
// has no delete; storing the cookies with a negative MaxAge removes them.
func (s *jarStore) Clear(u *url.URL) {
	expired := make([]*http.Cookie, 0, len(signedCookieNames))
	for _, name := range signedCookieNames {
		expired = append(expired, &http.Cookie{Name: name, Value: "", MaxAge: -1, Path: "/"})
	}
	s.jar.SetCookies(u, expired)
}

// MediaOrigin returns the media origin URL for a tenant domain.
func MediaOrigin(tenantDomain string) *url.URL {
	return &url.URL{Scheme: "https", Host: "media." + tenantDomain, Path: "/"}
}

// HasSignedCookies reports whether the full signed-cookie triple is present
// for the tenant's media origin.
func HasSignedCookies(store CookieStore, tenantDomain string) bool {
	cookies := store.Cookies(MediaOrigin(tenantDomain))
	present := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		if c.Value != "" {
			present[c.Name] = true
		}
	}
	for _, name := range signedCookieNames {
		if !present[name] {
			return false
		}
	}
	return true
}

// ClearSignedCookies drops the signed-cookie triple for the tenant (logout).
func ClearSignedCookies(store CookieStore, tenantDomain string) {
	store.Clear(MediaOrigin(tenantDomain))
}

// StreamURL builds the quality-suffixed HLS playlist URL for a tenant video,
// following the backend's layout: hls/{uploadId}/hls/{videoId}-{file}_{quality}.m3u8.
func StreamURL(tenantDomain, uploadID, videoID, file, quality string) string {
	return fmt.Sprintf("https://media.%s/hls/%s/hls/%s-%s_%s.m3u8",
		tenantDomain, uploadID, videoID, file, quality)
}
