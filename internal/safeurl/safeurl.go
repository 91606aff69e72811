package safeurl

import (
	"net"
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or local file access.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return (s == "http" || s == "https") && parsed.Host != ""
}

// IsPrivateHost reports whether u points at localhost, a loopback, link-local or
// RFC 1918 address. Hostnames other than "localhost" are not resolved.
func IsPrivateHost(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}

// IsPublicHTTP is IsHTTPOrHTTPS && !IsPrivateHost.
func IsPublicHTTP(u string) bool {
	return IsHTTPOrHTTPS(u) && !IsPrivateHost(u)
}

// RedactURL strips userinfo and the query string so upstream tokens stay out of logs.
func RedactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		if i := strings.IndexByte(u, '?'); i >= 0 {
			return u[:i] + "?…"
		}
		return u
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = ""
		return parsed.String() + "?…"
	}
	return parsed.String()
}
