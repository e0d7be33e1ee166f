package gate

import (
	"net/url"
	"strings"
)

// NormalizeOrigin validates a browser Origin header and reduces it to a
// comparable scheme://host[:port] form. Default ports are dropped.
func NormalizeOrigin(origin string) (string, bool) {
	trimmed := strings.TrimSpace(origin)
	if trimmed == "" {
		return "", false
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, defaultPortSuffix(scheme))
	return scheme + "://" + host, true
}

func defaultPortSuffix(scheme string) string {
	if scheme == "http" {
		return ":80"
	}
	return ":443"
}

// OriginAllowed applies the allow-list. An empty list disables the check
// (non-hardened deployments); "*" allows every well-formed origin.
func OriginAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	normalized, ok := NormalizeOrigin(origin)
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == "*" {
			return true
		}
		if want, ok := NormalizeOrigin(a); ok && want == normalized {
			return true
		}
	}
	return false
}
