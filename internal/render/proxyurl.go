package render

import (
	"net/url"
	"strings"
)

// proxyPathSuffixes identifies wrapper endpoints that tunnel a real image
// URL through a query parameter. The editor front end routes external images
// through such a proxy to avoid canvas CORS taint.
var proxyPathSuffixes = []string{"/proxy", "/image-proxy", "/img-proxy"}

// proxyParamNames are the query parameters, in priority order, that may
// carry the wrapped target URL.
var proxyParamNames = []string{"url", "src", "target"}

// ResolveTargetURL recovers the real image URL from a wrapped proxy URL.
// Non-proxy URLs are returned unchanged, as is any input that cannot be
// parsed or carries no recognizable target. The function is pure: no
// network, no state.
func ResolveTargetURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	if !isProxyPath(u.Path) {
		return raw
	}

	q := u.Query()
	for _, name := range proxyParamNames {
		target := strings.TrimSpace(q.Get(name))
		if target == "" {
			continue
		}
		// The target itself may be another wrapped URL.
		if resolved := ResolveTargetURL(target); resolved != "" {
			return resolved
		}
	}
	return raw
}

func isProxyPath(path string) bool {
	for _, suffix := range proxyPathSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}
