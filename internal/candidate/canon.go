package candidate

import (
	"net/url"
	"strings"
)

// Canonicalize normalizes a URL into its dedup key: lower-cased scheme and
// host, default port removed, trailing slashes trimmed from the path, and
// userinfo, query and fragment dropped. It never fails; input that cannot be
// parsed as an absolute URL yields "", as does a URL whose canonical form
// would not canonicalize to itself.
func Canonicalize(raw string) string {
	c := canonicalize(raw)
	if c == "" || canonicalize(c) != c {
		return ""
	}
	return c
}

func canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if strings.Contains(host, ":") {
		// Hostname decodes an IPv6 zone ("%25en0" -> "%en0"); re-escape it.
		host = "[" + strings.Replace(host, "%", "%25", 1) + "]"
	}
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	return scheme + "://" + host + path
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// Domain returns the host of rawURL lower-cased with a leading "www."
// removed, or "" when the URL has no host.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return NormalizeDomain(u.Hostname())
}

// NormalizeDomain lower-cases a host name and strips a leading "www.".
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
