// Package origin validates browser Origin headers for the HTTP endpoints
// and the signaling WebSocket upgrade.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates and normalizes a browser Origin header into
// scheme://host[:port] form with default ports stripped. The special value
// "null" is allowed and returned as-is.
func Normalize(header string) (normalized string, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = normalizeHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Allowed reports whether the normalized origin may access the given
// request host.
//
// With a non-empty allowlist, each entry must be "*" or a normalized origin
// string as produced by Normalize. With an empty allowlist the policy is
// same-host only. Scheme is intentionally not compared against the request:
// behind a TLS-terminating proxy the request looks like HTTP while the
// browser Origin is HTTPS.
func Allowed(normalizedOrigin, originHost, requestHost string, allowlist []string) bool {
	if len(allowlist) > 0 {
		for _, allowed := range allowlist {
			if allowed == "*" || allowed == normalizedOrigin {
				return true
			}
		}
		return false
	}

	var scheme string
	switch {
	case strings.HasPrefix(normalizedOrigin, "http://"):
		scheme = "http"
	case strings.HasPrefix(normalizedOrigin, "https://"):
		scheme = "https"
	default:
		// "null" can never match a host-based request.
		return false
	}

	reqHost, ok := normalizeHost(strings.TrimSpace(requestHost), scheme)
	if !ok {
		return false
	}
	return originHost == reqHost
}

// normalizeHost lowercases a host[:port] authority, validates the port, and
// strips the scheme's default port. IPv6 literals keep their brackets.
func normalizeHost(raw, scheme string) (string, bool) {
	raw = strings.ToLower(raw)
	hostname, portStr, ok := splitAuthority(raw)
	if !ok || hostname == "" {
		return "", false
	}

	var port uint64
	if portStr != "" {
		n, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := hostname
	if strings.Contains(hostname, ":") {
		host = "[" + hostname + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

func splitAuthority(raw string) (hostname, port string, ok bool) {
	if raw == "" {
		return "", "", false
	}
	if strings.HasPrefix(raw, "[") {
		end := strings.IndexByte(raw, ']')
		if end < 0 {
			return "", "", false
		}
		hostname = raw[1:end]
		rest := raw[end+1:]
		switch {
		case rest == "":
			return hostname, "", true
		case strings.HasPrefix(rest, ":") && len(rest) > 1:
			return hostname, rest[1:], true
		default:
			return "", "", false
		}
	}

	switch strings.Count(raw, ":") {
	case 0:
		return raw, "", true
	case 1:
		i := strings.IndexByte(raw, ':')
		if i == 0 || i == len(raw)-1 {
			return "", "", false
		}
		return raw[:i], raw[i+1:], true
	default:
		// Unbracketed IPv6 literals are not valid authority components.
		return "", "", false
	}
}
