package app

import (
	"net/url"
	"regexp"
	"strings"
)

// AllowedOrigin reports whether origin may operate on the application.
//
// An absent Origin header (empty string) always passes: DIAL clients on
// the local network speak plain sockets and send no origin. When a header
// is present it must match one of the application's origin patterns:
// https origins are compared host-only so the port never matters, every
// other scheme is matched as an anchored regular expression. An
// application with no origins configured denies all origin-bearing
// requests.
func (a *Application) AllowedOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	if len(a.Origins) == 0 {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	for _, pattern := range a.Origins {
		if strings.EqualFold(u.Scheme, "https") {
			if hostMatches(pattern, u) {
				return true
			}
			continue
		}
		if originMatches(pattern, origin) {
			return true
		}
	}
	return false
}

// hostMatches compares an https origin against a pattern by host alone.
// The pattern may itself be a URL or a bare host; ports on either side
// are ignored because https origins from embedded browsers routinely
// carry non-default ports.
func hostMatches(pattern string, origin *url.URL) bool {
	host := pattern
	if p, err := url.Parse(pattern); err == nil && p.Host != "" {
		host = p.Host
	}
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	return strings.EqualFold(host, origin.Hostname())
}

// originMatches treats the pattern as a regular expression anchored at the
// start of the origin string. Invalid patterns never match.
func originMatches(pattern, origin string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return false
	}
	return re.MatchString(origin)
}
