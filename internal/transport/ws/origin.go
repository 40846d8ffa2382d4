package ws

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker allows requests whose Origin matches one of the configured
// origins. An empty list or "*" allows everything.
type originChecker struct {
	allowAll bool
	allowed  map[string]struct{}
}

func newOriginChecker(origins []string) *originChecker {
	oc := &originChecker{allowed: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			oc.allowAll = true
			continue
		}
		if n, ok := normalizeOrigin(o); ok {
			oc.allowed[n] = struct{}{}
		}
	}
	if len(oc.allowed) == 0 {
		oc.allowAll = true
	}
	return oc
}

func (oc *originChecker) check(r *http.Request) bool {
	if oc.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients
		return true
	}
	n, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, ok = oc.allowed[n]
	return ok
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
