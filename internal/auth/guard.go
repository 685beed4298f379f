package auth

import (
	"net/url"
	"strings"
)

// ForbiddenPath is where authenticated but unprivileged users are sent
const ForbiddenPath = "/forbidden"

// Decision is the outcome of a route guard: allow, or redirect to Target
// remembering From for the return trip.
type Decision struct {
	Allow  bool
	Target string
	From   string
}

// Allowed is the decision to render the guarded view
var Allowed = Decision{Allow: true}

// RequireAuth allows authenticated sessions and sends everyone else to the
// login view. A login still in flight is not authenticated.
func RequireAuth(s Snapshot, path string) Decision {
	if !s.IsAuthenticated() {
		return Decision{Target: SignInPath, From: path}
	}
	return Allowed
}

// RequireAdmin is RequireAuth plus the administrator role. Known users without
// the role are sent to the forbidden view instead of the login view.
func RequireAdmin(s Snapshot, path string) Decision {
	if d := RequireAuth(s, path); !d.Allow {
		return d
	}
	if !s.IsAdmin() {
		return Decision{Target: ForbiddenPath}
	}
	return Allowed
}

// Location renders a redirect decision as a URL
func (d Decision) Location() string {
	if d.Allow {
		return ""
	}
	if d.From == "" {
		return d.Target
	}
	return d.Target + "?" + url.Values{"from": {d.From}}.Encode()
}

// LandingPath is where a freshly signed-in user goes when no return path is known
func LandingPath(s Snapshot) string {
	if s.IsAdmin() {
		return "/admin"
	}
	return "/console"
}

// ReturnPath picks the post-login destination: from when it is a local path,
// the landing path otherwise.
func ReturnPath(from string, s Snapshot) string {
	if IsLocalPath(from) && !strings.HasPrefix(from, SignInPath) {
		return from
	}
	return LandingPath(s)
}

// IsLocalPath reports whether p is an absolute path on this site
func IsLocalPath(p string) bool {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}
