package auth

import (
	"net/url"

	"github.com/ziminpro/bird/internal/session"
)

const (
	// RedirectParam carries the base64url session payload on the OAuth return URL
	RedirectParam = "auth"

	// GitHubAuthorizationPath starts the GitHub OAuth flow on UMS
	GitHubAuthorizationPath = "/oauth2/authorization/github"
)

// ApplyRedirectSession installs the session carried by the auth query parameter
// of u, if any, as a remembered session. It returns u without the parameter and
// whether the parameter was present. Malformed payloads are dropped silently.
func ApplyRedirectSession(sc *Context, u *url.URL) (*url.URL, bool) {
	query := u.Query()
	if !query.Has(RedirectParam) {
		return u, false
	}

	if s, err := session.DecodeRedirectPayload(query.Get(RedirectParam)); err == nil {
		if !sc.Install(s, true) {
			sc.logger.Debug().Msg("Ignoring expired session from OAuth redirect")
		}
	} else {
		sc.logger.Debug().Err(err).Msg("Ignoring malformed session from OAuth redirect")
	}

	query.Del(RedirectParam)
	cleaned := *u
	cleaned.RawQuery = query.Encode()
	return &cleaned, true
}
