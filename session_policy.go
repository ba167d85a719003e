package accounts

import (
	"strings"
	"time"
)

// sessionTokenTTL is the lifetime of a non remember-me session token. The
// cookie itself is a browser-session cookie; the token just needs to outlive
// any realistic browsing session.
const sessionTokenTTL = 24 * time.Hour

// SafeURLFunc reports whether a caller-supplied redirect target may be
// honored. Anything rejected falls back to the configured default.
type SafeURLFunc func(target string) bool

// SessionPolicy translates the remember-me flag into concrete session
// lifetimes and resolves the post-signin destination.
type SessionPolicy struct {
	config Config
	safe   SafeURLFunc
}

// SessionPolicyOption customizes policy construction.
type SessionPolicyOption func(*SessionPolicy)

// WithSafeURLFunc replaces the redirect safety check.
func WithSafeURLFunc(fn SafeURLFunc) SessionPolicyOption {
	return func(p *SessionPolicy) {
		if fn != nil {
			p.safe = fn
		}
	}
}

// NewSessionPolicy returns the policy for the given configuration.
func NewSessionPolicy(config Config, opts ...SessionPolicyOption) *SessionPolicy {
	p := &SessionPolicy{
		config: config,
		safe:   isLocalRedirect,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// TokenTTL is the session token lifetime for the given remember-me choice.
func (p *SessionPolicy) TokenTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return time.Duration(p.config.rememberMeDays()) * 24 * time.Hour
	}
	return sessionTokenTTL
}

// CookieMaxAge is the session cookie lifetime. Zero means a browser-session
// cookie that dies when the browser closes.
func (p *SessionPolicy) CookieMaxAge(rememberMe bool) time.Duration {
	if rememberMe {
		return time.Duration(p.config.rememberMeDays()) * 24 * time.Hour
	}
	return 0
}

// RedirectAfterSignin resolves where a fresh session should land: the
// caller-supplied next target when it passes the safety check, otherwise
// the configured default with {username} substituted.
func (p *SessionPolicy) RedirectAfterSignin(next, username string) string {
	if next != "" && p.safe(next) {
		return next
	}
	return strings.ReplaceAll(p.config.defaultRedirect(), "{username}", NormalizeUsername(username))
}

// isLocalRedirect accepts only same-host absolute paths. Protocol-relative
// targets ("//evil.example") and backslash tricks are rejected.
func isLocalRedirect(target string) bool {
	if !strings.HasPrefix(target, "/") {
		return false
	}
	if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	if strings.ContainsAny(target, "\r\n") {
		return false
	}
	return true
}
