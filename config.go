package accounts

import "time"

// RememberMeWindow is the duration pair for extended sessions, in days.
// Default is what a plain remember-me checkbox grants; Max caps any
// caller-supplied value.
type RememberMeWindow struct {
	Default int
	Max     int
}

// Config holds the recognized account lifecycle options.
type Config struct {
	// ActivationRequired puts new signups in the unverified status until
	// they are activated with an emailed key. When false accounts are
	// created active.
	ActivationRequired bool

	// ActivationRetry allows expired activation keys to be reissued. When
	// false expiry is ignored and keys are honored regardless of age.
	ActivationRetry bool

	// ActivationWindow is how long an activation key is honored when
	// ActivationRetry is enabled.
	ActivationWindow time.Duration

	// SigninAfterSignup establishes a session right after signup. Only
	// meaningful when ActivationRequired is false.
	SigninAfterSignup bool

	// WithoutUsernames derives usernames from the email address instead of
	// requiring them at signup.
	WithoutUsernames bool

	// DisablePublicProfileList hides the profile listing from
	// non-staff viewers.
	DisablePublicProfileList bool

	// RememberMe is the extended session window.
	RememberMe RememberMeWindow

	// DefaultRedirect is the post-signin destination used when the request
	// carries no safe "next" target. The {username} placeholder is
	// substituted with the signed in user's username.
	DefaultRedirect string

	// SigningKey, Issuer and Audience feed the session token service.
	SigningKey string
	ContextKey string
	Issuer     string
	Audience   []string
}

// DefaultConfig mirrors the stock deployment: activation required with a
// seven day window, no reissue, month-long remember-me sessions.
func DefaultConfig() Config {
	return Config{
		ActivationRequired: true,
		ActivationWindow:   7 * 24 * time.Hour,
		RememberMe:         RememberMeWindow{Default: 30, Max: 30},
		DefaultRedirect:    "/accounts/{username}",
		ContextKey:         "accounts_session",
	}
}

func (c Config) activationWindow() time.Duration {
	if c.ActivationWindow <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.ActivationWindow
}

func (c Config) rememberMeDays() int {
	days := c.RememberMe.Default
	if days <= 0 {
		days = 30
	}
	if c.RememberMe.Max > 0 && days > c.RememberMe.Max {
		days = c.RememberMe.Max
	}
	return days
}

func (c Config) defaultRedirect() string {
	if c.DefaultRedirect == "" {
		return "/accounts/{username}"
	}
	return c.DefaultRedirect
}

// GetSigningKey implements TokenConfig.
func (c Config) GetSigningKey() string { return c.SigningKey }

// GetContextKey implements TokenConfig.
func (c Config) GetContextKey() string {
	if c.ContextKey == "" {
		return "accounts_session"
	}
	return c.ContextKey
}

// GetIssuer implements TokenConfig.
func (c Config) GetIssuer() string { return c.Issuer }

// GetAudience implements TokenConfig.
func (c Config) GetAudience() []string { return c.Audience }
