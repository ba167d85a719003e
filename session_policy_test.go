package accounts_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	accounts "github.com/goliatone/go-accounts"
)

func TestSessionPolicyTokenTTL(t *testing.T) {
	policy := accounts.NewSessionPolicy(accounts.Config{
		RememberMe: accounts.RememberMeWindow{Default: 14, Max: 30},
	})

	assert.Equal(t, 24*time.Hour, policy.TokenTTL(false))
	assert.Equal(t, 14*24*time.Hour, policy.TokenTTL(true))
}

func TestSessionPolicyTokenTTLClampsToMax(t *testing.T) {
	policy := accounts.NewSessionPolicy(accounts.Config{
		RememberMe: accounts.RememberMeWindow{Default: 90, Max: 30},
	})

	assert.Equal(t, 30*24*time.Hour, policy.TokenTTL(true))
}

func TestSessionPolicyCookieMaxAge(t *testing.T) {
	policy := accounts.NewSessionPolicy(accounts.Config{
		RememberMe: accounts.RememberMeWindow{Default: 30, Max: 30},
	})

	// no remember-me means a browser-session cookie
	assert.Equal(t, time.Duration(0), policy.CookieMaxAge(false))
	assert.Equal(t, 30*24*time.Hour, policy.CookieMaxAge(true))
}

func TestSessionPolicyRedirectAfterSignin(t *testing.T) {
	policy := accounts.NewSessionPolicy(accounts.Config{
		DefaultRedirect: "/accounts/{username}",
	})

	t.Run("safe next target wins", func(t *testing.T) {
		assert.Equal(t, "/dashboard", policy.RedirectAfterSignin("/dashboard", "pat"))
	})

	t.Run("empty next falls back to default", func(t *testing.T) {
		assert.Equal(t, "/accounts/pat", policy.RedirectAfterSignin("", "pat"))
	})

	t.Run("username is normalized in default", func(t *testing.T) {
		assert.Equal(t, "/accounts/pat", policy.RedirectAfterSignin("", "PAT"))
	})

	t.Run("unsafe targets fall back to default", func(t *testing.T) {
		unsafe := []string{
			"https://evil.example",
			"//evil.example",
			"/\\evil.example",
			"relative/path",
			"/ok\r\nSet-Cookie: x=y",
		}
		for _, target := range unsafe {
			assert.Equal(t, "/accounts/pat", policy.RedirectAfterSignin(target, "pat"), "target %q", target)
		}
	})
}

func TestSessionPolicyCustomSafeURLFunc(t *testing.T) {
	policy := accounts.NewSessionPolicy(accounts.Config{
		DefaultRedirect: "/home",
	}, accounts.WithSafeURLFunc(func(target string) bool {
		return target == "/allowed"
	}))

	assert.Equal(t, "/allowed", policy.RedirectAfterSignin("/allowed", "pat"))
	assert.Equal(t, "/home", policy.RedirectAfterSignin("/denied", "pat"))
}
