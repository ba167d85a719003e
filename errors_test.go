package accounts_test

import (
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestIsTokenExpiredError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Legacy token expired error (string match)",
			err:      errors.New("some wrapper: token is expired"),
			expected: true,
		},
		{
			name:     "Different structured error",
			err:      accounts.ErrIdentityNotFound,
			expected: false,
		},
		{
			name:     "Different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := accounts.IsTokenExpiredError(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestIsMalformedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Legacy malformed error (string match)",
			err:      errors.New("token is malformed"),
			expected: true,
		},
		{
			name:     "Legacy missing JWT error (string match)",
			err:      errors.New("missing or malformed JWT"),
			expected: true,
		},
		{
			name:     "Different legacy error",
			err:      errors.New("invalid token"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := accounts.IsMalformedError(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestStructuredErrorProperties(t *testing.T) {
	t.Run("ErrKeyNotFound", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryNotFound, accounts.ErrKeyNotFound.Category)
		assert.Equal(t, accounts.TextCodeKeyNotFound, accounts.ErrKeyNotFound.TextCode)
	})

	t.Run("ErrKeyExpired", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryValidation, accounts.ErrKeyExpired.Category)
		assert.Equal(t, accounts.TextCodeKeyExpired, accounts.ErrKeyExpired.TextCode)
	})

	t.Run("ErrKeyNotExpired", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryConflict, accounts.ErrKeyNotExpired.Category)
		assert.Equal(t, accounts.TextCodeKeyNotExpired, accounts.ErrKeyNotExpired.TextCode)
	})

	t.Run("ErrRetryDisabled", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryOperation, accounts.ErrRetryDisabled.Category)
		assert.Equal(t, accounts.TextCodeRetryDisabled, accounts.ErrRetryDisabled.TextCode)
	})

	t.Run("ErrForbidden", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuthz, accounts.ErrForbidden.Category)
		assert.Equal(t, accounts.TextCodeForbidden, accounts.ErrForbidden.TextCode)
	})

	t.Run("ErrAccountDisabled", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, accounts.ErrAccountDisabled.Category)
		assert.Equal(t, accounts.TextCodeAccountDisabled, accounts.ErrAccountDisabled.TextCode)
	})

	t.Run("ErrInvalidCredentials", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, accounts.ErrInvalidCredentials.Category)
		assert.Equal(t, accounts.TextCodeInvalidCredentials, accounts.ErrInvalidCredentials.TextCode)
	})

	t.Run("ErrInvalidTransition", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryValidation, accounts.ErrInvalidTransition.Category)
		assert.Equal(t, accounts.TextCodeInvalidTransition, accounts.ErrInvalidTransition.TextCode)
	})

	t.Run("ErrTooManyLoginAttempts", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryRateLimit, accounts.ErrTooManyLoginAttempts.Category)
		assert.Equal(t, accounts.TextCodeTooManyAttempts, accounts.ErrTooManyLoginAttempts.TextCode)
	})
}

func TestHasTextCode(t *testing.T) {
	assert.True(t, accounts.HasTextCode(accounts.ErrKeyExpired, accounts.TextCodeKeyExpired))
	assert.False(t, accounts.HasTextCode(accounts.ErrKeyExpired, accounts.TextCodeKeyNotFound))
	assert.False(t, accounts.HasTextCode(errors.New("plain"), accounts.TextCodeKeyExpired))
	assert.False(t, accounts.HasTextCode(nil, accounts.TextCodeKeyExpired))

	withMeta := accounts.ErrForbidden.WithMetadata(map[string]any{"operation": "x"})
	assert.True(t, accounts.HasTextCode(withMeta, accounts.TextCodeForbidden))
}
