package accounts_test

import (
	"errors"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type validatorStub struct {
	calls  int
	claims accounts.AuthClaims
	err    error
}

func (v *validatorStub) Validate(tokenString string) (accounts.AuthClaims, error) {
	v.calls++
	return v.claims, v.err
}

func TestMultiTokenValidator_UsesFirstSuccess(t *testing.T) {
	claims := &accounts.JWTClaims{}
	primary := &validatorStub{claims: claims}
	secondary := &validatorStub{claims: &accounts.JWTClaims{}}

	validator := accounts.NewMultiTokenValidator(primary, secondary)

	result, err := validator.Validate("token")
	require.NoError(t, err)
	assert.Same(t, claims, result)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestMultiTokenValidator_FallbacksOnMalformed(t *testing.T) {
	claims := &accounts.JWTClaims{}
	primary := &validatorStub{err: errors.New("token is malformed")}
	secondary := &validatorStub{claims: claims}

	validator := accounts.NewMultiTokenValidator(primary, secondary)

	result, err := validator.Validate("token")
	require.NoError(t, err)
	assert.Same(t, claims, result)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestMultiTokenValidator_ReturnsNonMalformedError(t *testing.T) {
	primary := &validatorStub{err: accounts.ErrTokenExpired}
	secondary := &validatorStub{claims: &accounts.JWTClaims{}}

	validator := accounts.NewMultiTokenValidator(primary, secondary)

	result, err := validator.Validate("token")
	assert.Nil(t, result)
	assert.True(t, accounts.IsTokenExpiredError(err))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls)
}

func TestMultiTokenValidator_AllMalformed(t *testing.T) {
	primary := &validatorStub{err: errors.New("token is malformed")}
	secondary := &validatorStub{err: errors.New("missing or malformed JWT")}

	validator := accounts.NewMultiTokenValidator(primary, secondary)

	result, err := validator.Validate("token")
	assert.Nil(t, result)
	assert.True(t, accounts.IsMalformedError(err))
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestMultiTokenValidator_EmptyValidators(t *testing.T) {
	validator := accounts.NewMultiTokenValidator(nil, nil)

	result, err := validator.Validate("token")
	assert.Nil(t, result)
	assert.True(t, accounts.IsMalformedError(err))
}
