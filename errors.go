package accounts

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeKeyNotFound is returned when a key is unknown or consumed
	TextCodeKeyNotFound = "ACCOUNT_KEY_NOT_FOUND"
	// TextCodeKeyExpired is returned for keys older than the window
	TextCodeKeyExpired = "ACCOUNT_KEY_EXPIRED"
	// TextCodeKeyNotExpired is returned when a reissue is requested too early
	TextCodeKeyNotExpired = "ACCOUNT_KEY_NOT_EXPIRED"
	// TextCodeRetryDisabled is returned when reissue is configuration-disabled
	TextCodeRetryDisabled = "ACTIVATION_RETRY_DISABLED"
	// TextCodeForbidden is returned on authorization denial
	TextCodeForbidden = "ACCOUNT_OPERATION_FORBIDDEN"
	// TextCodeAccountDisabled is returned when credentials verify but the
	// account is not active
	TextCodeAccountDisabled = "ACCOUNT_DISABLED"
	// TextCodeInvalidCredentials is returned on failed verification
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeInvalidTransition is returned on a disallowed status change
	TextCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
	// TextCodeTooManyAttempts is returned when the login attempt cap is hit
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrKeyNotFound covers a key that never existed, was already consumed, or
// was superseded. The cases are deliberately indistinguishable: a consumed
// key must never again report success, and callers must not be able to probe
// whether a key was ever valid.
var ErrKeyNotFound = goerrors.New("activation or confirmation key not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeKeyNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrKeyExpired is returned by Activate when the key is older than the
// activation window and reissue is enabled. The record is left untouched so
// ActivateRetry can act on it.
var ErrKeyExpired = goerrors.New("activation key has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeKeyExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrKeyNotExpired is returned by ActivateRetry for a key that is still
// honorable; the caller should fall back to the activation path.
var ErrKeyNotExpired = goerrors.New("activation key has not expired", goerrors.CategoryConflict).
	WithTextCode(TextCodeKeyNotExpired).
	WithCode(goerrors.CodeConflict)

// ErrRetryDisabled is returned by ActivateRetry when reissue is disabled by
// configuration; it fails closed so the caller gets a uniform error path.
var ErrRetryDisabled = goerrors.New("activation key reissue is disabled", goerrors.CategoryOperation).
	WithTextCode(TextCodeRetryDisabled).
	WithCode(goerrors.CodeBadRequest)

// ErrForbidden is an authorization denial. It is never downgraded to a
// redirect by this package.
var ErrForbidden = goerrors.New("actor is not allowed to perform this operation", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrAccountDisabled is returned on sign in when the credentials verify but
// the account is not active, so the caller can surface the disabled-account
// view instead of a generic failure.
var ErrAccountDisabled = goerrors.New("account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidCredentials is returned when identifier/password verification
// fails.
var ErrInvalidCredentials = goerrors.New("invalid identifier or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidTransition is returned when a requested status change is not
// allowed.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTooManyLoginAttempts is returned when an account hit the attempt cap
// inside the cool down window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrImmutableClaimMutation is returned when a claims decorator touches a
// registered or identity claim.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode("IMMUTABLE_CLAIM_MUTATION")

// ErrNoEmptyString is the error used for empty password input
var ErrNoEmptyString = errors.New("password must not be an empty string")

// ErrMismatchedHashAndPassword is the bcrypt comparison failure
var ErrMismatchedHashAndPassword = errors.New("mismatched password and hash")

// ErrIdentityNotFound is the error we return for not found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToParseData parse error
var ErrUnableToParseData = errors.New("unable to parse data")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrTokenExpired is our rich error for expired session tokens.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is our rich error for malformed session tokens.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// HasTextCode reports whether err carries the given rich error text code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
