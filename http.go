package accounts

import (
	"net/http"
	"time"

	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const rejectedRouteCookie = "accounts_rejected_route"

// RouteAuthenticator wires the Authenticator into HTTP routes: it sets and
// clears session cookies, guards protected routes, and remembers the route a
// visitor was bounced from so a later sign in can return them there.
type RouteAuthenticator struct {
	auth             Authenticator
	cfg              Config
	policy           *SessionPolicy
	tokenValidator   TokenValidator
	Logger           Logger
	AuthErrorHandler func(c router.Context, err error) error // TODO: make functions
	ErrorHandler     func(c router.Context, err error) error // TODO: make functions
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		policy: NewSessionPolicy(cfg),
		Logger: defLogger{},
	}

	if ts, ok := auther.(interface{ TokenService() TokenService }); ok {
		a.tokenValidator = ts.TokenService()
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithTokenValidator(validator TokenValidator) *RouteAuthenticator {
	if validator != nil {
		a.tokenValidator = validator
	}
	return a
}

func (a *RouteAuthenticator) WithSessionPolicy(policy *SessionPolicy) *RouteAuthenticator {
	if policy != nil {
		a.policy = policy
	}
	return a
}

func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	validator := tokenValidatorAdapter{validator: a.tokenValidator}
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return jwtware.New(jwtware.Config{
			ErrorHandler: errorHandler,
			SigningKey: jwtware.SigningKey{
				Key:    []byte(cfg.GetSigningKey()),
				JWTAlg: "HS256",
			},
			ContextKey:      cfg.GetContextKey(),
			TokenLookup:     "cookie:" + cfg.GetContextKey() + ",header:" + router.HeaderAuthorization,
			TokenValidator:  validator,
			ContextEnricher: ContextEnricherAdapter,
		})(hf)
	}
}

// SignIn authenticates the payload credentials and, on success, sets the
// session cookie and redirects per the remember-me policy.
func (a *RouteAuthenticator) SignIn(ctx router.Context, identifier, password string, rememberMe bool) (*SignInResult, error) {
	result, err := a.auth.SignIn(ctx.Context(), identifier, password, rememberMe)
	if err != nil {
		a.Logger.Error("Sign in error: %s", err)
		return nil, err
	}

	a.setCookieToken(ctx, result.Token, result.CookieMaxAge)
	return result, nil
}

// SignOut drops the session cookie and records the sign out. Tokens are
// stateless so the cookie delete is the whole revocation.
func (a *RouteAuthenticator) SignOut(ctx router.Context, actor Identity) {
	a.auth.SignOut(ctx.Context(), actor)
	a.cookieDel(ctx, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid session token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) GetRedirect(ctx router.Context, def ...string) string {
	r := ctx.Cookies(rejectedRouteCookie)
	if r == "" {
		return def[0]
	}
	a.cookieDel(ctx, rejectedRouteCookie)
	return r
}

func (a *RouteAuthenticator) GetRedirectOrDefault(ctx router.Context) string {
	refererHeader := string(ctx.Referer())

	r := ctx.Cookies(rejectedRouteCookie, refererHeader)
	if r == "" {
		r = "/"
	}
	a.cookieDel(ctx, rejectedRouteCookie)
	return r
}

func (a *RouteAuthenticator) SetRedirect(ctx router.Context) {
	a.Logger.Info("Setting redirect cookie", "key", rejectedRouteCookie, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     rejectedRouteCookie,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// Impersonate mints a session for the identifier without a password check and
// sets a browser-session cookie. Used for sign-in-after-signup.
func (a *RouteAuthenticator) Impersonate(c router.Context, identifier string) error {
	token, err := a.auth.Impersonate(c.Context(), identifier)
	if err != nil {
		a.Logger.Error("Impersonate authentication error", "error", err)
		return err
	}

	a.setCookieToken(c, token, 0)
	return nil
}

// setCookieToken writes the session cookie. A zero maxAge means a browser
// session cookie: no Expires attribute.
func (a *RouteAuthenticator) setCookieToken(c router.Context, val string, maxAge time.Duration) {
	cookie := &router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(maxAge)
	}
	c.Cookie(cookie)
}

func (a *RouteAuthenticator) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to sign in",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect("/signin", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).Render("errors/500", router.ViewContext{
			"error": richErr,
		})
	}
}

// tokenValidatorAdapter bridges the accounts TokenValidator into the jwtware
// middleware, which keeps its own claims interface to avoid an import cycle.
type tokenValidatorAdapter struct {
	validator TokenValidator
}

func (t tokenValidatorAdapter) Validate(token string) (jwtware.AuthClaims, error) {
	claims, err := t.validator.Validate(token)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
