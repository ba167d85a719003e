package accounts

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// Middleware is the subset of the route authenticator the controller needs
// for session management on protected routes.
type Middleware interface {
	Impersonate(c router.Context, identifier string) error
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// HTTPAuthenticator is the route-facing authenticator surface. RouteAuthenticator
// implements it.
type HTTPAuthenticator interface {
	Middleware
	SignIn(ctx router.Context, identifier, password string, rememberMe bool) (*SignInResult, error)
	SignOut(ctx router.Context, actor Identity)
	GetRedirect(ctx router.Context, def ...string) string
	MakeClientRouteAuthErrorHandler(optional bool) func(router.Context, error) error
}

// GetRouterSession pulls the session claims placed in router locals by the
// session middleware.
func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	raw := c.Locals(key)
	if raw == nil {
		return nil, ErrUnableToFindSession
	}

	claims, ok := raw.(AuthClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	return sessionFromAuthClaims(claims)
}

func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) {

	controller := NewAccountsController(opts...)

	protected := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.
		Get(controller.Routes.Signin,
			controller.SigninShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Signin,
			// limitReq,
			controller.SigninPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Signout, controller.SignOut).SetName("sign-out.get")

	app.Get(controller.Routes.Signup, controller.SignupShow).
		SetName("signup.get")
	app.Post(controller.Routes.Signup, controller.SignupCreate).
		SetName("signup.post")

	app.Get(fmt.Sprintf("%s/:key", controller.Routes.Activate), controller.Activate).
		SetName("activate.get")
	app.Get(fmt.Sprintf("%s/:key", controller.Routes.ActivateRetry), controller.ActivateRetry).
		SetName("activate-retry.get")

	app.Get(fmt.Sprintf("%s/:key", controller.Routes.EmailConfirm), controller.EmailConfirm).
		SetName("email-confirm.get")
	app.Post(controller.Routes.EmailChange, protected(controller.EmailChangePost)).
		SetName("email-change.post")

	app.Post(controller.Routes.PasswordChange, protected(controller.PasswordChangePost)).
		SetName("password-change.post")

	app.Get(controller.Routes.Profiles, controller.ProfileList).
		SetName("profiles.get")
	app.Get(fmt.Sprintf("%s/:username", controller.Routes.Profiles), controller.ProfileShow).
		SetName("profile.get")
	app.Post(fmt.Sprintf("%s/:username/edit", controller.Routes.Profiles), protected(controller.ProfileEditPost)).
		SetName("profile-edit.post")
}

type AccountsControllerRoutes struct {
	Signin         string
	Signout        string
	Signup         string
	Activate       string
	ActivateRetry  string
	EmailChange    string
	EmailConfirm   string
	PasswordChange string
	Profiles       string
}

type AccountsControllerViews struct {
	Signin         string
	Signup         string
	Activate       string
	EmailChange    string
	PasswordChange string
	Profile        string
	ProfileList    string
}

type AccountsController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Config       Config
	Routes       *AccountsControllerRoutes
	Views        *AccountsControllerViews
	Auther       HTTPAuthenticator
	Activity     ActivitySink
	Gate         AuthorizationGate
	ErrorHandler router.ErrorHandler

	policy *SessionPolicy
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:       defLogger{},
		Config:       DefaultConfig(),
		ErrorHandler: defaultErrHandler,
		Routes: &AccountsControllerRoutes{
			Signin:         "/signin",
			Signout:        "/signout",
			Signup:         "/signup",
			Activate:       "/activate",
			ActivateRetry:  "/activate-retry",
			EmailChange:    "/email-change",
			EmailConfirm:   "/email-confirm",
			PasswordChange: "/password-change",
			Profiles:       "/accounts",
		},
		Views: &AccountsControllerViews{
			Signin:         "signin",
			Signup:         "signup",
			Activate:       "activate",
			EmailChange:    "email_change",
			PasswordChange: "password_change",
			Profile:        "profile_detail",
			ProfileList:    "profile_list",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in accounts controller...")
	}

	if c.Gate == nil {
		c.Gate = NewAuthorizationGate()
	}

	c.policy = NewSessionPolicy(c.Config)

	return c
}

func (a *AccountsController) SigninShow(ctx router.Context) error {
	return ctx.Render(a.Views.Signin, router.ViewContext{
		"errors": nil,
		"record": nil,
		"next":   ctx.Query("next", ""),
	})
}

// SigninRequest payload
type SigninRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
	Next       string `form:"next" json:"next"`
}

// Validate will run validation rules
func (r SigninRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountsController) SigninPost(ctx router.Context) error {
	payload := new(SigninRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Signin, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
			"next":       payload.Next,
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT SIGN IN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("==============================")
	}

	result, err := a.Auther.SignIn(ctx, payload.Identifier, payload.Password, payload.RememberMe)
	if err != nil {
		if HasTextCode(err, TextCodeAccountDisabled) {
			errs["authentication"] = "This account is not active"
		} else if HasTextCode(err, TextCodeTooManyAttempts) {
			errs["authentication"] = "Too many attempts, try again later"
		} else {
			errs["authentication"] = "Invalid identifier or password"
		}
		return ctx.Render(a.Views.Signin, router.ViewContext{
			"errors": errs,
			"record": payload,
			"next":   payload.Next,
		})
	}

	redirect := a.policy.RedirectAfterSignin(payload.Next, result.Identity.Username())

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountsController) SignOut(ctx router.Context) error {
	var actor Identity
	if claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey()); ok {
		actor = IdentityFromClaims(claims)
	}
	a.Auther.SignOut(ctx, actor)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountsController) SignupShow(ctx router.Context) error {
	return ctx.Render(a.Views.Signup, router.ViewContext{
		"errors": map[string]string{},
		"record": SignupMessage{},
	})
}

// SignupPayload is the form payload
type SignupPayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Privacy         string `form:"privacy" json:"privacy"`
}

// Validate will validate the payload. The username rules depend on whether
// the deployment derives usernames from emails.
func (r SignupPayload) Validate(withoutUsernames bool) error {
	usernameRules := []validation.Rule{
		validation.Required,
		validation.Length(1, 30),
	}
	if withoutUsernames {
		usernameRules = []validation.Rule{}
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, usernameRules...),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 254)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
		validation.Field(&r.Privacy, validation.In("", PrivacyOpen, PrivacyClosed)),
	)
}

func (a *AccountsController) SignupCreate(ctx router.Context) error {
	payload := new(SignupPayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("signup parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Signup, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(a.Config.WithoutUsernames); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("signup validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Signup, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	req := SignupMessage{
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Privacy:   payload.Privacy,
	}

	signup := NewSignupHandler(a.Repo, a.Config).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	result, err := signup.Execute(ctx.Context(), req)
	if err != nil {
		a.Logger.Error("signup error: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error creating account",
		}).Render(a.Views.Signup, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	if !a.Config.ActivationRequired && a.Config.SigninAfterSignup {
		if err := a.Auther.Impersonate(ctx, result.User.Username); err != nil {
			a.Logger.Error("signup impersonate error: ", "error", err)
		}
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account created",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountsController) Activate(ctx router.Context) error {
	key := ctx.Param("key", "")

	activate := NewActivateHandler(a.Repo, a.Config).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	user, err := activate.Execute(ctx.Context(), ActivateMessage{Key: key})
	if err != nil {
		a.Logger.Error("activation error: ", "error", err)

		view := router.ViewContext{
			"activated": false,
			"errors":    map[string]string{"activation": err.Error()},
		}
		if HasTextCode(err, TextCodeKeyExpired) {
			view["expired"] = true
			view["retry_url"] = fmt.Sprintf("%s/%s", a.Routes.ActivateRetry, key)
		}
		return ctx.Render(a.Views.Activate, view)
	}

	return ctx.Render(a.Views.Activate, router.ViewContext{
		"activated": true,
		"user":      user,
	})
}

func (a *AccountsController) ActivateRetry(ctx router.Context) error {
	key := ctx.Param("key", "")

	retry := NewActivateRetryHandler(a.Repo, a.Config).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	result, err := retry.Execute(ctx.Context(), ActivateRetryMessage{Key: key})
	if err != nil {
		a.Logger.Error("activation retry error: ", "error", err)
		return ctx.Render(a.Views.Activate, router.ViewContext{
			"activated": false,
			"reissued":  false,
			"errors":    map[string]string{"activation": err.Error()},
		})
	}

	if a.Debug {
		fmt.Println("======= ACTIVATION REISSUE ======")
		fmt.Println(print.MaybePrettyJSON(result))
		fmt.Println("=================================")
	}

	return ctx.Render(a.Views.Activate, router.ViewContext{
		"activated": false,
		"reissued":  true,
		"user":      result.User,
	})
}

// EmailChangePayload is the form payload
type EmailChangePayload struct {
	NewEmail string `form:"new_email" json:"new_email"`
}

// Validate will validate the payload
func (r EmailChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NewEmail, validation.Required, is.Email),
	)
}

func (a *AccountsController) EmailChangePost(ctx router.Context) error {
	actor, session, err := a.requireSession(ctx)
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	payload := new(EmailChangePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("email change parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.EmailChange, router.ViewContext{
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.EmailChange, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := RequestEmailChangeMessage{
		Actor:    actor,
		Username: session.Username,
		NewEmail: payload.NewEmail,
	}

	change := NewRequestEmailChangeHandler(a.Repo).
		WithAuthorizationGate(a.Gate).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if _, err := change.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("email change error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error requesting email change",
		}).Render(a.Views.EmailChange, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Confirmation sent to the new address",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountsController) EmailConfirm(ctx router.Context) error {
	key := ctx.Param("key", "")

	confirm := NewConfirmEmailChangeHandler(a.Repo).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	result, err := confirm.Execute(ctx.Context(), ConfirmEmailChangeMessage{Key: key})
	if err != nil {
		a.Logger.Error("email confirm error: ", "error", err)
		return ctx.Render(a.Views.EmailChange, router.ViewContext{
			"confirmed": false,
			"errors":    map[string]string{"confirmation": err.Error()},
		})
	}

	return ctx.Render(a.Views.EmailChange, router.ViewContext{
		"confirmed": true,
		"email":     result.NewEmail,
	})
}

// PasswordChangePayload is the form payload
type PasswordChangePayload struct {
	OldPassword     string `form:"old_password" json:"old_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 254)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AccountsController) PasswordChangePost(ctx router.Context) error {
	actor, session, err := a.requireSession(ctx)
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	payload := new(PasswordChangePayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("password change parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordChange, router.ViewContext{
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordChange, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	req := ChangePasswordMessage{
		Actor:       actor,
		Username:    session.Username,
		OldPassword: payload.OldPassword,
		NewPassword: payload.NewPassword,
	}

	change := NewChangePasswordHandler(a.Repo).
		WithAuthorizationGate(a.Gate).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if err := change.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password change error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error changing password",
		}).Render(a.Views.PasswordChange, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password changed",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountsController) ProfileList(ctx router.Context) error {
	var viewer Identity
	if claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey()); ok {
		viewer = IdentityFromClaims(claims)
	}

	if a.Config.DisablePublicProfileList && !viewerIsStaff(viewer) {
		return ctx.Status(fiber.StatusForbidden).Render("errors/403", router.ViewContext{
			"message": "Profile listing is disabled",
		})
	}

	limit := ctx.QueryInt("limit", 50)
	offset := ctx.QueryInt("offset", 0)

	records, err := a.Repo.Profiles().ListVisible(ctx.Context(), viewer, limit, offset)
	if err != nil {
		a.Logger.Error("profile list error: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.ProfileList, router.ViewContext{
		"records": records,
		"limit":   limit,
		"offset":  offset,
	})
}

func (a *AccountsController) ProfileShow(ctx router.Context) error {
	username := ctx.Param("username", "")

	var viewer Identity
	if claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey()); ok {
		viewer = IdentityFromClaims(claims)
	}

	profile, err := a.Repo.Profiles().GetByUsername(ctx.Context(), username)
	if err != nil {
		a.Logger.Error("profile show error: ", "error", err)
		return ctx.Status(fiber.StatusNotFound).Render("errors/404", router.ViewContext{
			"message": "Profile not found",
		})
	}

	if !profile.CanView(viewer) {
		return ctx.Status(fiber.StatusForbidden).Render("errors/403", router.ViewContext{
			"message": "This profile is private",
		})
	}

	return ctx.Render(a.Views.Profile, router.ViewContext{
		"record": profile,
	})
}

// ProfileEditPayload is the form payload. Pointer fields distinguish a blank
// submission from an omitted one.
type ProfileEditPayload struct {
	FirstName *string `form:"first_name" json:"first_name"`
	LastName  *string `form:"last_name" json:"last_name"`
	Picture   *string `form:"picture" json:"picture"`
	Phone     *string `form:"phone" json:"phone"`
	About     *string `form:"about" json:"about"`
	Privacy   *string `form:"privacy" json:"privacy"`
}

func (a *AccountsController) ProfileEditPost(ctx router.Context) error {
	actor, _, err := a.requireSession(ctx)
	if err != nil {
		return a.Auther.MakeClientRouteAuthErrorHandler(false)(ctx, err)
	}

	username := ctx.Param("username", "")

	payload := new(ProfileEditPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("profile edit parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Profile, router.ViewContext{
			"record": payload,
		})
	}

	req := EditProfileMessage{
		Actor:     actor,
		Username:  username,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Picture:   payload.Picture,
		Phone:     payload.Phone,
		About:     payload.About,
		Privacy:   payload.Privacy,
	}

	edit := NewEditProfileHandler(a.Repo).
		WithAuthorizationGate(a.Gate).
		WithActivitySink(a.Activity).
		WithLogger(a.Logger)

	if _, err := edit.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("profile edit error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error updating profile",
		}).Render(a.Views.Profile, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Profile updated",
	}).Redirect(fmt.Sprintf("%s/%s", a.Routes.Profiles, NormalizeUsername(username)), fiber.StatusSeeOther)
}

// requireSession resolves the acting identity from the session middleware.
func (a *AccountsController) requireSession(ctx router.Context) (Identity, *SessionObject, error) {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return nil, nil, err
	}

	claims, ok := GetRouterClaims(ctx, a.Config.GetContextKey())
	if !ok {
		return nil, nil, ErrUnableToFindSession
	}

	return IdentityFromClaims(claims), session, nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field -> message map suitable for form rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
