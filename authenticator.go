package accounts

import (
	"context"
	"reflect"
	"time"
)

// SignInResult is what a successful sign in hands to the transport layer:
// the signed session token, its lifetimes, and the resolved destination.
type SignInResult struct {
	Token string
	// ExpiresAt is the token expiry.
	ExpiresAt time.Time
	// CookieMaxAge is the cookie lifetime; zero means browser-session.
	CookieMaxAge time.Duration
	// RedirectURL is where the fresh session should land.
	RedirectURL string
	Identity    Identity
}

type Auther struct {
	provider        IdentityProvider
	config          Config
	policy          *SessionPolicy
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
	claimsDecorator ClaimsDecorator
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, config Config) *Auther {
	tokenService := NewTokenService(
		[]byte(config.GetSigningKey()),
		sessionTokenTTL,
		config.GetIssuer(),
		config.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		config:          config,
		policy:          NewSessionPolicy(config),
		logger:          defLogger{},
		tokenService:    tokenService,
		activitySink:    noopActivitySink{},
		claimsDecorator: noopClaimsDecorator{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithSessionPolicy overrides the remember-me and redirect policy.
func (s *Auther) WithSessionPolicy(policy *SessionPolicy) *Auther {
	if policy != nil {
		s.policy = policy
	}
	return s
}

// WithTokenService overrides the session token service.
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.claimsDecorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// SignIn verifies the credentials and establishes a session. The rememberMe
// flag picks between a browser-session cookie and the configured extended
// window.
func (s *Auther) SignIn(ctx context.Context, identifier, password string, rememberMe bool) (*SignInResult, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.VerifyIdentity(ctx, identifier, password); err != nil {
		s.logger.Error("SignIn verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventSignInFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("SignIn identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventSignInFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      ErrIdentityNotFound.Error(),
		})
		return nil, ErrIdentityNotFound
	}

	if status, err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("SignIn blocked due to user status", "status", status, "error", err)
		s.emitAuthEvent(ctx, ActivityEventSignInFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
			"status":     status,
		})
		return nil, err
	}

	ttl := s.policy.TokenTTL(rememberMe)

	token, err := s.generateToken(ctx, identity, ttl)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventSignInFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventSignInSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"identifier":  identifier,
		"remember_me": rememberMe,
	})

	return &SignInResult{
		Token:        token,
		ExpiresAt:    time.Now().Add(ttl),
		CookieMaxAge: s.policy.CookieMaxAge(rememberMe),
		RedirectURL:  s.policy.RedirectAfterSignin("", identity.Username()),
		Identity:     identity,
	}, nil
}

// SignOut emits the signout event. Sessions are stateless tokens, the
// transport layer drops the cookie.
func (s *Auther) SignOut(ctx context.Context, actor Identity) {
	userID := ""
	if actor != nil {
		userID = actor.ID()
	}
	s.emitAuthEvent(ctx, ActivityEventSignOut, s.actorFromIdentity(actor), userID, nil)
}

// Impersonate establishes a session without credential verification. Used
// for auto signin after signup or activation.
func (s *Auther) Impersonate(ctx context.Context, identifier string) (string, error) {
	var err error
	var identity Identity

	if identity, err = s.provider.FindIdentityByIdentifier(ctx, identifier); err != nil {
		s.logger.Error("Impersonate find identity error", "error", err)
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Impersonate identity is nil")
		return "", ErrIdentityNotFound
	}

	if status, err := s.ensureIdentityActive(identity); err != nil {
		s.logger.Warn("Impersonation blocked due to user status", "status", status, "error", err)
		return "", err
	}

	return s.generateToken(ctx, identity, s.policy.TokenTTL(false))
}

func (s *Auther) IdentityFromSession(ctx context.Context, session Session) (Identity, error) {
	identity, err := s.provider.FindIdentityByIdentifier(ctx, session.GetUserID())

	if err != nil {
		s.logger.Error("IdentityFromSession find identity by identifier: %s", err)
		return nil, err
	}

	return identity, nil
}

func (s Auther) SessionFromToken(raw string) (Session, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed", "error", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("SessionFromToken failed to create session from claims", "error", err)
		return nil, err
	}

	return session, nil
}

// generateToken builds the claims, runs the decorator, and signs. The
// decorator may only touch extension fields; anything else aborts signing.
func (s *Auther) generateToken(ctx context.Context, identity Identity, ttl time.Duration) (string, error) {
	claims, err := s.newClaims(identity, ttl)
	if err != nil {
		return "", err
	}

	snapshot := captureImmutableClaims(claims)

	decorator := normalizeClaimsDecorator(s.claimsDecorator)
	if err := decorator.Decorate(ctx, identity, claims); err != nil {
		s.logger.Error("claims decorator failed", "error", err)
		return "", err
	}

	if err := snapshot.validate(claims); err != nil {
		s.logger.Error("claims decorator mutated immutable claims", "error", err)
		return "", err
	}

	return s.tokenService.SignClaims(claims)
}

func (s *Auther) newClaims(identity Identity, ttl time.Duration) (*JWTClaims, error) {
	if ttl <= 0 {
		ttl = sessionTokenTTL
	}

	now := time.Now()

	var aud []string
	if len(s.config.GetAudience()) > 0 {
		aud = make([]string, len(s.config.GetAudience()))
		copy(aud, s.config.GetAudience())
	}

	claims := newSessionClaims(identity, s.config.GetIssuer(), aud, now, now.Add(ttl))

	ensureTokenID(&claims.RegisteredClaims)

	return claims, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

func (s *Auther) ensureIdentityActive(identity Identity) (UserStatus, error) {
	status, ok := identityStatus(identity)
	if !ok {
		return "", nil
	}

	if status == "" {
		status = UserStatusActive
	}

	if err := statusAuthError(status); err != nil {
		return status, err
	}

	return status, nil
}

type statusAwareIdentity interface {
	Status() UserStatus
}

func identityStatus(identity Identity) (UserStatus, bool) {
	if identity == nil {
		return "", false
	}

	if sa, ok := identity.(statusAwareIdentity); ok {
		return sa.Status(), true
	}

	return "", false
}

// statusAuthError maps a lifecycle status to the sign in error it causes.
// Only active accounts can authenticate.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive:
		return nil
	default:
		return ErrAccountDisabled.WithMetadata(map[string]any{
			"status": status,
		})
	}
}
