package accounts

// Operation names a gated mutating operation.
type Operation string

const (
	OpChangeEmail    Operation = "account.change_email"
	OpChangePassword Operation = "account.change_password"
	OpEditProfile    Operation = "account.edit_profile"
)

// PermissionChecker decides whether an actor holds an elevated permission
// for an operation on the target account. The default checker grants
// staff roles (admin and owner) every gated operation.
type PermissionChecker func(actor Identity, op Operation, targetUsername string) bool

// AuthorizationGate is the capability check wrapping every mutating
// operation: the actor must be the target account itself or hold an
// elevated permission. A denial surfaces as ErrForbidden and is never
// silently downgraded.
type AuthorizationGate interface {
	Allow(actor Identity, op Operation, targetUsername string) error
}

// GateOption customizes gate construction.
type GateOption func(*authorizationGate)

// WithPermissionChecker replaces the role-based elevated permission check.
func WithPermissionChecker(checker PermissionChecker) GateOption {
	return func(g *authorizationGate) {
		if checker != nil {
			g.checker = checker
		}
	}
}

// NewAuthorizationGate returns the default self-or-elevated gate.
func NewAuthorizationGate(opts ...GateOption) AuthorizationGate {
	g := &authorizationGate{
		checker: roleChecker,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

type authorizationGate struct {
	checker PermissionChecker
}

func (g *authorizationGate) Allow(actor Identity, op Operation, targetUsername string) error {
	if actor == nil {
		return ErrForbidden.WithMetadata(map[string]any{
			"operation": string(op),
			"target":    targetUsername,
			"reason":    "anonymous actor",
		})
	}

	if NormalizeUsername(actor.Username()) == NormalizeUsername(targetUsername) {
		return nil
	}

	if g.checker != nil && g.checker(actor, op, targetUsername) {
		return nil
	}

	return ErrForbidden.WithMetadata(map[string]any{
		"operation": string(op),
		"actor":     actor.Username(),
		"target":    targetUsername,
	})
}

func roleChecker(actor Identity, _ Operation, _ string) bool {
	return UserRole(actor.Role()).IsAtLeast(RoleAdmin)
}
