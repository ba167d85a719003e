package accounts

import (
	"github.com/goliatone/go-router"
)

var TemplateUserKey = "current_user"

// TemplateHelpers returns a map of helper functions and data that can be used
// with go-template's WithGlobalData option for account-related template functionality.
//
// Usage:
//
//	renderer, err := template.NewRenderer(
//	    template.WithBaseDir("./templates"),
//	    template.WithGlobalData(accounts.TemplateHelpers()),
//	)
//
// In templates, you can then use:
//
//	{% if current_user %}
//	{% if current_user|has_role:"admin" %}
//	{% if current_user|is_at_least:"member" %}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"has_role":         hasRole,
		"is_at_least":      isAtLeast,
		"can_view_profile": canViewProfile,

		// Role constants for easy template access
		"roles": map[string]string{
			"guest":  string(RoleGuest),
			"member": string(RoleMember),
			"admin":  string(RoleAdmin),
			"owner":  string(RoleOwner),
		},
	}
}

// TemplateHelpersWithUser returns template helpers with a specific user set as current_user.
// This is useful when you want to inject the current user directly into the global context.
func TemplateHelpersWithUser(user *User) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateUserKey] = user
	return helpers
}

// TemplateHelpersWithRouter returns template helpers with user data extracted
// from the router context set by the session middleware.
func TemplateHelpersWithRouter(ctx router.Context, userKey string) map[string]any {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	helpers := TemplateHelpers()

	if user := ctx.Locals(userKey); user != nil {
		helpers[TemplateUserKey] = user
	}

	return helpers
}

// GetTemplateUser is a convenience function to extract user data from router context
// for template usage. It returns the user object and a boolean indicating if it was found.
func GetTemplateUser(ctx router.Context, userKey string) (any, bool) {
	if userKey == "" {
		userKey = TemplateUserKey
	}

	user := ctx.Locals(userKey)
	return user, user != nil
}

// isAuthenticated checks if the provided user object is not nil
func isAuthenticated(user any) bool {
	if user == nil {
		return false
	}

	switch u := user.(type) {
	case *User:
		return u != nil
	case User:
		return true
	case AuthClaims:
		return u != nil && u.UserID() != ""
	case map[string]any:
		// Handle JSON-converted user objects
		return len(u) > 0
	default:
		return false
	}
}

// hasRole checks if the user has the specified role
func hasRole(user any, role string) bool {
	targetRole := UserRole(role)

	switch u := user.(type) {
	case *User:
		if u == nil {
			return false
		}
		return u.Role == targetRole
	case User:
		return u.Role == targetRole
	case AuthClaims:
		if u == nil {
			return false
		}
		return u.HasRole(role)
	case map[string]any:
		// Handle JSON-converted user objects
		if userRole, exists := u["user_role"]; exists {
			if roleStr, ok := userRole.(string); ok {
				return UserRole(roleStr) == targetRole
			}
		}
		return false
	default:
		return false
	}
}

// isAtLeast checks if the user's role is at least the minimum required level
func isAtLeast(user any, minRole string) bool {
	minRoleTyped := UserRole(minRole)

	switch u := user.(type) {
	case *User:
		if u == nil {
			return false
		}
		return u.Role.IsAtLeast(minRoleTyped)
	case User:
		return u.Role.IsAtLeast(minRoleTyped)
	case AuthClaims:
		if u == nil {
			return false
		}
		return u.IsAtLeast(minRole)
	case map[string]any:
		// Handle JSON-converted user objects
		if userRole, exists := u["user_role"]; exists {
			if roleStr, ok := userRole.(string); ok {
				return UserRole(roleStr).IsAtLeast(minRoleTyped)
			}
		}
		return false
	default:
		return false
	}
}

// canViewProfile checks the profile's visibility policy against the viewer
func canViewProfile(user any, profile *Profile) bool {
	if profile == nil {
		return false
	}

	switch u := user.(type) {
	case *User:
		if u == nil {
			return profile.CanView(nil)
		}
		return profile.CanView(NewIdentityFromUser(u))
	case AuthClaims:
		if u == nil {
			return profile.CanView(nil)
		}
		return profile.CanView(IdentityFromClaims(u))
	default:
		return profile.CanView(nil)
	}
}
