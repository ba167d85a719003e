package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole string

const (
	// RoleGuest is a guest role (ie. view)
	RoleGuest UserRole = "guest"
	// RoleMember is a member (i.e. view, edit)
	RoleMember UserRole = "member"
	// RoleAdmin is an admin role (i.e. view, edit, create)
	RoleAdmin UserRole = "admin"
	// RoleOwner is an owner role (i.e. view, edit, create, delete)
	RoleOwner UserRole = "owner"
)

// UserStatus is the account lifecycle status
type UserStatus = string

const (
	// UserStatusUnverified is a signed up account waiting for activation
	UserStatusUnverified UserStatus = "unverified"
	// UserStatusActive is a verified, usable account
	UserStatusActive UserStatus = "active"
	// UserStatusDisabled is an account blocked from signing in
	UserStatusDisabled UserStatus = "disabled"
)

// User is the identity record
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"password_hash,omitempty"`
	Status         UserStatus     `bun:"status,notnull" json:"status,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

/// EnsureStatus backfills the zero value: a user without an explicit status
// has not been through activation.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusUnverified
	}
}

// IsActive reports whether the account can sign in.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsUnverified reports whether the account still needs activation.
func (u *User) IsUnverified() bool {
	u.EnsureStatus()
	return u.Status == UserStatusUnverified
}

// IsDisabled reports whether the account has been disabled.
func (u *User) IsDisabled() bool {
	return u.Status == UserStatusDisabled
}

// IsStaff reports whether the user holds an elevated role.
func (u *User) IsStaff() bool {
	return u.Role.IsAtLeast(RoleAdmin)
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// ProfilePrivacy is the profile's visibility policy
type ProfilePrivacy = string

const (
	// PrivacyOpen makes the profile viewable by anyone
	PrivacyOpen ProfilePrivacy = "open"
	// PrivacyClosed restricts the profile to its owner and staff
	PrivacyClosed ProfilePrivacy = "closed"
)

// Profile is the one-to-one companion record to User holding display
// attributes and the visibility policy.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull,unique" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	Privacy       string     `bun:"privacy,notnull" json:"privacy,omitempty"`
	FirstName     string     `bun:"first_name" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name" json:"last_name,omitempty"`
	Picture       string     `bun:"picture" json:"picture,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	About         string     `bun:"about" json:"about,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsurePrivacy backfills the zero value to the open policy.
func (p *Profile) EnsurePrivacy() {
	if p.Privacy == "" {
		p.Privacy = PrivacyOpen
	}
}

// CanView reports whether viewer may see this profile. The owner and staff
// actors are always allowed; everyone else depends on the privacy policy.
// A nil viewer is an anonymous request.
func (p *Profile) CanView(viewer Identity) bool {
	p.EnsurePrivacy()

	if viewer != nil {
		if p.UserID != nil && viewer.ID() == p.UserID.String() {
			return true
		}
		if UserRole(viewer.Role()).IsAtLeast(RoleAdmin) {
			return true
		}
	}

	return p.Privacy == PrivacyOpen
}

// FullName joins the display name fields.
func (p *Profile) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Signup links a user to its activation key. There is exactly one live
// record per unverified user; the row is deleted when the account is
// activated, so a consumed key can never be honored again.
type Signup struct {
	bun.BaseModel `bun:"table:account_signups,alias:sgn"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        *uuid.UUID `bun:"user_id,notnull,unique" json:"user_id,omitempty"`
	User          *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	ActivationKey string     `bun:"activation_key,notnull,unique" json:"activation_key,omitempty"`
	KeyIssuedAt   time.Time  `bun:"key_issued_at,notnull" json:"key_issued_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// KeyExpired reports whether the activation key is older than window at now.
func (s *Signup) KeyExpired(window time.Duration, now time.Time) bool {
	return KeyExpired(s.KeyIssuedAt, window, now)
}

// EmailChange holds a proposed email address and the confirmation key
// proving ownership of it. The user's current email stays authoritative
// until the change is confirmed. At most one pending change per user: a
// newer request supersedes (deletes) the previous one, which permanently
// invalidates its key.
type EmailChange struct {
	bun.BaseModel   `bun:"table:email_changes,alias:emc"`
	ID              uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID          *uuid.UUID `bun:"user_id,notnull,unique" json:"user_id,omitempty"`
	User            *User      `bun:"rel:has-one,join:user_id=id" json:"user,omitempty"`
	ConfirmationKey string     `bun:"confirmation_key,notnull,unique" json:"confirmation_key,omitempty"`
	NewEmail        string     `bun:"new_email,notnull" json:"new_email,omitempty"`
	KeyIssuedAt     time.Time  `bun:"key_issued_at,notnull" json:"key_issued_at,omitempty"`
	CreatedAt       *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// NormalizeUsername lowercases a username for storage and comparison.
// Usernames are unique case-insensitively.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
