package accounts_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestSessionObject(t *testing.T) {
	userID := uuid.New().String()
	now := time.Now()
	sessionData := map[string]any{
		"role": "admin",
	}

	session := &accounts.SessionObject{
		UserID:         userID,
		Username:       "pat",
		Audience:       []string{"app:user"},
		Issuer:         "test-issuer",
		IssuedAt:       &now,
		ExpirationDate: &now,
		Data:           sessionData,
	}

	assert.Equal(t, userID, session.GetUserID())

	userUUID, err := session.GetUserUUID()
	assert.NoError(t, err)
	assert.Equal(t, userID, userUUID.String())

	assert.Equal(t, []string{"app:user"}, session.GetAudience())
	assert.Equal(t, "test-issuer", session.GetIssuer())
	assert.Equal(t, &now, session.GetIssuedAt())
	assert.Equal(t, sessionData, session.GetData())

	stringRep := session.String()
	assert.Contains(t, stringRep, userID)
	assert.Contains(t, stringRep, "app:user")
	assert.Contains(t, stringRep, "test-issuer")
}

func TestSessionFromToken(t *testing.T) {
	auther := createTestAuthenticator(t)

	identity := testIdentity{
		id:       uuid.New().String(),
		username: "pat",
		email:    "pat@example.com",
		role:     "admin",
	}

	token, err := auther.TokenService().Generate(identity, time.Hour)
	require.NoError(t, err)

	session, err := auther.SessionFromToken(token)
	require.NoError(t, err)

	assert.Equal(t, identity.id, session.GetUserID())
	assert.Equal(t, "test-issuer", session.GetIssuer())

	data := session.GetData()
	require.NotNil(t, data)
	assert.Equal(t, "admin", data["role"])
}

func TestSessionFromTokenRejectsBadSignature(t *testing.T) {
	auther := createTestAuthenticator(t)

	other := accounts.NewAuthenticator(&stubIdentityProvider{}, accounts.Config{
		SigningKey: "some-other-key",
		Issuer:     "test-issuer",
		Audience:   []string{"test:audience"},
	})

	identity := testIdentity{id: uuid.New().String(), username: "pat", role: "member"}
	token, err := other.TokenService().Generate(identity, time.Hour)
	require.NoError(t, err)

	_, err = auther.SessionFromToken(token)
	require.Error(t, err)
}

// createTestAuthenticator builds an Auther with a stub provider and fixed
// token settings.
func createTestAuthenticator(_ *testing.T) *accounts.Auther {
	cfg := accounts.Config{
		SigningKey: "test-signing-key",
		Issuer:     "test-issuer",
		Audience:   []string{"test:audience"},
	}
	return accounts.NewAuthenticator(&stubIdentityProvider{}, cfg)
}

func TestSessionObjectRoleChecks(t *testing.T) {
	userID := uuid.New().String()
	now := time.Now()

	t.Run("role permission matrix", func(t *testing.T) {
		tests := []struct {
			name    string
			role    string
			canRead bool
			canEdit bool
		}{
			{"guest role permissions", "guest", true, false},
			{"member role permissions", "member", true, true},
			{"admin role permissions", "admin", true, true},
			{"owner role permissions", "owner", true, true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				session := &accounts.SessionObject{
					UserID:   userID,
					IssuedAt: &now,
					Data: map[string]any{
						"role": tt.role,
					},
				}

				assert.Equal(t, tt.canRead, session.CanRead())
				assert.Equal(t, tt.canEdit, session.CanEdit())
			})
		}
	})

	t.Run("no data defaults to guest", func(t *testing.T) {
		session := &accounts.SessionObject{
			UserID:   userID,
			IssuedAt: &now,
			Data:     nil,
		}

		assert.True(t, session.CanRead())
		assert.False(t, session.CanEdit())
	})

	t.Run("no role in data defaults to guest", func(t *testing.T) {
		session := &accounts.SessionObject{
			UserID:   userID,
			IssuedAt: &now,
			Data:     map[string]any{},
		}

		assert.True(t, session.CanRead())
		assert.False(t, session.CanEdit())
	})

	t.Run("invalid role format defaults to guest", func(t *testing.T) {
		session := &accounts.SessionObject{
			UserID:   userID,
			IssuedAt: &now,
			Data: map[string]any{
				"role": 123,
			},
		}

		assert.True(t, session.CanRead())
		assert.False(t, session.CanEdit())
	})

	t.Run("HasRole", func(t *testing.T) {
		session := &accounts.SessionObject{
			UserID:   userID,
			IssuedAt: &now,
			Data: map[string]any{
				"role": "admin",
			},
		}

		assert.True(t, session.HasRole("admin"))
		assert.False(t, session.HasRole("owner"))
		assert.False(t, session.HasRole("member"))
	})

	t.Run("IsAtLeast", func(t *testing.T) {
		session := &accounts.SessionObject{
			UserID:   userID,
			IssuedAt: &now,
			Data: map[string]any{
				"role": "admin",
			},
		}

		assert.True(t, session.IsAtLeast(accounts.RoleGuest))
		assert.True(t, session.IsAtLeast(accounts.RoleMember))
		assert.True(t, session.IsAtLeast(accounts.RoleAdmin))
		assert.False(t, session.IsAtLeast(accounts.RoleOwner))
	})

	t.Run("RoleCapableSession interface compliance", func(t *testing.T) {
		var _ accounts.RoleCapableSession = (*accounts.SessionObject)(nil)

		session := &accounts.SessionObject{
			UserID:   userID,
			IssuedAt: &now,
			Data: map[string]any{
				"role": "admin",
			},
		}

		var roleCapable accounts.RoleCapableSession = session

		assert.Equal(t, userID, roleCapable.GetUserID())
		assert.True(t, roleCapable.CanRead())
		assert.True(t, roleCapable.CanEdit())
		assert.True(t, roleCapable.HasRole("admin"))
		assert.True(t, roleCapable.IsAtLeast(accounts.RoleAdmin))
	})
}

func TestHasUserUUID(t *testing.T) {
	valid := &accounts.SessionObject{UserID: uuid.New().String()}
	assert.True(t, accounts.HasUserUUID(valid))

	invalid := &accounts.SessionObject{UserID: "not-a-uuid"}
	assert.False(t, accounts.HasUserUUID(invalid))

	assert.False(t, accounts.HasUserUUID(nil))
}
