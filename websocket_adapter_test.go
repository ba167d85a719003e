package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTokenService struct {
	mock.Mock
}

func (m *mockTokenService) Generate(identity Identity, ttl time.Duration) (string, error) {
	args := m.Called(identity, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockTokenService) SignClaims(claims *JWTClaims) (string, error) {
	args := m.Called(claims)
	return args.String(0), args.Error(1)
}

func (m *mockTokenService) Validate(tokenString string) (AuthClaims, error) {
	args := m.Called(tokenString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(AuthClaims), args.Error(1)
}

func TestWSTokenValidatorValidate(t *testing.T) {
	claims := &JWTClaims{UID: "user-1", UserName: "pat", UserRole: "member"}

	t.Run("successful validation", func(t *testing.T) {
		svc := &mockTokenService{}
		svc.On("Validate", "valid-token").Return(claims, nil)

		validator := NewWSTokenValidator(svc)

		result, err := validator.Validate("valid-token")
		require.NoError(t, err)
		require.IsType(t, &WSAuthClaimsAdapter{}, result)

		adapter := result.(*WSAuthClaimsAdapter)
		assert.Equal(t, claims, adapter.claims)

		svc.AssertExpectations(t)
	})

	t.Run("validation error", func(t *testing.T) {
		svc := &mockTokenService{}
		svc.On("Validate", "invalid-token").Return(nil, ErrTokenMalformed)

		validator := NewWSTokenValidator(svc)

		result, err := validator.Validate("invalid-token")
		assert.ErrorIs(t, err, ErrTokenMalformed)
		assert.Nil(t, result)

		svc.AssertExpectations(t)
	})
}

func TestWSAuthClaimsAdapterDelegation(t *testing.T) {
	claims := &JWTClaims{UID: "user-1", UserName: "pat", UserRole: "admin"}
	claims.RegisteredClaims.Subject = "user-1"

	adapter := &WSAuthClaimsAdapter{claims: claims}

	assert.Equal(t, "user-1", adapter.Subject())
	assert.Equal(t, "user-1", adapter.UserID())
	assert.Equal(t, "admin", adapter.Role())
	assert.True(t, adapter.HasRole("admin"))
	assert.False(t, adapter.HasRole("owner"))
	assert.True(t, adapter.IsAtLeast("member"))
}

// Resource permissions derive from the global role only.
func TestWSAuthClaimsAdapterRolePermissions(t *testing.T) {
	cases := []struct {
		role      string
		canRead   bool
		canEdit   bool
		canCreate bool
		canDelete bool
	}{
		{"guest", true, false, false, false},
		{"member", true, true, false, false},
		{"admin", true, true, true, false},
		{"owner", true, true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			adapter := &WSAuthClaimsAdapter{claims: &JWTClaims{UserRole: tc.role}}

			assert.Equal(t, tc.canRead, adapter.CanRead("anything"))
			assert.Equal(t, tc.canEdit, adapter.CanEdit("anything"))
			assert.Equal(t, tc.canCreate, adapter.CanCreate("anything"))
			assert.Equal(t, tc.canDelete, adapter.CanDelete("anything"))
		})
	}
}

type foreignWSClaims struct{}

func (o *foreignWSClaims) Subject() string                { return "other" }
func (o *foreignWSClaims) UserID() string                 { return "other" }
func (o *foreignWSClaims) Role() string                   { return "other" }
func (o *foreignWSClaims) CanRead(resource string) bool   { return false }
func (o *foreignWSClaims) CanEdit(resource string) bool   { return false }
func (o *foreignWSClaims) CanCreate(resource string) bool { return false }
func (o *foreignWSClaims) CanDelete(resource string) bool { return false }
func (o *foreignWSClaims) HasRole(role string) bool       { return false }
func (o *foreignWSClaims) IsAtLeast(minRole string) bool  { return false }

func TestWSAuthClaimsFromContext(t *testing.T) {
	t.Run("adapter claims in context", func(t *testing.T) {
		claims := &JWTClaims{UID: "user-1"}
		adapter := &WSAuthClaimsAdapter{claims: claims}

		ctx := context.WithValue(context.Background(), router.WSAuthContextKey{}, adapter)

		result, ok := WSAuthClaimsFromContext(ctx)
		assert.True(t, ok)
		assert.Equal(t, claims, result)
	})

	t.Run("no claims in context", func(t *testing.T) {
		result, ok := WSAuthClaimsFromContext(context.Background())
		assert.False(t, ok)
		assert.Nil(t, result)
	})

	t.Run("foreign claims implementation", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), router.WSAuthContextKey{}, &foreignWSClaims{})

		result, ok := WSAuthClaimsFromContext(ctx)
		assert.False(t, ok)
		assert.Nil(t, result)
	})
}
