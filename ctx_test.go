package accounts_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestUserContext(t *testing.T) {
	user := &accounts.User{Username: "pat"}

	ctx := accounts.WithContext(context.Background(), user)

	got, ok := accounts.FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, user, got)

	_, ok = accounts.FromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsContext(t *testing.T) {
	claims := &accounts.JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user123",
		},
		UID:      "user123",
		UserName: "pat",
		UserRole: "admin",
	}

	ctx := accounts.WithClaimsContext(context.Background(), claims)

	got, ok := accounts.GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "user123", got.Subject())
	assert.Equal(t, "user123", got.UserID())
	assert.Equal(t, "admin", got.Role())

	_, ok = accounts.GetClaims(context.Background())
	assert.False(t, ok)
}

func TestActorContext(t *testing.T) {
	actor := testIdentity{id: "user123", username: "pat", role: "member"}

	ctx := accounts.WithActorContext(context.Background(), actor)

	got, ok := accounts.ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "pat", got.Username())

	_, ok = accounts.ActorFromContext(context.Background())
	assert.False(t, ok)
}

func TestIdentityFromClaims(t *testing.T) {
	claims := &accounts.JWTClaims{
		UID:      "user123",
		UserName: "pat",
		UserRole: "member",
	}

	identity := accounts.IdentityFromClaims(claims)
	require.NotNil(t, identity)
	assert.Equal(t, "user123", identity.ID())
	assert.Equal(t, "pat", identity.Username())
	assert.Equal(t, "member", identity.Role())
	// session claims do not carry the email
	assert.Equal(t, "", identity.Email())

	assert.Nil(t, accounts.IdentityFromClaims(nil))
}

func TestGetRouterClaims(t *testing.T) {
	claims := &accounts.JWTClaims{UID: "user123", UserRole: "member"}

	t.Run("claims stored under the default key", func(t *testing.T) {
		mctx := new(MockContext)
		mctx.On("Locals", "user").Return(claims)

		got, ok := accounts.GetRouterClaims(mctx, "")
		require.True(t, ok)
		assert.Equal(t, "user123", got.UserID())
	})

	t.Run("claims stored under a custom key", func(t *testing.T) {
		mctx := new(MockContext)
		mctx.On("Locals", "accounts_session").Return(claims)

		got, ok := accounts.GetRouterClaims(mctx, "accounts_session")
		require.True(t, ok)
		assert.Equal(t, "user123", got.UserID())
	})

	t.Run("missing claims", func(t *testing.T) {
		mctx := new(MockContext)
		mctx.On("Locals", "user").Return(nil)

		_, ok := accounts.GetRouterClaims(mctx, "")
		assert.False(t, ok)
	})

	t.Run("wrong type stored", func(t *testing.T) {
		mctx := new(MockContext)
		mctx.On("Locals", "user").Return("not-claims")

		_, ok := accounts.GetRouterClaims(mctx, "")
		assert.False(t, ok)
	})
}

func TestAllowed(t *testing.T) {
	t.Run("actor may edit their own account", func(t *testing.T) {
		actor := testIdentity{id: "user123", username: "pat", role: "member"}
		ctx := accounts.WithActorContext(context.Background(), actor)

		assert.True(t, accounts.Allowed(ctx, accounts.OpEditProfile, "pat"))
	})

	t.Run("member cannot edit another account", func(t *testing.T) {
		actor := testIdentity{id: "user123", username: "pat", role: "member"}
		ctx := accounts.WithActorContext(context.Background(), actor)

		assert.False(t, accounts.Allowed(ctx, accounts.OpEditProfile, "sam"))
	})

	t.Run("admin may edit another account", func(t *testing.T) {
		actor := testIdentity{id: "user123", username: "pat", role: "admin"}
		ctx := accounts.WithActorContext(context.Background(), actor)

		assert.True(t, accounts.Allowed(ctx, accounts.OpEditProfile, "sam"))
	})

	t.Run("no actor in context denies", func(t *testing.T) {
		assert.False(t, accounts.Allowed(context.Background(), accounts.OpEditProfile, "pat"))
	})
}

func TestAllowedFromRouter(t *testing.T) {
	t.Run("session claims allow self operations", func(t *testing.T) {
		claims := &accounts.JWTClaims{UID: "user123", UserName: "pat", UserRole: "member"}
		mctx := new(MockContext)
		mctx.On("Locals", "user").Return(claims)

		assert.True(t, accounts.AllowedFromRouter(mctx, accounts.OpChangePassword, "pat"))
		assert.False(t, accounts.AllowedFromRouter(mctx, accounts.OpChangePassword, "sam"))
	})

	t.Run("no session denies", func(t *testing.T) {
		mctx := new(MockContext)
		mctx.On("Locals", "user").Return(nil)

		assert.False(t, accounts.AllowedFromRouter(mctx, accounts.OpChangePassword, "pat"))
	})
}
