package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestAuthorizationGateAllow(t *testing.T) {
	gate := accounts.NewAuthorizationGate()

	operations := []accounts.Operation{
		accounts.OpChangeEmail,
		accounts.OpChangePassword,
		accounts.OpEditProfile,
	}

	t.Run("anonymous actor is denied", func(t *testing.T) {
		for _, op := range operations {
			err := gate.Allow(nil, op, "pat")
			require.Error(t, err)
			assert.True(t, accounts.HasTextCode(err, accounts.ErrForbidden.TextCode))
		}
	})

	t.Run("actor may operate on their own account", func(t *testing.T) {
		actor := testIdentity{id: "u1", username: "pat", role: "member"}
		for _, op := range operations {
			assert.NoError(t, gate.Allow(actor, op, "pat"))
		}
	})

	t.Run("username comparison is case-insensitive", func(t *testing.T) {
		actor := testIdentity{id: "u1", username: "Pat", role: "member"}
		assert.NoError(t, gate.Allow(actor, accounts.OpEditProfile, "pat"))
	})

	t.Run("member is denied on other accounts", func(t *testing.T) {
		actor := testIdentity{id: "u1", username: "pat", role: "member"}
		for _, op := range operations {
			err := gate.Allow(actor, op, "sam")
			require.Error(t, err)
			assert.True(t, accounts.HasTextCode(err, accounts.ErrForbidden.TextCode))
		}
	})

	t.Run("guest is denied on other accounts", func(t *testing.T) {
		actor := testIdentity{id: "u1", username: "pat", role: "guest"}
		err := gate.Allow(actor, accounts.OpChangePassword, "sam")
		require.Error(t, err)
	})

	t.Run("admin holds every gated operation", func(t *testing.T) {
		actor := testIdentity{id: "u1", username: "root", role: "admin"}
		for _, op := range operations {
			assert.NoError(t, gate.Allow(actor, op, "sam"))
		}
	})

	t.Run("owner holds every gated operation", func(t *testing.T) {
		actor := testIdentity{id: "u1", username: "root", role: "owner"}
		for _, op := range operations {
			assert.NoError(t, gate.Allow(actor, op, "sam"))
		}
	})
}

func TestAuthorizationGateCustomChecker(t *testing.T) {
	gate := accounts.NewAuthorizationGate(accounts.WithPermissionChecker(
		func(actor accounts.Identity, op accounts.Operation, _ string) bool {
			return op == accounts.OpEditProfile && actor.Role() == "moderator"
		},
	))

	moderator := testIdentity{id: "u1", username: "mod", role: "moderator"}

	assert.NoError(t, gate.Allow(moderator, accounts.OpEditProfile, "sam"))

	err := gate.Allow(moderator, accounts.OpChangePassword, "sam")
	require.Error(t, err)
}
