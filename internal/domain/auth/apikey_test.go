package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipal_Require(t *testing.T) {
	tests := []struct {
		name      string
		principal Principal
		roles     []Role
		wantErr   error
	}{
		{name: "any role", principal: Principal{BusinessID: "b", Role: RoleEmployee}},
		{name: "allowed role", principal: Principal{BusinessID: "b", Role: RoleOwner}, roles: []Role{RoleOwner, RoleSuperAdmin}},
		{name: "role not allowed", principal: Principal{BusinessID: "b", Role: RoleEmployee}, roles: []Role{RoleOwner}, wantErr: ErrForbidden},
		{name: "no business", principal: Principal{Role: RoleSuperAdmin}, wantErr: ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.principal.Require(tt.roles...)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	want := Principal{KeyID: "k", UserID: "u", BusinessID: "b", Role: RoleOwner}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), want))
	require.True(t, ok)
	assert.Equal(t, want, got)
}
