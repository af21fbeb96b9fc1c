package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	cases := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleAdmin, PermissionConfigureNotification, true},
		{RoleAdmin, PermissionPublishAdvisory, true},
		{RoleSiteAgent, PermissionReadNotifications, true},
		{RoleSiteAgent, PermissionSendTestNotification, true},
		{RoleSiteAgent, PermissionConfigureNotification, false},
		{RoleSiteAgent, PermissionPublishAdvisory, false},
		{"guest", PermissionReadNotifications, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HasPermission(c.role, c.permission), "%s/%s", c.role, c.permission)
	}
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(RoleAdmin, PermissionPublishAdvisory))

	err := CheckPermission(RoleSiteAgent, PermissionPublishAdvisory)
	var denied *PermissionDeniedError
	assert.ErrorAs(t, err, &denied)
	assert.Equal(t, RoleSiteAgent, denied.Role)
}

func TestKnownRole(t *testing.T) {
	assert.True(t, KnownRole(RoleAdmin))
	assert.True(t, KnownRole(RoleSiteAgent))
	assert.False(t, KnownRole("supplier"))
}
