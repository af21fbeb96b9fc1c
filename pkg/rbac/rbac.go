package rbac

// 权限常量
const (
	PermissionReadNotifications     = "notification:read"
	PermissionConfigureNotification = "notification:configure"
	PermissionSendTestNotification  = "notification:test"
	PermissionPublishAdvisory       = "advisory:publish"
	PermissionReadSyncStatus        = "sync:read"
)

// 角色常量
const (
	RoleAdmin     = "admin"
	RoleSiteAgent = "site_agent"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleSiteAgent: {
		PermissionReadNotifications,
		PermissionSendTestNotification,
		PermissionReadSyncStatus,
	},
	RoleAdmin: {
		PermissionReadNotifications,
		PermissionConfigureNotification,
		PermissionSendTestNotification,
		PermissionPublishAdvisory,
		PermissionReadSyncStatus,
	},
}

// KnownRole reports whether role is one of the dashboard roles.
func KnownRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查角色是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
