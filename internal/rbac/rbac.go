package rbac

import "slices"

// User is the identity handed over by the authentication layer. Role is kept
// as the raw stored string; Permissions are explicit grants on top of it.
type User struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	Role          string       `json:"role,omitempty"`
	EmailVerified bool         `json:"emailVerified"`
	Permissions   []Permission `json:"permissions,omitempty"`
}

func (u *User) ResolvedRole() Role {
	if u == nil {
		return RoleUnknown
	}
	return ParseRole(u.Role)
}

// HasPermission checks explicit grants first, then the role table. A user
// whose role does not parse only matches the legacy "admin" string for
// admin_access.
func HasPermission(u *User, p Permission) bool {
	if u == nil {
		return false
	}
	if slices.Contains(u.Permissions, p) {
		return true
	}

	role := ParseRole(u.Role)
	if !role.Known() {
		return u.Role == "admin" && p == AdminAccess
	}

	return roleHas(role, p)
}

func HasAnyPermission(u *User, permissions ...Permission) bool {
	for _, p := range permissions {
		if HasPermission(u, p) {
			return true
		}
	}
	return false
}

func HasAllPermissions(u *User, permissions ...Permission) bool {
	if u == nil {
		return false
	}
	for _, p := range permissions {
		if !HasPermission(u, p) {
			return false
		}
	}
	return true
}

func HasRole(u *User, required Role) bool {
	if u == nil || !required.Known() {
		return false
	}

	role := ParseRole(u.Role)
	if !role.Known() {
		return false
	}

	return role.Rank() >= required.Rank()
}

// IsAdmin keeps the raw "admin" string comparison as a third clause for
// records written before roles were normalized.
func IsAdmin(u *User) bool {
	if u == nil {
		return false
	}
	return HasPermission(u, AdminAccess) || HasRole(u, RoleAdmin) || u.Role == "admin"
}

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var resourcePermissions = map[string]map[Action]Permission{
	"customers": {
		ActionRead:   ReadCustomers,
		ActionCreate: CreateCustomers,
		ActionUpdate: UpdateCustomers,
		ActionDelete: DeleteCustomers,
	},
	"appointments": {
		ActionRead:   ReadAppointments,
		ActionCreate: CreateAppointments,
		ActionUpdate: UpdateAppointments,
		ActionDelete: DeleteAppointments,
	},
	"media": {
		ActionRead:   ReadMedia,
		ActionCreate: UploadMedia,
		ActionUpdate: UpdateMedia,
		ActionDelete: DeleteMedia,
	},
}

// ResourcePermission returns the permission guarding action on resource.
// known is false for resources outside the table; the permission is empty
// for actions the resource does not define.
func ResourcePermission(resource string, action Action) (p Permission, known bool) {
	actions, known := resourcePermissions[resource]
	if !known {
		return "", false
	}
	return actions[action], true
}

// CanManageResource decides access to a resource action. Resources outside
// the table require an administrator; unknown actions on a known resource
// are denied.
func CanManageResource(u *User, resource string, action Action) bool {
	if u == nil {
		return false
	}

	p, known := ResourcePermission(resource, action)
	if !known {
		return IsAdmin(u)
	}
	if p == "" {
		return false
	}

	return HasPermission(u, p)
}

// EffectivePermissions is the sorted union of the role's set and the user's
// explicit grants.
func EffectivePermissions(u *User) []Permission {
	if u == nil {
		return nil
	}

	role := ParseRole(u.Role)
	effective := RolePermissions(role)
	if !role.Known() && u.Role == "admin" {
		effective = append(effective, AdminAccess)
	}
	effective = append(effective, u.Permissions...)

	slices.Sort(effective)
	return slices.Compact(effective)
}
