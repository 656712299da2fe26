package rbac

// Role is a position in the fixed hierarchy user < staff < manager < admin <
// super_admin. RoleUnknown is what unrecognized input parses to and ranks
// below every real role.
type Role int

const (
	RoleUnknown Role = iota - 1
	RoleUser
	RoleStaff
	RoleManager
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleUser:       "user",
	RoleStaff:      "staff",
	RoleManager:    "manager",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

// ParseRole maps a stored role string to a Role. Only the exact lowercase
// names match; anything else, including "ADMIN" or " admin ", is RoleUnknown.
func ParseRole(raw string) Role {
	switch raw {
	case "user":
		return RoleUser
	case "staff":
		return RoleStaff
	case "manager":
		return RoleManager
	case "admin":
		return RoleAdmin
	case "super_admin":
		return RoleSuperAdmin
	default:
		return RoleUnknown
	}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

func (r Role) Rank() int {
	return int(r)
}

func (r Role) Known() bool {
	return r >= RoleUser && r <= RoleSuperAdmin
}

// Roles lists every known role from lowest to highest rank.
func Roles() []Role {
	return []Role{RoleUser, RoleStaff, RoleManager, RoleAdmin, RoleSuperAdmin}
}
