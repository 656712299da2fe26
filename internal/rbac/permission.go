package rbac

import "slices"

type Permission string

const (
	ReadCustomers   Permission = "read_customers"
	CreateCustomers Permission = "create_customers"
	UpdateCustomers Permission = "update_customers"
	DeleteCustomers Permission = "delete_customers"

	ReadAppointments   Permission = "read_appointments"
	CreateAppointments Permission = "create_appointments"
	UpdateAppointments Permission = "update_appointments"
	DeleteAppointments Permission = "delete_appointments"

	ReadMedia   Permission = "read_media"
	UploadMedia Permission = "upload_media"
	UpdateMedia Permission = "update_media"
	DeleteMedia Permission = "delete_media"

	ReadAnalytics  Permission = "read_analytics"
	ExportData     Permission = "export_data"
	ManageStaff    Permission = "manage_staff"
	ManageSettings Permission = "manage_settings"
	ViewAuditLogs  Permission = "view_audit_logs"
	ManageUsers    Permission = "manage_users"
	AdminAccess    Permission = "admin_access"
	ManageRoles    Permission = "manage_roles"
	SystemConfig   Permission = "system_config"
)

// rolePermissions holds each role's effective set: its own additions plus
// everything granted to lower ranks. Built once, never mutated.
var rolePermissions = buildRolePermissions()

// additions lists what a role adds on top of the role directly below it.
func additions(r Role) []Permission {
	switch r {
	case RoleUser:
		return []Permission{ReadMedia}
	case RoleStaff:
		return []Permission{ReadCustomers, ReadAppointments, CreateAppointments, UpdateAppointments, UploadMedia}
	case RoleManager:
		return []Permission{
			CreateCustomers, UpdateCustomers, DeleteAppointments, UpdateMedia, DeleteMedia,
			ReadAnalytics, ExportData, ManageStaff,
		}
	case RoleAdmin:
		return []Permission{DeleteCustomers, ManageUsers, ManageSettings, ViewAuditLogs, AdminAccess}
	case RoleSuperAdmin:
		return []Permission{ManageRoles, SystemConfig}
	case RoleUnknown:
		return nil
	}
	return nil
}

func buildRolePermissions() map[Role][]Permission {
	table := make(map[Role][]Permission, len(roleNames))
	var inherited []Permission

	for _, role := range Roles() {
		effective := append(slices.Clone(inherited), additions(role)...)
		slices.Sort(effective)
		effective = slices.Compact(effective)
		table[role] = effective
		inherited = effective
	}

	return table
}

// RolePermissions returns a copy of the effective permission set of r.
// Unknown roles have none.
func RolePermissions(r Role) []Permission {
	return slices.Clone(rolePermissions[r])
}

// Permissions lists every permission token, sorted.
func Permissions() []Permission {
	return RolePermissions(RoleSuperAdmin)
}

func roleHas(r Role, p Permission) bool {
	_, found := slices.BinarySearch(rolePermissions[r], p)
	return found
}

// IsPermission reports whether p is one of the known permission tokens.
func IsPermission(p Permission) bool {
	return roleHas(RoleSuperAdmin, p)
}
