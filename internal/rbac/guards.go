package rbac

import "github.com/ks-enterprise/ks-admin/internal/shared"

// SuperAdminRoleID is the seeded role holding every permission.
const SuperAdminRoleID int64 = 1

// UserDeletion carries the facts CanDeleteUser decides on. SuperAdminCount
// must be read in the same transaction that performs the delete.
type UserDeletion struct {
	TargetUserID    int64
	ActingUserID    int64
	TargetRoleID    int64
	SuperAdminCount int
}

// CanDeleteUser refuses self-deletion and removal of the last super admin.
func CanDeleteUser(d UserDeletion) error {
	if d.TargetUserID == d.ActingUserID {
		return shared.Conflict("Cannot delete your own account")
	}
	if d.TargetRoleID == SuperAdminRoleID && d.SuperAdminCount <= 1 {
		return shared.Conflict("Cannot delete the last super admin user")
	}
	return nil
}

// CanChangeUserRole refuses moving the last super admin to another role.
func CanChangeUserRole(currentRoleID, newRoleID int64, superAdminCount int) error {
	if currentRoleID == SuperAdminRoleID && newRoleID != SuperAdminRoleID && superAdminCount <= 1 {
		return shared.Conflict("Cannot change the role of the last super admin user")
	}
	return nil
}

// CanDeleteRole refuses deleting a role still referenced by users, and the
// super-admin role itself.
func CanDeleteRole(roleID int64, assignedUsers int) error {
	if roleID == SuperAdminRoleID {
		return shared.Conflict("Cannot delete the super admin role")
	}
	if assignedUsers > 0 {
		return shared.Conflict("Cannot delete role as it is assigned to users")
	}
	return nil
}

// CanSetRolePermissions keeps the super-admin role able to manage users and roles.
func CanSetRolePermissions(roleID int64, perms PermissionSet) error {
	if roleID != SuperAdminRoleID {
		return nil
	}
	if !perms.Has(ManageUsers) || !perms.Has(ManageRoles) {
		return shared.Conflict("The super admin role must keep manage_users and manage_roles")
	}
	return nil
}
