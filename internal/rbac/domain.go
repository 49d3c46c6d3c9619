package rbac

import (
	"sort"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// Permission is a capability tag from the fixed catalog.
type Permission string

// Permission catalog.
const (
	ManageProducts   Permission = "manage_products"
	ManageCustomers  Permission = "manage_customers"
	ManageWarranties Permission = "manage_warranties"
	ManageUsers      Permission = "manage_users"
	ManageRoles      Permission = "manage_roles"
)

// Catalog lists every permission with its description, in display order.
var Catalog = []PermissionInfo{
	{Name: ManageProducts, Description: "Create, update and delete products"},
	{Name: ManageCustomers, Description: "Create, update and delete customers"},
	{Name: ManageWarranties, Description: "Create, update and delete warranties"},
	{Name: ManageUsers, Description: "Manage admin user accounts"},
	{Name: ManageRoles, Description: "Manage roles and their permissions"},
}

// PermissionInfo describes a catalog entry.
type PermissionInfo struct {
	Name        Permission `json:"name"`
	Description string     `json:"description"`
}

var known = func() map[Permission]struct{} {
	m := make(map[Permission]struct{}, len(Catalog))
	for _, info := range Catalog {
		m[info.Name] = struct{}{}
	}
	return m
}()

// Valid reports whether p belongs to the catalog.
func (p Permission) Valid() bool {
	_, ok := known[p]
	return ok
}

func (p Permission) String() string {
	return string(p)
}

// ParsePermission folds and validates a single tag.
func ParsePermission(raw string) (Permission, error) {
	p := Permission(shared.Fold(raw))
	if !p.Valid() {
		return "", shared.Validation("Unknown permission '%s'", raw)
	}
	return p, nil
}

// ParsePermissions validates every tag and returns the deduplicated set.
func ParsePermissions(raw []string) (PermissionSet, error) {
	set := make(PermissionSet, len(raw))
	for _, r := range raw {
		p, err := ParsePermission(r)
		if err != nil {
			return nil, err
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// KnownPermissions keeps the catalog tags from stored and returns the ones it
// dropped. Roles written before a catalog change may carry stale tags.
func KnownPermissions(stored []string) (PermissionSet, []string) {
	set := make(PermissionSet, len(stored))
	var dropped []string
	for _, s := range stored {
		p, err := ParsePermission(s)
		if err != nil {
			dropped = append(dropped, s)
			continue
		}
		set[p] = struct{}{}
	}
	return set, dropped
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from perms.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Slice returns the permissions sorted by name.
func (s PermissionSet) Slice() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted permission names.
func (s PermissionSet) Strings() []string {
	perms := s.Slice()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Principal describes the actor a request runs as.
type Principal interface {
	IsAuthenticated() bool
	HasPermission(perm string) bool
}
