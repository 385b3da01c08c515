package auth

const (
	PermParkingView   = "parking.view"
	PermParkingManage = "parking.manage"
)

// rolePermissions maps a console role to the permissions it grants.
var rolePermissions = map[string][]string{
	"admin":    {PermParkingView, PermParkingManage},
	"operator": {PermParkingView, PermParkingManage},
	"viewer":   {PermParkingView},
}

// PermissionsForRoles resolves the union of permissions for a role set.
func PermissionsForRoles(roles []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, role := range dedupeRoles(roles) {
		for _, perm := range rolePermissions[role] {
			set[perm] = struct{}{}
		}
	}
	return set
}
