package auth

// Principal represents an authenticated console user with resolved permissions.
type Principal struct {
	UserID      string
	Roles       []string
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal, resolving permissions from the role set.
func NewPrincipal(userID string, roles []string) Principal {
	roles = dedupeRoles(roles)
	return Principal{
		UserID:      userID,
		Roles:       roles,
		Permissions: PermissionsForRoles(roles),
	}
}

// HasPermission reports whether the principal can execute the action identified by key.
func (p Principal) HasPermission(key string) bool {
	_, ok := p.Permissions[key]
	return ok
}
