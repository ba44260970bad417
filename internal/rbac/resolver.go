package rbac

// HasPermission decides whether account may perform action on resource.
// Rules are evaluated in order and the first match wins:
//
//  1. base resource + read is always allowed for an authenticated account
//  2. the Admin role allows everything
//  3. a direct override granting the pair allows
//  4. the role permission set granting the pair allows
//  5. otherwise deny
//
// A nil account is unauthenticated and is denied everything. The function is
// pure: it reads only already loaded data and never fails.
func HasPermission(account *UserAccount, resource string, action Action) bool {
	if account == nil {
		return false
	}
	if resource == ResourceBase && action == ActionRead {
		return true
	}
	if account.Role.IsAdmin() {
		return true
	}
	if account.Overrides.Allows(resource, action) {
		return true
	}
	if account.Role != nil && account.Role.Permissions.Allows(resource, action) {
		return true
	}
	return false
}

// GrantedNames lists every catalog permission account resolves to allow.
func GrantedNames(account *UserAccount, catalog *Catalog) []string {
	if account == nil || catalog == nil {
		return nil
	}
	var names []string
	for _, p := range catalog.ListAll() {
		if HasPermission(account, p.Resource, p.Action) {
			names = append(names, p.Name)
		}
	}
	return names
}
