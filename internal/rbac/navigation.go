package rbac

// NavItem is one sidebar entry, shown when its resource is readable.
type NavItem struct {
	Label    string `json:"label"`
	Path     string `json:"path"`
	Resource string `json:"resource"`
}

// DefaultNavigation lists the back office sections in sidebar order.
func DefaultNavigation() []NavItem {
	return []NavItem{
		{Label: "Dashboard", Path: "/", Resource: ResourceBase},
		{Label: "Vehicles", Path: "/vehicles", Resource: ResourceVehicles},
		{Label: "Dealers", Path: "/dealers", Resource: ResourceDealers},
		{Label: "Sub-dealers", Path: "/dealers/sub", Resource: ResourceSubDealers},
		{Label: "Pricing", Path: "/pricing", Resource: ResourcePricing},
		{Label: "Users", Path: "/admin/users", Resource: ResourceUsers},
		{Label: "Roles", Path: "/admin/roles", Resource: ResourceRoles},
		{Label: "Permissions", Path: "/admin/permissions", Resource: ResourcePermissions},
		{Label: "Settings", Path: "/settings", Resource: ResourceSettings},
	}
}

// VisibleNavigation filters items through auth.
func VisibleNavigation(auth Authorization, items []NavItem) []NavItem {
	visible := make([]NavItem, 0, len(items))
	for _, item := range items {
		if auth.HasPermission(item.Resource, ActionRead) {
			visible = append(visible, item)
		}
	}
	return visible
}
