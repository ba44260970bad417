package rbac

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
)

// Resources gated by the back office.
const (
	ResourceBase        = ""
	ResourceVehicles    = "vehicles"
	ResourceDealers     = "dealers"
	ResourceSubDealers  = "sub_dealers"
	ResourcePricing     = "pricing"
	ResourceUsers       = "users"
	ResourceRoles       = "roles"
	ResourcePermissions = "permissions"
	ResourceSettings    = "settings"
)

// Catalog is the finite, ordered set of permissions the system can gate.
type Catalog struct {
	perms  []Permission
	byName map[string]Permission
}

// CategoryGroup is a catalog slice sharing one category.
type CategoryGroup struct {
	Category    string       `json:"category"`
	Label       string       `json:"label"`
	Permissions []Permission `json:"permissions"`
}

// NewCatalog validates and orders perms. Names are derived from the
// resource/action pair when empty and must be unique.
func NewCatalog(perms ...Permission) (*Catalog, error) {
	c := &Catalog{byName: make(map[string]Permission, len(perms))}
	for _, p := range perms {
		if _, ok := ParseAction(string(p.Action)); !ok {
			return nil, fmt.Errorf("rbac: catalog: invalid action %q", p.Action)
		}
		canonical := PermissionName(p.Resource, p.Action)
		if p.Name == "" {
			p.Name = canonical
		}
		if p.Name != canonical {
			return nil, fmt.Errorf("rbac: catalog: name %q does not match %q", p.Name, canonical)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("rbac: catalog: duplicate permission %q", p.Name)
		}
		c.byName[p.Name] = p
		c.perms = append(c.perms, p)
	}
	sort.SliceStable(c.perms, func(i, j int) bool {
		if c.perms[i].Category != c.perms[j].Category {
			return c.perms[i].Category < c.perms[j].Category
		}
		return c.perms[i].Name < c.perms[j].Name
	})
	return c, nil
}

// DefaultCatalog returns the built-in permissions of the back office.
func DefaultCatalog() *Catalog {
	var perms []Permission
	title := cases.Title(language.English)
	add := func(category, resource, what string, actions ...Action) {
		for _, a := range actions {
			perms = append(perms, Permission{
				Resource:    resource,
				Action:      a,
				Category:    category,
				Description: title.String(string(a)) + " " + what,
			})
		}
	}
	all := Actions()
	add("general", ResourceBase, "the dashboard", ActionRead, ActionWrite)
	add("inventory", ResourceVehicles, "vehicles in the auction-to-delivery pipeline", all...)
	add("dealers", ResourceDealers, "dealers", all...)
	add("dealers", ResourceSubDealers, "sub-dealers", all...)
	add("pricing", ResourcePricing, "pricing tables", all...)
	add("administration", ResourceUsers, "user accounts", all...)
	add("administration", ResourceRoles, "roles", all...)
	add("administration", ResourcePermissions, "permission catalog", ActionRead)
	add("settings", ResourceSettings, "profile settings", ActionRead, ActionWrite)
	c, err := NewCatalog(perms...)
	if err != nil {
		panic(err)
	}
	return c
}

// ListAll returns every permission ordered by category then name. The
// returned slice is a copy; callers may re-read any number of times.
func (c *Catalog) ListAll() []Permission {
	out := make([]Permission, len(c.perms))
	copy(out, c.perms)
	return out
}

// LookupByName returns the permission registered under name.
func (c *Catalog) LookupByName(name string) (Permission, error) {
	p, ok := c.byName[strings.TrimSpace(strings.ToLower(name))]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrNotFound, name)
	}
	return p, nil
}

// Grouped returns the catalog split by category for administrative display.
func (c *Catalog) Grouped() []CategoryGroup {
	title := cases.Title(language.English)
	var groups []CategoryGroup
	for _, p := range c.perms {
		if n := len(groups); n == 0 || groups[n-1].Category != p.Category {
			groups = append(groups, CategoryGroup{Category: p.Category, Label: title.String(p.Category)})
		}
		groups[len(groups)-1].Permissions = append(groups[len(groups)-1].Permissions, p)
	}
	return groups
}

// Filter keeps only names present in the catalog.
func (c *Catalog) Filter(names []string) (known []string, unknown []string) {
	for _, name := range names {
		if p, err := c.LookupByName(name); err == nil {
			known = append(known, p.Name)
			continue
		}
		unknown = append(unknown, name)
	}
	return known, unknown
}

// UnknownPermissionsError lists names absent from the catalog.
type UnknownPermissionsError struct {
	Names []string
}

func (e *UnknownPermissionsError) Error() string {
	return "unknown permissions: " + strings.Join(e.Names, ", ")
}

// Unwrap lets callers match httpx.ErrValidation.
func (e *UnknownPermissionsError) Unwrap() error {
	return httpx.ErrValidation
}

// Resolve normalises names to catalog names, deduplicated and sorted.
// Any unknown name fails the whole call.
func (c *Catalog) Resolve(names []string) ([]string, error) {
	known, unknown := c.Filter(names)
	if len(unknown) > 0 {
		return nil, &UnknownPermissionsError{Names: unknown}
	}
	seen := make(map[string]struct{}, len(known))
	out := make([]string, 0, len(known))
	for _, name := range known {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}
