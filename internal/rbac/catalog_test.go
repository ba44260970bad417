package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
)

func TestDefaultCatalogListAllIsOrderedAndRestartable(t *testing.T) {
	catalog := DefaultCatalog()
	first := catalog.ListAll()
	require.NotEmpty(t, first)
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if prev.Category == cur.Category {
			assert.Less(t, prev.Name, cur.Name)
		} else {
			assert.Less(t, prev.Category, cur.Category)
		}
	}

	first[0].Name = "mutated"
	second := catalog.ListAll()
	assert.NotEqual(t, "mutated", second[0].Name)
	assert.Equal(t, len(first), len(second))
}

func TestCatalogLookupByName(t *testing.T) {
	catalog := DefaultCatalog()

	p, err := catalog.LookupByName("vehicles.write")
	require.NoError(t, err)
	assert.Equal(t, ResourceVehicles, p.Resource)
	assert.Equal(t, ActionWrite, p.Action)
	assert.Equal(t, "inventory", p.Category)

	base, err := catalog.LookupByName("read")
	require.NoError(t, err)
	assert.Equal(t, ResourceBase, base.Resource)

	_, err = catalog.LookupByName("vehicles.approve")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = catalog.LookupByName("permissions.delete")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewCatalogRejectsDuplicatesAndBadNames(t *testing.T) {
	_, err := NewCatalog(
		Permission{Resource: "vehicles", Action: ActionRead},
		Permission{Name: "vehicles.read", Resource: "vehicles", Action: ActionRead},
	)
	assert.Error(t, err)

	_, err = NewCatalog(Permission{Name: "cars.read", Resource: "vehicles", Action: ActionRead})
	assert.Error(t, err)

	_, err = NewCatalog(Permission{Resource: "vehicles", Action: Action("approve")})
	assert.Error(t, err)
}

func TestCatalogGrouped(t *testing.T) {
	groups := DefaultCatalog().Grouped()
	require.NotEmpty(t, groups)
	seen := map[string]bool{}
	total := 0
	for _, g := range groups {
		assert.False(t, seen[g.Category], "category %s split", g.Category)
		seen[g.Category] = true
		total += len(g.Permissions)
		for _, p := range g.Permissions {
			assert.Equal(t, g.Category, p.Category)
		}
	}
	assert.Equal(t, len(DefaultCatalog().ListAll()), total)
	assert.Equal(t, "Administration", groups[0].Label)
}

func TestCatalogFilter(t *testing.T) {
	known, unknown := DefaultCatalog().Filter([]string{"Vehicles.Read", "bogus.read", "pricing.write"})
	assert.Equal(t, []string{"vehicles.read", "pricing.write"}, known)
	assert.Equal(t, []string{"bogus.read"}, unknown)
}

func TestCatalogResolve(t *testing.T) {
	names, err := DefaultCatalog().Resolve([]string{"pricing.write", "Vehicles.Read", "vehicles.read"})
	require.NoError(t, err)
	assert.Equal(t, []string{"pricing.write", "vehicles.read"}, names)

	_, err = DefaultCatalog().Resolve([]string{"vehicles.read", "vehicles.fly"})
	var unknown *UnknownPermissionsError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"vehicles.fly"}, unknown.Names)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}
