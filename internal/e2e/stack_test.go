package e2e

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/dealerhub/dealerhub/internal/platform/httpx"
	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/roles"
	"github.com/dealerhub/dealerhub/internal/testing/guard"
)

// rowStore stands in for PostgreSQL: accounts point at roles by ID and the
// role grants are resolved at load time, like the real join.
type rowStore struct {
	mu       sync.Mutex
	accounts map[string]rbac.AccountRecord
	roles    map[int64]roles.Role
}

func newRowStore() *rowStore {
	return &rowStore{
		accounts: map[string]rbac.AccountRecord{
			"dealer-1": {UserID: 10, Identity: "dealer-1", RoleID: 3, RoleName: "Dealer"},
		},
		roles: map[int64]roles.Role{
			1: {ID: 1, Name: "Admin"},
			2: {ID: 2, Name: "User"},
			3: {ID: 3, Name: "Dealer", Permissions: []string{"dealers.read"}},
		},
	}
}

func (s *rowStore) LoadAccount(_ context.Context, identity string) (rbac.AccountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.accounts[identity]
	if !ok {
		return rbac.AccountRecord{}, rbac.ErrNotFound
	}
	rec.RolePermissions = append([]string(nil), s.roles[rec.RoleID].Permissions...)
	return rec, nil
}

func (s *rowStore) ListRoles(context.Context, roles.ListFilters) ([]roles.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roles.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

func (s *rowStore) GetRole(_ context.Context, id int64) (roles.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return roles.Role{}, roles.ErrNotFound
	}
	return r, nil
}

func (s *rowStore) CreateRole(context.Context, roles.RoleInput) (roles.Role, error) {
	return roles.Role{}, httpx.ErrForbidden
}

func (s *rowStore) UpdateRole(context.Context, int64, roles.RoleInput) (roles.Role, error) {
	return roles.Role{}, httpx.ErrForbidden
}

func (s *rowStore) DeleteRole(context.Context, int64, *int64) (int64, error) {
	return 0, httpx.ErrForbidden
}

func (s *rowStore) ReplacePermissions(_ context.Context, id int64, names []string, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return roles.ErrNotFound
	}
	r.Permissions = append([]string(nil), names...)
	s.roles[id] = r
	return nil
}

type stack struct {
	store    *rowStore
	cache    *rbac.Cache
	registry *rbac.Registry
	router   http.Handler
	roles    *roles.Service
}

func newStack(t *testing.T) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newRowStore()
	cache := rbac.NewCache(client, time.Minute)
	loader := rbac.NewLoader(rbac.LoaderConfig{Store: store, Cache: cache, Timeout: time.Second})
	registry := rbac.NewRegistry(loader, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		registry.Wait()
	})
	if err := registry.Listen(ctx, cache); err != nil {
		t.Fatalf("listen: %v", err)
	}

	g := rbac.Guard{Registry: registry, Catalog: rbac.DefaultCatalog(), Wait: time.Second, API: true}
	r := chi.NewRouter()
	r.Use(guard.Session, g.Hydrate)
	r.With(g.Require(rbac.ResourcePricing, rbac.ActionRead)).Get("/pricing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &stack{
		store:    store,
		cache:    cache,
		registry: registry,
		router:   r,
		roles:    roles.NewService(store, nil, cache, nil, nil),
	}
}

func (s *stack) get(path, identity string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set(guard.IdentityHeader, identity)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec.Code
}
