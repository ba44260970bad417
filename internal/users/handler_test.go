package users

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealerhub/dealerhub/internal/testing/guard"
)

func newTestRouter(t *testing.T) (http.Handler, *memRepo) {
	t.Helper()
	svc, repo, _, _ := newTestService()
	g := guard.New(guard.Accounts{
		"admin-identity":  guard.Admin("admin-identity"),
		"dealer-identity": guard.Member("dealer-identity", "Dealer", "dealers.read"),
		"support":         guard.Member("support", "Support", "users.read", "users.write"),
	})
	r := chi.NewRouter()
	r.Use(guard.Session, g.Hydrate)
	r.Route("/api/users", NewHandler(nil, svc, g).MountRoutes)
	return r, repo
}

func call(h http.Handler, method, path, identity, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		req.Header.Set(guard.IdentityHeader, identity)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUserRoutesEnforcePermissions(t *testing.T) {
	h, _ := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/api/users/", "", "").Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodGet, "/api/users/", "dealer-identity", "").Code)
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/api/users/", "support", "").Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodDelete, "/api/users/2", "support", "").Code)
	assert.Equal(t, http.StatusNoContent, call(h, http.MethodDelete, "/api/users/2", "admin-identity", "").Code)
}

func TestListUsersFilterByRole(t *testing.T) {
	h, _ := newTestRouter(t)
	rec := call(h, http.MethodGet, "/api/users/?role_id=3", "admin-identity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Users []User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Users, 1)
	assert.Equal(t, "dealer@dealerhub.test", body.Users[0].Email)

	assert.Equal(t, http.StatusBadRequest, call(h, http.MethodGet, "/api/users/?role_id=abc", "admin-identity", "").Code)
}

func TestAssignRoleEndpoint(t *testing.T) {
	h, repo := newTestRouter(t)

	rec := call(h, http.MethodPut, "/api/users/2/role", "support", `{"role_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User", repo.users[2].RoleName)

	rec = call(h, http.MethodPut, "/api/users/2/role", "support", `{"role_id":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, repo.users[2].RoleID)

	assert.Equal(t, http.StatusBadRequest, call(h, http.MethodPut, "/api/users/2/role", "support", `{"role_id":-1}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(h, http.MethodPut, "/api/users/2/role", "support", `{"role":2}`).Code)
}

func TestSetOverridesEndpoint(t *testing.T) {
	h, repo := newTestRouter(t)

	rec := call(h, http.MethodPut, "/api/users/2/overrides", "admin-identity", `{"permissions":["vehicles.read","vehicles.fly"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "vehicles.fly")

	rec = call(h, http.MethodPut, "/api/users/2/overrides", "admin-identity", `{"permissions":["vehicles.read"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"vehicles.read"}, repo.users[2].Overrides)
}

func TestDeleteSelfConflict(t *testing.T) {
	h, _ := newTestRouter(t)
	assert.Equal(t, http.StatusConflict, call(h, http.MethodDelete, "/api/users/1", "admin-identity", "").Code)
	assert.Equal(t, http.StatusNotFound, call(h, http.MethodDelete, "/api/users/99", "admin-identity", "").Code)
}
