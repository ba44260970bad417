// Package guard builds authorization guards for handler tests. Identities
// come from the X-Test-Identity header and resolve against an in-memory
// account table.
package guard

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/shared"
)

// IdentityHeader carries the identity bound to the test session.
const IdentityHeader = "X-Test-Identity"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("DEALERHUB_TEST_MODE") == "" {
			_ = os.Setenv("DEALERHUB_TEST_MODE", "1")
		}
	})
}

// Accounts maps identities to stored authorization records.
type Accounts map[string]rbac.AccountRecord

// LoadAccount implements rbac.Store.
func (a Accounts) LoadAccount(_ context.Context, identity string) (rbac.AccountRecord, error) {
	rec, ok := a[identity]
	if !ok {
		return rbac.AccountRecord{}, rbac.ErrNotFound
	}
	return rec, nil
}

// Admin returns a record holding the Admin role.
func Admin(identity string) rbac.AccountRecord {
	return rbac.AccountRecord{UserID: 1, Identity: identity, RoleID: 1, RoleName: rbac.AdminRoleName}
}

// Member returns a record for role granting the named permissions.
func Member(identity, role string, permissions ...string) rbac.AccountRecord {
	return rbac.AccountRecord{UserID: 2, Identity: identity, RoleID: 2, RoleName: role, RolePermissions: permissions}
}

// New returns an API guard backed by accounts.
func New(accounts Accounts) rbac.Guard {
	loader := rbac.NewLoader(rbac.LoaderConfig{Store: accounts, Timeout: time.Second})
	return rbac.Guard{
		Registry: rbac.NewRegistry(loader, nil, nil),
		Catalog:  rbac.DefaultCatalog(),
		Wait:     time.Second,
		API:      true,
	}
}

// Session binds a fresh session carrying the IdentityHeader identity.
func Session(next http.Handler) http.Handler {
	sessions := shared.NewSessionManager(nil, "test_session", "secret", time.Hour, false)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessions.Load(r.Context(), r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if identity := r.Header.Get(IdentityHeader); identity != "" {
			sess.SetIdentity(identity)
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
	})
}
