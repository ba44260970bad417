package perf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dealerhub/dealerhub/internal/rbac"
	"github.com/dealerhub/dealerhub/internal/testing/guard"
)

func dealerAccount() *rbac.UserAccount {
	return &rbac.UserAccount{
		AuthIdentity: "dealer-1",
		Overrides:    rbac.PermissionSetFromNames([]string{"pricing.read"}),
		Role: &rbac.Role{
			Name:        "Dealer",
			Permissions: rbac.PermissionSetFromNames([]string{"dealers.read", "sub_dealers.read", "sub_dealers.write", "vehicles.read"}),
		},
	}
}

func BenchmarkHasPermission(b *testing.B) {
	account := dealerAccount()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = rbac.HasPermission(account, rbac.ResourcePricing, rbac.ActionWrite)
	}
}

func guardedRouter() http.Handler {
	g := guard.New(guard.Accounts{
		"dealer-1": guard.Member("dealer-1", "Dealer", "dealers.read", "vehicles.read"),
	})
	r := chi.NewRouter()
	r.Use(guard.Session, g.Hydrate)
	r.With(g.Require(rbac.ResourceDealers, rbac.ActionRead)).Get("/dealers", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func BenchmarkGuardedRequest(b *testing.B) {
	h := guardedRouter()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodGet, "/dealers", nil)
		req.Header.Set(guard.IdentityHeader, "dealer-1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

// Every request in the test router starts a fresh session, so each sample
// includes a full hydration through the loader.
func TestGuardLatencyTargets(t *testing.T) {
	h := guardedRouter()
	samples := make([]time.Duration, 0, 200)
	for i := 0; i < cap(samples); i++ {
		req := httptest.NewRequest(http.MethodGet, "/dealers", nil).WithContext(context.Background())
		req.Header.Set(guard.IdentityHeader, "dealer-1")
		rec := httptest.NewRecorder()
		start := time.Now()
		h.ServeHTTP(rec, req)
		samples = append(samples, time.Since(start))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: unexpected status %d", i, rec.Code)
		}
	}
	if p95 := percentile95(samples); p95 > 50*time.Millisecond {
		t.Fatalf("guard latency regression: p95=%s", p95)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
