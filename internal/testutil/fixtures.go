package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// Fixtures is the reference data most package tests run against.
//
// Tenant t1 (limit 3 orders/month) has two outlets. cashier1 and worker1
// are assigned to o1 only, courier1 to both, owner1 to none (owners reach
// every outlet). Tenant t2 is unlimited and read-only. Tenant t3 is an
// unlimited tenant with a single outlet.
const Fixtures = `
tenants:
  - id: t1
    name: Bersih Laundry
    plan_key: basic
    orders_limit: 3
    outlets:
      - id: o1
        code: BL
        name: Cabang Utama
        timezone: Asia/Jakarta
      - id: o2
        code: BLB
        name: Cabang Barat
        timezone: Asia/Jakarta
    users:
      - id: owner1
        name: Owner
        roles: [owner]
      - id: admin1
        name: Admin
        roles: [admin]
        outlets: [o1, o2]
      - id: cashier1
        name: Kasir
        roles: [cashier]
        outlets: [o1]
      - id: worker1
        name: Pekerja
        roles: [worker]
        outlets: [o1]
      - id: courier1
        name: Kurir
        roles: [courier]
        outlets: [o1, o2]
    services:
      - id: svc-kg
        name: Cuci Kiloan
        unit_type: kg
        base_price: 7000
        outlets:
          - outlet_id: o1
            price_override: 8000
      - id: svc-pcs
        name: Bed Cover
        unit_type: pcs
        base_price: 25000
  - id: t2
    name: Arsip Laundry
    plan_key: expired
    write_access_mode: read_only
    outlets:
      - id: o9
        code: AR
        name: Arsip
    users:
      - id: owner2
        name: Owner Dua
        roles: [owner]
  - id: t3
    name: Besar Laundry
    plan_key: unlimited
    outlets:
      - id: o3
        code: BSR
        name: Besar
        timezone: Asia/Makassar
    users:
      - id: owner3
        name: Owner Tiga
        roles: [owner]
      - id: courier3
        name: Kurir Tiga
        roles: [courier]
        outlets: [o3]
    services:
      - id: svc3-kg
        name: Kiloan
        unit_type: kg
        base_price: 6000
`

// NewStore opens a SQLite store in a temp dir and seeds it with Fixtures.
// The store is closed when the test ends.
func NewStore(t testing.TB) *store.Store {
	t.Helper()
	return NewStoreWith(t, Fixtures)
}

// NewStoreWith is NewStore with custom fixtures YAML.
func NewStoreWith(t testing.TB, fixturesYAML string) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	f, err := store.ParseFixtures([]byte(fixturesYAML))
	if err != nil {
		t.Fatalf("ParseFixtures() failed: %v", err)
	}
	if err := s.Seed(context.Background(), f); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}
