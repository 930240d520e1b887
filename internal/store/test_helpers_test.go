package store

import (
	"context"
	"path/filepath"
	"testing"
)

const testFixturesYAML = `
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
        code: BL2
        name: Cabang Dua
    users:
      - id: owner1
        name: Owner
        roles: [owner]
      - id: cashier1
        name: Kasir
        roles: [cashier]
        outlets: [o1]
      - id: courier1
        name: Kurir
        roles: [courier, worker]
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
        outlets:
          - outlet_id: o1
            price_override: 1
            active: false
      - id: svc-off
        name: Setrika Lama
        unit_type: pcs
        base_price: 3000
        active: false
  - id: t2
    name: Other Tenant
    plan_key: pro
`

// createTestStore opens a fresh SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createSeededStore opens a store loaded with testFixturesYAML.
func createSeededStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	f, err := ParseFixtures([]byte(testFixturesYAML))
	if err != nil {
		t.Fatalf("ParseFixtures() failed: %v", err)
	}
	if err := s.Seed(context.Background(), f); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
	return s
}

func ptr[T any](v T) *T { return &v }
