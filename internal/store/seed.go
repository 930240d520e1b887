package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fixtures is the reference data a deployment is seeded with: tenants and
// the users, outlets and services beneath them. CRUD for these lives
// outside the sync core, so a fixtures file is how they get in.
type Fixtures struct {
	Tenants []TenantFixture `yaml:"tenants"`
}

// TenantFixture describes one tenant and its reference data.
type TenantFixture struct {
	ID              string           `yaml:"id"`
	Name            string           `yaml:"name"`
	PlanKey         string           `yaml:"plan_key"`
	OrdersLimit     *int64           `yaml:"orders_limit"`
	WriteAccessMode string           `yaml:"write_access_mode"`
	Outlets         []OutletFixture  `yaml:"outlets"`
	Users           []UserFixture    `yaml:"users"`
	Services        []ServiceFixture `yaml:"services"`
}

// OutletFixture describes an outlet.
type OutletFixture struct {
	ID       string `yaml:"id"`
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// UserFixture describes a user, its roles and its outlet assignments.
type UserFixture struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Roles   []string `yaml:"roles"`
	Outlets []string `yaml:"outlets"`
}

// ServiceFixture describes a catalog service with optional per-outlet prices.
type ServiceFixture struct {
	ID        string                 `yaml:"id"`
	Name      string                 `yaml:"name"`
	UnitType  string                 `yaml:"unit_type"`
	BasePrice int64                  `yaml:"base_price"`
	Active    *bool                  `yaml:"active"`
	Outlets   []OutletServiceFixture `yaml:"outlets"`
}

// OutletServiceFixture overrides a service at one outlet.
type OutletServiceFixture struct {
	OutletID      string `yaml:"outlet_id"`
	PriceOverride *int64 `yaml:"price_override"`
	Active        *bool  `yaml:"active"`
}

// LoadFixtures parses a YAML fixtures file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures parses YAML fixtures and fills defaults.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i := range f.Tenants {
		t := &f.Tenants[i]
		if t.ID == "" {
			return nil, fmt.Errorf("parse fixtures: tenant %d has no id", i)
		}
		if t.WriteAccessMode == "" {
			t.WriteAccessMode = "full"
		}
		for j := range t.Outlets {
			if t.Outlets[j].Timezone == "" {
				t.Outlets[j].Timezone = "Asia/Jakarta"
			}
		}
	}
	return &f, nil
}

// Seed upserts fixtures in one transaction. Re-seeding the same file is a
// no-op; changed fields are overwritten.
func (s *Store) Seed(ctx context.Context, f *Fixtures) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, t := range f.Tenants {
			if err := tx.seedTenant(ctx, t); err != nil {
				return fmt.Errorf("seed tenant %s: %w", t.ID, err)
			}
		}
		return nil
	})
}

func (tx *Tx) seedTenant(ctx context.Context, t TenantFixture) error {
	_, err := tx.exec(ctx, `
		INSERT INTO tenants (id, name, plan_key, orders_limit, write_access_mode)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			plan_key = excluded.plan_key,
			orders_limit = excluded.orders_limit,
			write_access_mode = excluded.write_access_mode
	`, t.ID, t.Name, t.PlanKey, nullInt64Ptr(t.OrdersLimit), t.WriteAccessMode)
	if err != nil {
		return err
	}

	for _, o := range t.Outlets {
		_, err := tx.exec(ctx, `
			INSERT INTO outlets (id, tenant_id, code, name, timezone)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET code = excluded.code, name = excluded.name, timezone = excluded.timezone
		`, o.ID, t.ID, o.Code, o.Name, o.Timezone)
		if err != nil {
			return fmt.Errorf("outlet %s: %w", o.ID, err)
		}
	}

	for _, u := range t.Users {
		_, err := tx.exec(ctx, `
			INSERT INTO users (id, tenant_id, name) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name
		`, u.ID, t.ID, u.Name)
		if err != nil {
			return fmt.Errorf("user %s: %w", u.ID, err)
		}
		for _, role := range u.Roles {
			_, err := tx.exec(ctx, `
				INSERT INTO user_roles (user_id, role) VALUES (?, ?)
				ON CONFLICT(user_id, role) DO NOTHING
			`, u.ID, role)
			if err != nil {
				return fmt.Errorf("user %s role %s: %w", u.ID, role, err)
			}
		}
		for _, outletID := range u.Outlets {
			_, err := tx.exec(ctx, `
				INSERT INTO user_outlets (user_id, outlet_id) VALUES (?, ?)
				ON CONFLICT(user_id, outlet_id) DO NOTHING
			`, u.ID, outletID)
			if err != nil {
				return fmt.Errorf("user %s outlet %s: %w", u.ID, outletID, err)
			}
		}
	}

	for _, svc := range t.Services {
		_, err := tx.exec(ctx, `
			INSERT INTO services (id, tenant_id, name, unit_type, base_price_amount, active)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				unit_type = excluded.unit_type,
				base_price_amount = excluded.base_price_amount,
				active = excluded.active
		`, svc.ID, t.ID, svc.Name, svc.UnitType, svc.BasePrice, boolOr(svc.Active, true))
		if err != nil {
			return fmt.Errorf("service %s: %w", svc.ID, err)
		}
		for _, ov := range svc.Outlets {
			_, err := tx.exec(ctx, `
				INSERT INTO outlet_services (outlet_id, service_id, price_override_amount, active)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(outlet_id, service_id) DO UPDATE SET
					price_override_amount = excluded.price_override_amount,
					active = excluded.active
			`, ov.OutletID, svc.ID, nullInt64Ptr(ov.PriceOverride), boolOr(ov.Active, true))
			if err != nil {
				return fmt.Errorf("service %s outlet %s: %w", svc.ID, ov.OutletID, err)
			}
		}
	}
	return nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
