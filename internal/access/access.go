// Package access answers who may do what: the roles a user holds in a
// tenant and the outlets they can reach.
//
// Owners reach every outlet of their tenant. Everyone else reaches only the
// outlets they are assigned to.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ahmlhn/Saas-Laundry-sub002/internal/domain"
	"github.com/ahmlhn/Saas-Laundry-sub002/internal/store"
)

// ErrUnknownUser is returned when the actor is not a user of the tenant.
var ErrUnknownUser = errors.New("user not found in tenant")

// Grant is what an actor is allowed to do within its tenant.
type Grant struct {
	TenantID  string
	UserID    string
	Roles     []string
	OutletIDs []string
}

// HasRole reports whether the grant holds any of roles.
func (g *Grant) HasRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(g.Roles, r) {
			return true
		}
	}
	return false
}

// IsOwner reports whether the grant holds the owner role.
func (g *Grant) IsOwner() bool {
	return g.HasRole(domain.RoleOwner)
}

// RequireRole returns a ROLE_ACCESS_DENIED rejection unless the grant holds
// one of roles.
func (g *Grant) RequireRole(roles ...string) *domain.Reject {
	if g.HasRole(roles...) {
		return nil
	}
	return &domain.Reject{
		Code:    domain.ReasonRoleAccessDenied,
		Message: "You are not allowed to perform this action.",
	}
}

// Resolver loads grants.
type Resolver interface {
	Resolve(ctx context.Context, actor domain.Actor) (*Grant, error)
}

// Lookup is the slice of the store the resolver reads.
type Lookup interface {
	UserInTenant(ctx context.Context, tenantID, userID string) (bool, error)
	UserRoles(ctx context.Context, tenantID, userID string) ([]string, error)
	UserOutletIDs(ctx context.Context, tenantID, userID string) ([]string, error)
}

// StoreResolver resolves grants from the users, user_roles and
// user_outlets tables.
type StoreResolver struct {
	lookup Lookup
}

// NewStoreResolver creates a resolver over lookup (normally *store.Store).
func NewStoreResolver(lookup Lookup) *StoreResolver {
	return &StoreResolver{lookup: lookup}
}

// Resolve implements Resolver.
func (r *StoreResolver) Resolve(ctx context.Context, actor domain.Actor) (*Grant, error) {
	ok, err := r.lookup.UserInTenant(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve grant: %w", err)
	}
	if !ok {
		return nil, ErrUnknownUser
	}
	roles, err := r.lookup.UserRoles(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve grant: %w", err)
	}
	outlets, err := r.lookup.UserOutletIDs(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve grant: %w", err)
	}
	return &Grant{TenantID: actor.TenantID, UserID: actor.UserID, Roles: roles, OutletIDs: outlets}, nil
}

// OutletReader looks up outlets. Satisfied by *store.Store and *store.Tx.
type OutletReader interface {
	GetOutlet(ctx context.Context, tenantID, outletID string) (*domain.Outlet, error)
}

// CheckOutlet loads the outlet and verifies the grant can reach it. A
// missing or foreign outlet and an unassigned outlet both yield
// OUTLET_ACCESS_DENIED. The error return is for infrastructure faults only.
func CheckOutlet(ctx context.Context, q OutletReader, g *Grant, outletID string) (*domain.Outlet, *domain.Reject, error) {
	outlet, err := q.GetOutlet(ctx, g.TenantID, outletID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &domain.Reject{
			Code:    domain.ReasonOutletAccessDenied,
			Message: "Outlet not found in tenant scope.",
		}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("check outlet: %w", err)
	}
	if g.IsOwner() || slices.Contains(g.OutletIDs, outlet.ID) {
		return outlet, nil, nil
	}
	return nil, &domain.Reject{
		Code:    domain.ReasonOutletAccessDenied,
		Message: "You do not have access to this outlet.",
	}, nil
}
