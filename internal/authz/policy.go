// Package authz decides what an authenticated actor may do. Handlers and
// middleware ask the Policy instead of comparing role strings.
package authz

import (
	"jam3a/internal/domain"

	"github.com/google/uuid"
)

// Capability names a protected action
type Capability string

const (
	CapDealCreate           Capability = "deal:create"
	CapDealManageAny        Capability = "deal:manage_any"
	CapDealManageOwn        Capability = "deal:manage_own"
	CapDealJoin             Capability = "deal:join"
	CapDealViewParticipants Capability = "deal:view_participants"
	CapCatalogManage        Capability = "catalog:manage"
	CapProductManageOwn     Capability = "product:manage_own"
)

// Actor is the authenticated caller
type Actor struct {
	ID   uuid.UUID
	Role domain.Role
}

// Policy maps roles to capabilities
type Policy struct {
	grants map[domain.Role]map[Capability]bool
}

// DefaultPolicy returns the platform's role grants
func DefaultPolicy() *Policy {
	return NewPolicy(map[domain.Role][]Capability{
		domain.RoleAdmin: {
			CapDealCreate, CapDealManageAny, CapDealManageOwn, CapDealJoin,
			CapDealViewParticipants, CapCatalogManage, CapProductManageOwn,
		},
		domain.RoleSeller: {
			CapDealCreate, CapDealManageOwn, CapDealJoin,
			CapDealViewParticipants, CapProductManageOwn,
		},
		domain.RoleCustomer: {CapDealJoin},
		domain.RoleUser:     {CapDealJoin},
	})
}

// NewPolicy builds a policy from explicit grants
func NewPolicy(grants map[domain.Role][]Capability) *Policy {
	p := &Policy{grants: make(map[domain.Role]map[Capability]bool, len(grants))}
	for role, caps := range grants {
		set := make(map[Capability]bool, len(caps))
		for _, c := range caps {
			set[c] = true
		}
		p.grants[role] = set
	}
	return p
}

// Can reports whether role holds capability
func (p *Policy) Can(role domain.Role, capability Capability) bool {
	return p.grants[role][capability]
}

// Authorize returns domain.ErrForbidden unless the actor holds capability
func (p *Policy) Authorize(actor Actor, capability Capability) error {
	if !p.Can(actor.Role, capability) {
		return domain.ErrForbidden
	}
	return nil
}

// CanManageDeal reports whether the actor may edit, cancel or delete the deal
func (p *Policy) CanManageDeal(actor Actor, deal *domain.Deal) bool {
	if p.Can(actor.Role, CapDealManageAny) {
		return true
	}
	return p.Can(actor.Role, CapDealManageOwn) && deal.CreatedBy == actor.ID
}

// CanManageProduct reports whether the actor may edit or delete the product
func (p *Policy) CanManageProduct(actor Actor, product *domain.Product) bool {
	if p.Can(actor.Role, CapCatalogManage) {
		return true
	}
	return p.Can(actor.Role, CapProductManageOwn) && product.CreatedBy == actor.ID
}
