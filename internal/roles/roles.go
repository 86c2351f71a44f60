// Package roles models business roles as a closed set with an explicit
// capability table, independent of any permission-group mechanism.
package roles

import (
	"context"
	"sort"
	"strings"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
)

type Role string

const (
	Client  Role = "client"
	Staff   Role = "staff_admin"
	Manager Role = "manager_admin"
)

// Default is the role of a user without an explicit assignment.
const Default = Client

type Capability string

const (
	PortalAccess  Capability = "portal_access"
	FulfilOrders  Capability = "fulfil_orders"
	ManageCatalog Capability = "manage_catalog"
	ManageUsers   Capability = "manage_users"
)

var capabilities = map[Role]map[Capability]bool{
	Client:  {},
	Staff:   {PortalAccess: true, FulfilOrders: true},
	Manager: {PortalAccess: true, FulfilOrders: true, ManageCatalog: true, ManageUsers: true},
}

func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := capabilities[r]; !ok {
		return "", apperr.Invalid("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Can(c Capability) bool { return capabilities[r][c] }

// WithCapability lists the roles granting c, in stable order.
func WithCapability(c Capability) []Role {
	var out []Role
	for r, caps := range capabilities {
		if caps[c] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Gate answers the one question the order workflow asks about identities.
type Gate interface {
	HasStaffCapability(ctx context.Context, userID string) (bool, error)
}

// Directory resolves and records user roles.
type Directory interface {
	RoleOf(ctx context.Context, userID string) (Role, error)
	SetRole(ctx context.Context, userID string, r Role) error
	// UsersWith lists user ids whose role grants c.
	UsersWith(ctx context.Context, c Capability) ([]string, error)
}

// DirectoryGate derives staff capability from a Directory.
type DirectoryGate struct {
	Dir Directory
}

func (g DirectoryGate) HasStaffCapability(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	r, err := g.Dir.RoleOf(ctx, userID)
	if err != nil {
		return false, err
	}
	return r.Can(FulfilOrders), nil
}
