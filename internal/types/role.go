// README: Actor roles and the acting principal passed to every state transition.
package types

import "strings"

type Role string

const (
	RoleCustomer     Role = "customer"
	RoleProvider     Role = "provider"
	RoleAdmin        Role = "admin"
	RoleServiceStaff Role = "service_staff"
	RoleDriver       Role = "driver"
)

// ParseRole maps a token claim onto a Role. Unknown or empty claims are customers.
func ParseRole(v string) Role {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "provider", "shop", "shop_admin":
		return RoleProvider
	case "admin":
		return RoleAdmin
	case "service_staff", "staff", "stylist", "groomer":
		return RoleServiceStaff
	case "driver":
		return RoleDriver
	default:
		return RoleCustomer
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   ID
	Role Role
	// ProviderID is set for provider and staff actors.
	ProviderID ID
}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}
