// README: Providers and their staff roster.
package staff

import (
	"time"

	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

type Provider struct {
	ID   types.ID `json:"id"`
	Name string   `json:"name"`
	// Hours is nil when the provider never configured operating hours.
	Hours    *availability.Hours `json:"hours,omitempty"`
	IsOpen   bool                `json:"is_open"`
	TimeZone string              `json:"time_zone,omitempty"`
}

type Member struct {
	ID          types.ID   `json:"id"`
	ProviderID  types.ID   `json:"provider_id"`
	Role        types.Role `json:"role"`
	DisplayName string     `json:"display_name"`
	Active      bool       `json:"active"`
	DeviceToken *string    `json:"-"`
}

// CanServe reports whether m may be assigned to a service appointment.
func (m *Member) CanServe() bool {
	return m.Active && (m.Role == types.RoleServiceStaff || m.Role == types.RoleAdmin)
}

func (m *Member) CanDeliver() bool {
	return m.Active && m.Role == types.RoleDriver
}

// Location resolves the provider's time zone, falling back to def.
func (p *Provider) Location(def *time.Location) *time.Location {
	if p.TimeZone != "" {
		if loc, err := time.LoadLocation(p.TimeZone); err == nil {
			return loc
		}
	}
	if def == nil {
		return time.UTC
	}
	return def
}
