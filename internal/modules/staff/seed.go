// README: Roster seeding from a JSON document (providers and their staff).
package staff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"petmarket/internal/apperr"
	"petmarket/internal/modules/availability"
	"petmarket/internal/types"
)

// RosterWriter is implemented by Store and MemoryStore.
type RosterWriter interface {
	SaveProvider(ctx context.Context, p *Provider) error
	SaveMember(ctx context.Context, m *Member) error
}

type seedDoc struct {
	Providers []struct {
		ID       types.ID            `json:"id"`
		Name     string              `json:"name"`
		Hours    *availability.Hours `json:"hours"`
		Closed   bool                `json:"closed"`
		TimeZone string              `json:"time_zone"`
		Staff    []struct {
			ID          types.ID `json:"id"`
			Role        string   `json:"role"`
			DisplayName string   `json:"display_name"`
			Inactive    bool     `json:"inactive"`
			DeviceToken string   `json:"device_token"`
		} `json:"staff"`
	} `json:"providers"`
}

// LoadRoster upserts every provider and staff member of the document read
// from r. It returns how many members were written.
func LoadRoster(ctx context.Context, w RosterWriter, r io.Reader) (int, error) {
	var doc seedDoc
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return 0, apperr.Validation("decode roster: %v", err)
	}
	n := 0
	for _, p := range doc.Providers {
		if !types.ValidID(string(p.ID)) {
			return n, apperr.Validation("invalid provider id %q", p.ID)
		}
		if p.Hours != nil && !p.Hours.Valid() {
			return n, apperr.Validation("provider %s has invalid hours %d-%d", p.ID, p.Hours.Open, p.Hours.Close)
		}
		if err := w.SaveProvider(ctx, &Provider{
			ID:       p.ID,
			Name:     p.Name,
			Hours:    p.Hours,
			IsOpen:   !p.Closed,
			TimeZone: p.TimeZone,
		}); err != nil {
			return n, fmt.Errorf("save provider %s: %w", p.ID, err)
		}
		for _, s := range p.Staff {
			if !types.ValidID(string(s.ID)) {
				return n, apperr.Validation("invalid staff id %q", s.ID)
			}
			m := &Member{
				ID:          s.ID,
				ProviderID:  p.ID,
				Role:        types.ParseRole(s.Role),
				DisplayName: s.DisplayName,
				Active:      !s.Inactive,
			}
			if s.DeviceToken != "" {
				token := s.DeviceToken
				m.DeviceToken = &token
			}
			if err := w.SaveMember(ctx, m); err != nil {
				return n, fmt.Errorf("save member %s: %w", s.ID, err)
			}
			n++
		}
	}
	return n, nil
}
