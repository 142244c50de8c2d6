// README: Identifier type shared by every module.
package types

import "github.com/google/uuid"

type ID string

// NewID returns a random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// ValidID reports whether v looks like an identifier this system produced or
// accepts from upstream (uuid, or short alphanumeric ids from the identity provider).
func ValidID(v string) bool {
	if v == "" {
		return false
	}
	if _, err := uuid.Parse(v); err == nil {
		return true
	}
	if len(v) > 128 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func (id ID) Ptr() *ID {
	return &id
}
