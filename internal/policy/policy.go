package policy

import (
	"sort"
	"strings"
)

// Role is the coarse access tier of a user.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "Sadmin"
)

// Valid reports whether the role is one of the known tiers.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// AtLeastAdmin reports whether the role carries admin privileges.
func (r Role) AtLeastAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// AllowAll is the stored sentinel meaning no transaction-type restriction.
const AllowAll = "all"

// RestrictableTypes are the entry types that can appear in a restriction
// list. Corrections are deliberately absent: they are always permitted.
var RestrictableTypes = []string{"Production", "Purchase", "Sales", "Breakage"}

var correctionTypes = map[string]struct{}{
	"Correction-Add":      {},
	"Correction-Subtract": {},
}

// Restriction is a per-user allow-list of transaction types.
type Restriction struct {
	all   bool
	types map[string]struct{}
}

// AllowAllRestriction returns the unrestricted value.
func AllowAllRestriction() Restriction {
	return Restriction{all: true}
}

// NewRestriction builds a restriction from an explicit list of types.
// An empty list means no restriction at all.
func NewRestriction(types []string) Restriction {
	cleaned := make(map[string]struct{})
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if strings.EqualFold(t, AllowAll) {
			return AllowAllRestriction()
		}
		cleaned[t] = struct{}{}
	}
	if len(cleaned) == 0 {
		return AllowAllRestriction()
	}
	return Restriction{types: cleaned}
}

// ParseRestriction decodes the stored representation: the sentinel "all"
// or a comma separated list of entry types.
func ParseRestriction(stored string) Restriction {
	stored = strings.TrimSpace(stored)
	if stored == "" || strings.EqualFold(stored, AllowAll) {
		return AllowAllRestriction()
	}
	return NewRestriction(strings.Split(stored, ","))
}

// Permits reports whether the given entry type may be recorded.
// Correction entries are always permitted regardless of the list.
func (r Restriction) Permits(entryType string) bool {
	if r.all {
		return true
	}
	if _, ok := correctionTypes[entryType]; ok {
		return true
	}
	_, ok := r.types[entryType]
	return ok
}

// AllowsAll reports whether the restriction is the unrestricted value.
func (r Restriction) AllowsAll() bool {
	return r.all
}

// Types returns the explicit allow-list in sorted order, or nil when
// unrestricted.
func (r Restriction) Types() []string {
	if r.all {
		return nil
	}
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// String renders the stored representation.
func (r Restriction) String() string {
	if r.all {
		return AllowAll
	}
	return strings.Join(r.Types(), ",")
}
