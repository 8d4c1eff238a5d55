package models

// Role is the closed set of account kinds
type Role string

const (
	RolePsychologist Role = "psychologist"
	RoleFamily       Role = "family"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RolePsychologist, RoleFamily, RoleAdmin:
		return true
	}
	return false
}

// Capability names an action a role may perform
type Capability string

const (
	CapManagePatients      Capability = "manage_patients"
	CapManageFamilyAccess  Capability = "manage_family_access"
	CapViewFamilyPortal    Capability = "view_family_portal"
	CapManageSubscriptions Capability = "manage_subscriptions"
	CapDraftNotes          Capability = "draft_notes"
)

var roleCapabilities = map[Role][]Capability{
	RolePsychologist: {CapManagePatients, CapManageFamilyAccess, CapDraftNotes},
	// admins are practitioners too
	RoleAdmin:  {CapManagePatients, CapManageFamilyAccess, CapDraftNotes, CapManageSubscriptions},
	RoleFamily: {CapViewFamilyPortal},
}

// Can reports whether the role grants capability c
func (r Role) Can(c Capability) bool {
	for _, granted := range roleCapabilities[r] {
		if granted == c {
			return true
		}
	}
	return false
}

// IsPractitioner reports whether the role owns patient records
func (r Role) IsPractitioner() bool {
	return r == RolePsychologist || r == RoleAdmin
}

// Principal is the authenticated caller passed explicitly into service calls
type Principal struct {
	UserID string
	Email  string
	Name   string
	Role   Role
}
