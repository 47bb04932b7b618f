package vault

import (
	"time"

	cr "github.com/tjdeveng/KeepTower-sub010/internal/crypto"
	"github.com/tjdeveng/KeepTower-sub010/internal/fec"
)

// ContainerVersion is the current integrated (V2) container version.
const ContainerVersion = 2

// Role is the access level attached to a key slot.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleStandardUser  Role = "standard"
)

// Container is the outer vault document. Slots stay in the clear so a user
// can be located and their KEK derived before anything is decrypted; Data is
// the AEAD-sealed inner payload.
type Container struct {
	Version int         `json:"version"`
	Slots   []KeySlot   `json:"slots"`
	FEC     *fec.Params `json:"fec,omitempty"`
	Data    []byte      `json:"data"`
}

// KeySlot holds one user's independently wrapped copy of the vault DEK.
type KeySlot struct {
	Username            string        `json:"username"`
	Role                Role          `json:"role"`
	KDF                 cr.KDFParams  `json:"kdf"`
	DEKWrap             []byte        `json:"dek_wrap"`
	HardwareKeyEnrolled bool          `json:"hardware_key,omitempty"`
	MustChangePassword  bool          `json:"must_change_password,omitempty"`
	PasswordHistory     []string      `json:"password_history,omitempty"`
}

// FindSlot locates a key slot by exact (case-sensitive) username.
func (c *Container) FindSlot(username string) (*KeySlot, bool) {
	for i := range c.Slots {
		if c.Slots[i].Username == username {
			return &c.Slots[i], true
		}
	}
	return nil, false
}

// AdminCount reports how many administrator slots exist.
func (c *Container) AdminCount() int {
	n := 0
	for i := range c.Slots {
		if c.Slots[i].Role == RoleAdministrator {
			n++
		}
	}
	return n
}

// Membership ties an account to a group with a per-group display position.
type Membership struct {
	GroupID      string `json:"group_id"`
	DisplayOrder int    `json:"display_order"`
}

// AccountRecord is one stored credential.
type AccountRecord struct {
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`

	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Email    string `json:"email,omitempty"`
	Website  string `json:"website,omitempty"`
	Notes    string `json:"notes,omitempty"`

	Tags        []string     `json:"tags,omitempty"`
	Memberships []Membership `json:"memberships,omitempty"`

	DisplayOrder    int  `json:"display_order"`
	AdminOnlyView   bool `json:"admin_only_view,omitempty"`
	AdminOnlyDelete bool `json:"admin_only_delete,omitempty"`
}

// VisibleTo reports whether a session with role may read this record.
func (a AccountRecord) VisibleTo(role Role) bool {
	return !a.AdminOnlyView || role == RoleAdministrator
}

// DeletableBy reports whether a session with role may delete this record. A
// record the role cannot see is never deletable by it.
func (a AccountRecord) DeletableBy(role Role) bool {
	if !a.VisibleTo(role) {
		return false
	}
	return !a.AdminOnlyDelete || role == RoleAdministrator
}

// AccountGroup is an organizational bucket for accounts. System groups are
// engine-owned and cannot be renamed, reordered, or deleted.
type AccountGroup struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	System       bool   `json:"system,omitempty"`
	DisplayOrder int    `json:"display_order"`
	Expanded     bool   `json:"expanded,omitempty"`
	Icon         string `json:"icon,omitempty"`
}

// payloadDoc is the inner, encrypted part of the container.
type payloadDoc struct {
	Policy   SecurityPolicy  `json:"policy"`
	Accounts []AccountRecord `json:"accounts"`
	Groups   []AccountGroup  `json:"groups"`
}
