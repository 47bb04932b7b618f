package vault

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

// FavoritesName is the well-known system group. It always exists, sits at
// display order 0, and cannot be renamed, reordered, or deleted.
const FavoritesName = "Favorites"

const maxGroupNameLen = 100

// GroupStore owns the groups of an open vault and keeps account memberships
// consistent with them.
type GroupStore struct {
	tracker  MutationTracker
	accounts *AccountStore
	groups   []AccountGroup
}

func NewGroupStore(tracker MutationTracker, accounts *AccountStore, initial []AccountGroup) *GroupStore {
	return &GroupStore{tracker: tracker, accounts: accounts, groups: initial}
}

func (g *GroupStore) Len() int { return len(g.groups) }

// Create adds a user group at the end of the display order.
func (g *GroupStore) Create(name string) (string, error) {
	if err := validateGroupName(name); err != nil {
		return "", err
	}
	if name == FavoritesName {
		return "", fmt.Errorf("group name %q is reserved: %w", name, kterrors.ErrValidationFailed)
	}
	if _, ok := g.byName(name); ok {
		return "", fmt.Errorf("group %q: %w", name, kterrors.ErrDuplicateName)
	}
	grp := AccountGroup{
		ID:           uuid.NewString(),
		Name:         name,
		DisplayOrder: g.maxOrder() + 1,
		Expanded:     true,
	}
	g.groups = append(g.groups, grp)
	g.tracker.MarkDirty()
	return grp.ID, nil
}

// Delete removes a group and strips its id from every account's membership
// list. System groups cannot be deleted.
func (g *GroupStore) Delete(id string) error {
	idx, err := g.indexOf(id)
	if err != nil {
		return err
	}
	if g.groups[idx].System {
		return fmt.Errorf("group %q is a system group: %w", g.groups[idx].Name, kterrors.ErrValidationFailed)
	}
	g.groups = append(g.groups[:idx], g.groups[idx+1:]...)
	g.accounts.stripGroup(id)
	g.tracker.MarkDirty()
	return nil
}

// Rename changes a group's name. System groups and duplicate target names
// are refused.
func (g *GroupStore) Rename(id, newName string) error {
	idx, err := g.indexOf(id)
	if err != nil {
		return err
	}
	if g.groups[idx].System {
		return fmt.Errorf("group %q is a system group: %w", g.groups[idx].Name, kterrors.ErrValidationFailed)
	}
	if err := validateGroupName(newName); err != nil {
		return err
	}
	if other, ok := g.byName(newName); ok && other.ID != id {
		return fmt.Errorf("group %q: %w", newName, kterrors.ErrDuplicateName)
	}
	g.groups[idx].Name = newName
	g.tracker.MarkDirty()
	return nil
}

// Reorder moves a user group to a new position among the user groups.
// Position 0 belongs to the system group and is not addressable.
func (g *GroupStore) Reorder(id string, newPos int) error {
	idx, err := g.indexOf(id)
	if err != nil {
		return err
	}
	if g.groups[idx].System {
		return fmt.Errorf("group %q is a system group: %w", g.groups[idx].Name, kterrors.ErrValidationFailed)
	}

	user := g.userGroupIDs()
	cur := -1
	for i, gid := range user {
		if gid == id {
			cur = i
			break
		}
	}
	if newPos < 0 || newPos >= len(user) {
		return fmt.Errorf("group position %d of %d: %w", newPos, len(user), kterrors.ErrValidationFailed)
	}
	moved := append([]string(nil), user[:cur]...)
	moved = append(moved, user[cur+1:]...)
	moved = append(moved[:newPos], append([]string{id}, moved[newPos:]...)...)

	// System groups keep order 0; user groups are stamped densely after them.
	next := 1
	for _, gid := range moved {
		i, _ := g.indexOf(gid)
		g.groups[i].DisplayOrder = next
		next++
	}
	g.tracker.MarkDirty()
	return nil
}

// SetExpanded stores the UI expansion hint.
func (g *GroupStore) SetExpanded(id string, expanded bool) error {
	idx, err := g.indexOf(id)
	if err != nil {
		return err
	}
	if g.groups[idx].Expanded != expanded {
		g.groups[idx].Expanded = expanded
		g.tracker.MarkDirty()
	}
	return nil
}

// FavoritesID returns the id of the well-known system group, creating it on
// first access so exactly one exists for the lifetime of the vault.
func (g *GroupStore) FavoritesID() string {
	for i := range g.groups {
		if g.groups[i].Name != FavoritesName {
			continue
		}
		// A vault written before the name was reserved may carry Favorites
		// as a plain user group. Adopt it rather than minting a duplicate.
		if !g.groups[i].System {
			g.groups[i].System = true
			g.groups[i].DisplayOrder = 0
			g.tracker.MarkDirty()
		}
		return g.groups[i].ID
	}
	grp := AccountGroup{
		ID:           uuid.NewString(),
		Name:         FavoritesName,
		System:       true,
		DisplayOrder: 0,
		Expanded:     true,
	}
	g.groups = append(g.groups, grp)
	g.tracker.MarkDirty()
	return grp.ID
}

// Get returns a group by id.
func (g *GroupStore) Get(id string) (AccountGroup, error) {
	idx, err := g.indexOf(id)
	if err != nil {
		return AccountGroup{}, err
	}
	return g.groups[idx], nil
}

// Snapshot returns all groups in display order, system groups first.
func (g *GroupStore) Snapshot() []AccountGroup {
	out := append([]AccountGroup(nil), g.groups...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].System != out[j].System {
			return out[i].System
		}
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

func (g *GroupStore) indexOf(id string) (int, error) {
	for i := range g.groups {
		if g.groups[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("group %s: %w", id, kterrors.ErrValidationFailed)
}

func (g *GroupStore) byName(name string) (AccountGroup, bool) {
	for i := range g.groups {
		if g.groups[i].Name == name {
			return g.groups[i], true
		}
	}
	return AccountGroup{}, false
}

func (g *GroupStore) userGroupIDs() []string {
	ordered := g.Snapshot()
	var out []string
	for _, grp := range ordered {
		if !grp.System {
			out = append(out, grp.ID)
		}
	}
	return out
}

func (g *GroupStore) maxOrder() int {
	max := 0
	for i := range g.groups {
		if g.groups[i].DisplayOrder > max {
			max = g.groups[i].DisplayOrder
		}
	}
	return max
}

func (g *GroupStore) records() []AccountGroup { return g.groups }

func validateGroupName(name string) error {
	if name == "" {
		return fmt.Errorf("empty group name: %w", kterrors.ErrValidationFailed)
	}
	if len(name) > maxGroupNameLen {
		return fmt.Errorf("group name exceeds %d characters: %w", maxGroupNameLen, kterrors.ErrValidationFailed)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("group name contains control characters: %w", kterrors.ErrValidationFailed)
		}
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("group name contains path separators: %w", kterrors.ErrValidationFailed)
	}
	return nil
}
