package vault

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

// AccountStore owns the account records of an open vault. Positional indices
// are only valid until the next mutation; anything held across calls should
// use the stable account ID.
type AccountStore struct {
	tracker  MutationTracker
	accounts []AccountRecord
}

func NewAccountStore(tracker MutationTracker, initial []AccountRecord) *AccountStore {
	return &AccountStore{tracker: tracker, accounts: initial}
}

func (s *AccountStore) Len() int { return len(s.accounts) }

// Add appends a record, assigning id and timestamps. Returns the new id.
func (s *AccountStore) Add(a AccountRecord) string {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.Created = now
	a.Modified = now
	a.Tags = dedupTags(a.Tags)
	if s.materialized() {
		a.DisplayOrder = s.maxOrder() + 1
	} else {
		a.DisplayOrder = 0
	}
	s.accounts = append(s.accounts, a)
	s.tracker.MarkDirty()
	return a.ID
}

func (s *AccountStore) Get(index int) (AccountRecord, error) {
	if index < 0 || index >= len(s.accounts) {
		return AccountRecord{}, fmt.Errorf("account index %d: %w", index, kterrors.ErrValidationFailed)
	}
	return cloneAccount(s.accounts[index]), nil
}

// Update replaces the mutable fields of the record at index. Identity and
// creation time are preserved; the modified timestamp is bumped.
func (s *AccountStore) Update(index int, upd AccountRecord) error {
	if index < 0 || index >= len(s.accounts) {
		return fmt.Errorf("account index %d: %w", index, kterrors.ErrValidationFailed)
	}
	cur := &s.accounts[index]
	upd.ID = cur.ID
	upd.Created = cur.Created
	upd.Modified = time.Now().UTC()
	upd.DisplayOrder = cur.DisplayOrder
	upd.Tags = dedupTags(upd.Tags)
	*cur = upd
	s.tracker.MarkDirty()
	return nil
}

// Delete removes the record at index. Subsequent indices shift down; there
// are no tombstones.
func (s *AccountStore) Delete(index int) error {
	if index < 0 || index >= len(s.accounts) {
		return fmt.Errorf("account index %d: %w", index, kterrors.ErrValidationFailed)
	}
	s.accounts = append(s.accounts[:index], s.accounts[index+1:]...)
	s.tracker.MarkDirty()
	return nil
}

// Reorder moves the account at oldIndex to newIndex in display order. Orders
// are lazily stamped 0..N-1 on first use, every account strictly between the
// two positions shifts by one, and the whole set is re-sorted and re-stamped
// to a dense sequence. Prior gaps or ties are healed as a side effect.
func (s *AccountStore) Reorder(oldIndex, newIndex int) error {
	n := len(s.accounts)
	if oldIndex < 0 || oldIndex >= n || newIndex < 0 || newIndex >= n {
		return fmt.Errorf("reorder %d -> %d of %d: %w", oldIndex, newIndex, n, kterrors.ErrValidationFailed)
	}
	if !s.materialized() {
		for i := range s.accounts {
			s.accounts[i].DisplayOrder = i
		}
	}
	oldOrder := s.accounts[oldIndex].DisplayOrder
	newOrder := s.accounts[newIndex].DisplayOrder
	switch {
	case newOrder > oldOrder:
		for i := range s.accounts {
			if o := s.accounts[i].DisplayOrder; o > oldOrder && o <= newOrder {
				s.accounts[i].DisplayOrder = o - 1
			}
		}
		s.accounts[oldIndex].DisplayOrder = newOrder
	case newOrder < oldOrder:
		for i := range s.accounts {
			if o := s.accounts[i].DisplayOrder; o >= newOrder && o < oldOrder {
				s.accounts[i].DisplayOrder = o + 1
			}
		}
		s.accounts[oldIndex].DisplayOrder = newOrder
	}
	sort.SliceStable(s.accounts, func(i, j int) bool {
		return s.accounts[i].DisplayOrder < s.accounts[j].DisplayOrder
	})
	for i := range s.accounts {
		s.accounts[i].DisplayOrder = i
	}
	s.tracker.MarkDirty()
	return nil
}

// AddToGroup joins the account to a group. Joining a group the account is
// already in reports success without duplicating the membership.
func (s *AccountStore) AddToGroup(accountID, groupID string) error {
	a, err := s.byID(accountID)
	if err != nil {
		return err
	}
	for _, m := range a.Memberships {
		if m.GroupID == groupID {
			return nil
		}
	}
	order := 0
	for i := range s.accounts {
		for _, m := range s.accounts[i].Memberships {
			if m.GroupID == groupID && m.DisplayOrder >= order {
				order = m.DisplayOrder + 1
			}
		}
	}
	a.Memberships = append(a.Memberships, Membership{GroupID: groupID, DisplayOrder: order})
	a.Modified = time.Now().UTC()
	s.tracker.MarkDirty()
	return nil
}

// RemoveFromGroup leaves a group. Removing a membership that does not exist
// reports success.
func (s *AccountStore) RemoveFromGroup(accountID, groupID string) error {
	a, err := s.byID(accountID)
	if err != nil {
		return err
	}
	for i, m := range a.Memberships {
		if m.GroupID == groupID {
			a.Memberships = append(a.Memberships[:i], a.Memberships[i+1:]...)
			a.Modified = time.Now().UTC()
			s.tracker.MarkDirty()
			return nil
		}
	}
	return nil
}

// stripGroup removes every membership referencing groupID. Called by the
// group store on group deletion so no dangling references survive.
func (s *AccountStore) stripGroup(groupID string) {
	changed := false
	for i := range s.accounts {
		ms := s.accounts[i].Memberships[:0]
		for _, m := range s.accounts[i].Memberships {
			if m.GroupID != groupID {
				ms = append(ms, m)
			} else {
				changed = true
			}
		}
		s.accounts[i].Memberships = ms
	}
	if changed {
		s.tracker.MarkDirty()
	}
}

// Snapshot returns a display-ordered copy of all records.
func (s *AccountStore) Snapshot() []AccountRecord {
	out := make([]AccountRecord, 0, len(s.accounts))
	for i := range s.accounts {
		out = append(out, cloneAccount(s.accounts[i]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DisplayOrder < out[j].DisplayOrder
	})
	return out
}

// SnapshotFor is Snapshot restricted to the records role may read.
func (s *AccountStore) SnapshotFor(role Role) []AccountRecord {
	snap := s.Snapshot()
	out := snap[:0]
	for _, a := range snap {
		if a.VisibleTo(role) {
			out = append(out, a)
		}
	}
	return out
}

// SearchFor is Search restricted to the records role may read.
func (s *AccountStore) SearchFor(q string, role Role) []AccountRecord {
	var out []AccountRecord
	for _, a := range s.Search(q) {
		if a.VisibleTo(role) {
			out = append(out, a)
		}
	}
	return out
}

// Search matches q case-insensitively against name, username, website and
// tags, in display order.
func (s *AccountStore) Search(q string) []AccountRecord {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}
	var out []AccountRecord
	for _, a := range s.Snapshot() {
		if strings.Contains(strings.ToLower(a.Name), q) ||
			strings.Contains(strings.ToLower(a.Username), q) ||
			strings.Contains(strings.ToLower(a.Website), q) ||
			tagsMatch(a.Tags, q) {
			out = append(out, a)
		}
	}
	return out
}

func (s *AccountStore) byID(id string) (*AccountRecord, error) {
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			return &s.accounts[i], nil
		}
	}
	return nil, fmt.Errorf("account %s: %w", id, kterrors.ErrValidationFailed)
}

// IndexOf resolves an id to its current position, or -1.
func (s *AccountStore) IndexOf(id string) int {
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *AccountStore) records() []AccountRecord { return s.accounts }

// materialized reports whether any account carries an explicit display order.
// Freshly imported sets where every order is zero are stamped on first
// reorder.
func (s *AccountStore) materialized() bool {
	for i := range s.accounts {
		if s.accounts[i].DisplayOrder != 0 {
			return true
		}
	}
	return false
}

func (s *AccountStore) maxOrder() int {
	max := 0
	for i := range s.accounts {
		if s.accounts[i].DisplayOrder > max {
			max = s.accounts[i].DisplayOrder
		}
	}
	return max
}

func cloneAccount(a AccountRecord) AccountRecord {
	a.Tags = append([]string(nil), a.Tags...)
	a.Memberships = append([]Membership(nil), a.Memberships...)
	return a
}

func dedupTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tagsMatch(tags []string, q string) bool {
	for _, t := range tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return false
}
