package vault

import (
	"errors"
	"testing"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

type recordingTracker struct{ marks int }

func (t *recordingTracker) MarkDirty() { t.marks++ }

func namesOf(recs []AccountRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	return out
}

func seedAccounts(t *testing.T, names ...string) (*AccountStore, *recordingTracker) {
	t.Helper()
	tr := &recordingTracker{}
	s := NewAccountStore(tr, nil)
	for _, n := range names {
		s.Add(AccountRecord{Name: n, Username: n + "@example.com"})
	}
	return s, tr
}

func TestAddAssignsIdentity(t *testing.T) {
	s, tr := seedAccounts(t)
	id := s.Add(AccountRecord{Name: "mail", Tags: []string{"work", "work", " ", "mail"}})
	if id == "" {
		t.Fatal("expected generated id")
	}
	a, err := s.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Created.IsZero() || !a.Created.Equal(a.Modified) {
		t.Fatalf("timestamps not initialized: created=%v modified=%v", a.Created, a.Modified)
	}
	if len(a.Tags) != 2 || a.Tags[0] != "work" || a.Tags[1] != "mail" {
		t.Fatalf("tags not deduplicated: %v", a.Tags)
	}
	if tr.marks == 0 {
		t.Fatal("Add did not mark the vault dirty")
	}
}

func TestGetOutOfRange(t *testing.T) {
	s, _ := seedAccounts(t, "a")
	for _, idx := range []int{-1, 1, 99} {
		if _, err := s.Get(idx); !errors.Is(err, kterrors.ErrValidationFailed) {
			t.Fatalf("Get(%d): got %v, want ErrValidationFailed", idx, err)
		}
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	s, _ := seedAccounts(t, "old")
	before, _ := s.Get(0)
	err := s.Update(0, AccountRecord{ID: "forged", Name: "new", Password: "s3cret"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	after, _ := s.Get(0)
	if after.ID != before.ID {
		t.Fatalf("id changed on update: %q -> %q", before.ID, after.ID)
	}
	if !after.Created.Equal(before.Created) {
		t.Fatal("creation time changed on update")
	}
	if after.Name != "new" || after.Password != "s3cret" {
		t.Fatalf("fields not updated: %+v", after)
	}
}

func TestDeleteShiftsIndices(t *testing.T) {
	s, _ := seedAccounts(t, "a", "b", "c")
	if err := s.Delete(1); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	got, _ := s.Get(1)
	if got.Name != "c" {
		t.Fatalf("index 1 after delete = %q, want c", got.Name)
	}
	if err := s.Delete(2); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("Delete past end: got %v, want ErrValidationFailed", err)
	}
}

func TestReorderStampsLazyOrders(t *testing.T) {
	s, _ := seedAccounts(t, "a", "b", "c", "d")
	// Fresh records all carry order zero until the first reorder.
	for _, a := range s.Snapshot() {
		if a.DisplayOrder != 0 {
			t.Fatalf("unexpected pre-stamped order on %q: %d", a.Name, a.DisplayOrder)
		}
	}
	if err := s.Reorder(0, 2); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	got := namesOf(s.Snapshot())
	want := []string{"b", "c", "a", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order after move = %v, want %v", got, want)
		}
	}
	for i, a := range s.Snapshot() {
		if a.DisplayOrder != i {
			t.Fatalf("orders not dense after reorder: %q has %d at position %d", a.Name, a.DisplayOrder, i)
		}
	}
}

func TestReorderMoveUp(t *testing.T) {
	s, _ := seedAccounts(t, "a", "b", "c", "d")
	if err := s.Reorder(3, 1); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	got := namesOf(s.Snapshot())
	want := []string{"a", "d", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order after move = %v, want %v", got, want)
		}
	}
}

func TestReorderIsPermutation(t *testing.T) {
	s, _ := seedAccounts(t, "a", "b", "c", "d", "e")
	ids := make(map[string]bool, s.Len())
	for _, a := range s.Snapshot() {
		ids[a.ID] = true
	}
	moves := [][2]int{{0, 4}, {2, 0}, {3, 3}, {4, 1}, {1, 2}}
	for _, m := range moves {
		if err := s.Reorder(m[0], m[1]); err != nil {
			t.Fatalf("Reorder(%d, %d): %v", m[0], m[1], err)
		}
		snap := s.Snapshot()
		if len(snap) != len(ids) {
			t.Fatalf("record count changed: %d != %d", len(snap), len(ids))
		}
		for i, a := range snap {
			if !ids[a.ID] {
				t.Fatalf("unknown id %q after reorder", a.ID)
			}
			if a.DisplayOrder != i {
				t.Fatalf("orders not dense: position %d carries %d", i, a.DisplayOrder)
			}
		}
	}
}

func TestReorderBounds(t *testing.T) {
	s, _ := seedAccounts(t, "a", "b")
	for _, m := range [][2]int{{-1, 0}, {0, 2}, {2, 0}} {
		if err := s.Reorder(m[0], m[1]); !errors.Is(err, kterrors.ErrValidationFailed) {
			t.Fatalf("Reorder(%d, %d): got %v, want ErrValidationFailed", m[0], m[1], err)
		}
	}
}

func TestMembershipIdempotent(t *testing.T) {
	s, _ := seedAccounts(t)
	id := s.Add(AccountRecord{Name: "mail"})
	if err := s.AddToGroup(id, "g1"); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	if err := s.AddToGroup(id, "g1"); err != nil {
		t.Fatalf("repeat AddToGroup: %v", err)
	}
	a, _ := s.Get(0)
	if len(a.Memberships) != 1 {
		t.Fatalf("memberships = %d, want 1", len(a.Memberships))
	}
	if err := s.RemoveFromGroup(id, "g1"); err != nil {
		t.Fatalf("RemoveFromGroup: %v", err)
	}
	if err := s.RemoveFromGroup(id, "g1"); err != nil {
		t.Fatalf("repeat RemoveFromGroup: %v", err)
	}
	a, _ = s.Get(0)
	if len(a.Memberships) != 0 {
		t.Fatalf("memberships not removed: %v", a.Memberships)
	}
}

func TestMembershipOrdersPerGroup(t *testing.T) {
	s, _ := seedAccounts(t)
	first := s.Add(AccountRecord{Name: "one"})
	second := s.Add(AccountRecord{Name: "two"})
	if err := s.AddToGroup(first, "g1"); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	if err := s.AddToGroup(second, "g1"); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	b, _ := s.Get(1)
	if b.Memberships[0].DisplayOrder != 1 {
		t.Fatalf("second member order = %d, want 1", b.Memberships[0].DisplayOrder)
	}
}

func TestSearchMatchesFields(t *testing.T) {
	s, _ := seedAccounts(t)
	s.Add(AccountRecord{Name: "GitHub", Username: "octocat", Website: "https://github.com"})
	s.Add(AccountRecord{Name: "Bank", Tags: []string{"finance"}})
	s.Add(AccountRecord{Name: "Forum", Username: "octopus"})

	if got := s.Search("octo"); len(got) != 2 {
		t.Fatalf("Search(octo) = %d hits, want 2", len(got))
	}
	if got := s.Search("FINANCE"); len(got) != 1 || got[0].Name != "Bank" {
		t.Fatalf("Search(FINANCE) = %v", namesOf(got))
	}
	if got := s.Search("  "); got != nil {
		t.Fatalf("blank query returned %d hits", len(got))
	}
}

func TestAdminOnlyFlags(t *testing.T) {
	plain := AccountRecord{Name: "plain"}
	hidden := AccountRecord{Name: "hidden", AdminOnlyView: true}
	guarded := AccountRecord{Name: "guarded", AdminOnlyDelete: true}

	if !plain.VisibleTo(RoleStandardUser) || !plain.VisibleTo(RoleAdministrator) {
		t.Fatal("unrestricted record not visible to everyone")
	}
	if hidden.VisibleTo(RoleStandardUser) {
		t.Fatal("admin-only-view record visible to standard user")
	}
	if !hidden.VisibleTo(RoleAdministrator) {
		t.Fatal("admin-only-view record hidden from administrator")
	}
	if guarded.DeletableBy(RoleStandardUser) {
		t.Fatal("admin-only-delete record deletable by standard user")
	}
	if !guarded.DeletableBy(RoleAdministrator) {
		t.Fatal("admin-only-delete record not deletable by administrator")
	}
	// A record the role cannot see is never deletable by it.
	if hidden.DeletableBy(RoleStandardUser) {
		t.Fatal("invisible record reported deletable")
	}
}

func TestSnapshotForFiltersHiddenRecords(t *testing.T) {
	s, _ := seedAccounts(t, "a", "b")
	s.Add(AccountRecord{Name: "secret", AdminOnlyView: true})

	admin := s.SnapshotFor(RoleAdministrator)
	if len(admin) != 3 {
		t.Fatalf("administrator sees %d records, want 3", len(admin))
	}
	std := s.SnapshotFor(RoleStandardUser)
	if len(std) != 2 {
		t.Fatalf("standard user sees %d records, want 2: %v", len(std), namesOf(std))
	}
	for _, r := range std {
		if r.AdminOnlyView {
			t.Fatalf("hidden record %q leaked into standard view", r.Name)
		}
	}

	if got := s.SearchFor("secret", RoleStandardUser); len(got) != 0 {
		t.Fatalf("search leaked %d hidden records", len(got))
	}
	if got := s.SearchFor("secret", RoleAdministrator); len(got) != 1 {
		t.Fatalf("administrator search found %d records, want 1", len(got))
	}
}
