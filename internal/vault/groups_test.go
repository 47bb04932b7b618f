package vault

import (
	"errors"
	"strings"
	"testing"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

func newStores(t *testing.T) (*AccountStore, *GroupStore) {
	t.Helper()
	tr := &recordingTracker{}
	accounts := NewAccountStore(tr, nil)
	groups := NewGroupStore(tr, accounts, nil)
	return accounts, groups
}

func TestFavoritesLazySingleton(t *testing.T) {
	_, g := newStores(t)
	if g.Len() != 0 {
		t.Fatalf("fresh store has %d groups", g.Len())
	}
	first := g.FavoritesID()
	second := g.FavoritesID()
	if first == "" || first != second {
		t.Fatalf("favorites id unstable: %q vs %q", first, second)
	}
	if g.Len() != 1 {
		t.Fatalf("favorites created %d times", g.Len())
	}
	fav, err := g.Get(first)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fav.System || fav.Name != FavoritesName || fav.DisplayOrder != 0 {
		t.Fatalf("favorites shape wrong: %+v", fav)
	}
}

func TestCreateReservesFavoritesName(t *testing.T) {
	_, g := newStores(t)
	if _, err := g.Create(FavoritesName); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("Create(%q): got %v, want ErrValidationFailed", FavoritesName, err)
	}
	if g.Len() != 0 {
		t.Fatalf("reserved name created a group: %d groups", g.Len())
	}
}

func TestFavoritesAdoptsLoadedUserGroup(t *testing.T) {
	// A payload from an older vault can carry Favorites as a plain user
	// group. FavoritesID must claim it instead of adding a second one.
	tr := &recordingTracker{}
	accounts := NewAccountStore(tr, nil)
	loaded := []AccountGroup{{ID: "g-fav", Name: FavoritesName, DisplayOrder: 3, Expanded: true}}
	g := NewGroupStore(tr, accounts, loaded)

	if got := g.FavoritesID(); got != "g-fav" {
		t.Fatalf("FavoritesID = %q, want adopted id g-fav", got)
	}
	if g.Len() != 1 {
		t.Fatalf("adoption created a duplicate: %d groups", g.Len())
	}
	fav, err := g.Get("g-fav")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !fav.System || fav.DisplayOrder != 0 {
		t.Fatalf("adopted group not promoted: %+v", fav)
	}
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	_, g := newStores(t)
	if _, err := g.Create("Work"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := g.Create("Work"); !errors.Is(err, kterrors.ErrDuplicateName) {
		t.Fatalf("duplicate create: got %v, want ErrDuplicateName", err)
	}
}

func TestGroupNameValidation(t *testing.T) {
	_, g := newStores(t)
	bad := []string{
		"",
		strings.Repeat("x", maxGroupNameLen+1),
		"tab\there",
		"a/b",
		`a\b`,
	}
	for _, name := range bad {
		if _, err := g.Create(name); !errors.Is(err, kterrors.ErrValidationFailed) {
			t.Fatalf("Create(%q): got %v, want ErrValidationFailed", name, err)
		}
	}
	if _, err := g.Create(strings.Repeat("x", maxGroupNameLen)); err != nil {
		t.Fatalf("Create at length limit: %v", err)
	}
}

func TestSystemGroupProtections(t *testing.T) {
	_, g := newStores(t)
	fav := g.FavoritesID()
	if err := g.Delete(fav); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("Delete(favorites): got %v, want ErrValidationFailed", err)
	}
	if err := g.Rename(fav, "Pinned"); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("Rename(favorites): got %v, want ErrValidationFailed", err)
	}
	if err := g.Reorder(fav, 0); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("Reorder(favorites): got %v, want ErrValidationFailed", err)
	}
}

func TestRenameRefusesCollision(t *testing.T) {
	_, g := newStores(t)
	id, _ := g.Create("Work")
	if _, err := g.Create("Home"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := g.Rename(id, "Home"); !errors.Is(err, kterrors.ErrDuplicateName) {
		t.Fatalf("Rename to existing name: got %v, want ErrDuplicateName", err)
	}
	// Renaming to its own current name is not a collision.
	if err := g.Rename(id, "Work"); err != nil {
		t.Fatalf("Rename to same name: %v", err)
	}
}

func TestDeleteStripsMemberships(t *testing.T) {
	accounts, g := newStores(t)
	id, _ := g.Create("Work")
	keep, _ := g.Create("Home")
	acct := accounts.Add(AccountRecord{Name: "mail"})
	if err := accounts.AddToGroup(acct, id); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	if err := accounts.AddToGroup(acct, keep); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	if err := g.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	a, _ := accounts.Get(0)
	if len(a.Memberships) != 1 || a.Memberships[0].GroupID != keep {
		t.Fatalf("stale memberships after group delete: %v", a.Memberships)
	}
}

func TestSnapshotSystemFirst(t *testing.T) {
	_, g := newStores(t)
	g.Create("Work")
	g.Create("Home")
	g.FavoritesID()
	snap := g.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot has %d groups, want 3", len(snap))
	}
	if !snap[0].System {
		t.Fatalf("system group not first: %+v", snap[0])
	}
	if snap[1].Name != "Work" || snap[2].Name != "Home" {
		t.Fatalf("user group order: %q, %q", snap[1].Name, snap[2].Name)
	}
}

func TestReorderUserGroups(t *testing.T) {
	_, g := newStores(t)
	g.FavoritesID()
	a, _ := g.Create("a")
	g.Create("b")
	g.Create("c")
	if err := g.Reorder(a, 2); err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	snap := g.Snapshot()
	want := []string{FavoritesName, "b", "c", "a"}
	for i, grp := range snap {
		if grp.Name != want[i] {
			t.Fatalf("position %d = %q, want %q", i, grp.Name, want[i])
		}
	}
	fav, _ := g.Get(g.FavoritesID())
	if fav.DisplayOrder != 0 {
		t.Fatalf("system group moved to order %d", fav.DisplayOrder)
	}
	if err := g.Reorder(a, 3); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("out-of-range position: got %v, want ErrValidationFailed", err)
	}
}

func TestSetExpanded(t *testing.T) {
	_, g := newStores(t)
	id, _ := g.Create("Work")
	if err := g.SetExpanded(id, false); err != nil {
		t.Fatalf("SetExpanded: %v", err)
	}
	grp, _ := g.Get(id)
	if grp.Expanded {
		t.Fatal("expanded hint not stored")
	}
}
