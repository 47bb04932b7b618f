package vault

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/tjdeveng/KeepTower-sub010/internal/fec"
	"github.com/tjdeveng/KeepTower-sub010/internal/vaultfile"
	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

func createVault(t *testing.T, fecParams *fec.Params) (*Vault, []byte) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.ktv")
	v, err := Create(path, DefaultPolicy(), fecParams)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	dek := append([]byte(nil), v.DEK()...)
	return v, dek
}

func reopen(t *testing.T, path string, dek []byte) *Vault {
	t.Helper()
	c, hdr, err := LoadContainer(path, false)
	if err != nil {
		t.Fatalf("LoadContainer: %v", err)
	}
	v, err := Unseal(path, c, hdr, append([]byte(nil), dek...))
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	return v
}

func TestSaveAndReopen(t *testing.T) {
	v, dek := createVault(t, nil)
	fav := v.Groups().FavoritesID()
	id := v.Accounts().Add(AccountRecord{Name: "mail", Username: "alice", Password: "hunter22"})
	if err := v.Accounts().AddToGroup(id, fav); err != nil {
		t.Fatalf("AddToGroup: %v", err)
	}
	v.PutSlot(KeySlot{Username: "alice", Role: RoleAdministrator})
	if err := v.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v.Modified() {
		t.Fatal("vault still dirty after save")
	}
	v.Close()

	re := reopen(t, v.Path(), dek)
	defer re.Close()
	if re.Accounts().Len() != 1 {
		t.Fatalf("accounts after reopen = %d, want 1", re.Accounts().Len())
	}
	a, _ := re.Accounts().Get(0)
	if a.Name != "mail" || a.Password != "hunter22" {
		t.Fatalf("record did not round trip: %+v", a)
	}
	if len(a.Memberships) != 1 || a.Memberships[0].GroupID != fav {
		t.Fatalf("membership did not round trip: %v", a.Memberships)
	}
	if re.Groups().FavoritesID() != fav {
		t.Fatal("favorites id changed across reopen")
	}
	if got := re.Policy().MinPasswordLength; got != DefaultPolicy().MinPasswordLength {
		t.Fatalf("policy did not round trip: min length %d", got)
	}
	slot, ok := re.Slot("alice")
	if !ok || slot.Role != RoleAdministrator {
		t.Fatalf("key slot did not round trip: %+v ok=%v", slot, ok)
	}
}

func TestSaveWritesIntegratedFormat(t *testing.T) {
	v, _ := createVault(t, nil)
	if err := v.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, hdr, err := vaultfile.Read(v.Path(), false)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if hdr.Kind != vaultfile.Integrated {
		t.Fatalf("new vault written as %v, want integrated", hdr.Kind)
	}
}

func TestReopenWithFEC(t *testing.T) {
	p := fec.DefaultParams()
	v, dek := createVault(t, &p)
	v.Accounts().Add(AccountRecord{Name: "mail"})
	if err := v.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v.Close()

	re := reopen(t, v.Path(), dek)
	defer re.Close()
	if re.Accounts().Len() != 1 {
		t.Fatalf("accounts after reopen = %d, want 1", re.Accounts().Len())
	}
}

func TestUnsealWrongKey(t *testing.T) {
	v, _ := createVault(t, nil)
	if err := v.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v.Close()

	c, hdr, err := LoadContainer(v.Path(), false)
	if err != nil {
		t.Fatalf("LoadContainer: %v", err)
	}
	wrong := make([]byte, 32)
	if _, err := Unseal(v.Path(), c, hdr, wrong); !errors.Is(err, kterrors.ErrCryptoError) {
		t.Fatalf("wrong key: got %v, want ErrCryptoError", err)
	}
}

func TestMutationsMarkDirty(t *testing.T) {
	v, _ := createVault(t, nil)
	if err := v.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if v.Modified() {
		t.Fatal("dirty right after save")
	}
	v.Accounts().Add(AccountRecord{Name: "x"})
	if !v.Modified() {
		t.Fatal("account mutation did not mark dirty")
	}
}

func TestSaveAfterClose(t *testing.T) {
	v, _ := createVault(t, nil)
	v.Close()
	if err := v.Save(); !errors.Is(err, kterrors.ErrVaultNotOpen) {
		t.Fatalf("Save after close: got %v, want ErrVaultNotOpen", err)
	}
}

func TestSaveWithBackupRetention(t *testing.T) {
	v, dek := createVault(t, nil)
	if err := v.Save(); err != nil {
		t.Fatalf("initial Save: %v", err)
	}
	v.Accounts().Add(AccountRecord{Name: "x"})
	if err := v.SaveWithBackup("", 3); err != nil {
		t.Fatalf("SaveWithBackup: %v", err)
	}
	re := reopen(t, v.Path(), dek)
	defer re.Close()
	if re.Accounts().Len() != 1 {
		t.Fatalf("accounts after backup save = %d, want 1", re.Accounts().Len())
	}
}

func TestRemoveSlot(t *testing.T) {
	v, _ := createVault(t, nil)
	v.PutSlot(KeySlot{Username: "alice", Role: RoleAdministrator})
	v.PutSlot(KeySlot{Username: "bob", Role: RoleStandardUser})
	if v.AdminCount() != 1 {
		t.Fatalf("AdminCount = %d, want 1", v.AdminCount())
	}
	if !v.RemoveSlot("bob") {
		t.Fatal("RemoveSlot(bob) = false")
	}
	if v.RemoveSlot("bob") {
		t.Fatal("second RemoveSlot(bob) = true")
	}
	if _, ok := v.Slot("bob"); ok {
		t.Fatal("slot survived removal")
	}
}
