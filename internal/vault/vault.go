// Package vault holds the decrypted in-memory model of a credential vault:
// the outer container with its per-user key slots, the encrypted inner
// payload, and the account/group stores that mutate it.
package vault

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/tjdeveng/KeepTower-sub010/internal/backup"
	cr "github.com/tjdeveng/KeepTower-sub010/internal/crypto"
	"github.com/tjdeveng/KeepTower-sub010/internal/fec"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
	"github.com/tjdeveng/KeepTower-sub010/internal/vaultfile"
	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
)

var log = logging.Component("vault")

// dataAAD binds the sealed inner payload to its role in the container.
var dataAAD = []byte("vault-data")

// Vault is one open vault: path, parsed container, cached DEK, and the
// live stores. Nothing touches disk until Save.
type Vault struct {
	path       string
	integrated bool
	container  Container
	policy     SecurityPolicy
	dek        *memguard.LockedBuffer
	accounts   *AccountStore
	groups     *GroupStore
	dirty      bool
}

// Create builds a fresh, empty vault bound to path with a newly generated
// DEK. The caller is responsible for adding the first administrator slot and
// saving.
func Create(path string, policy SecurityPolicy, fecParams *fec.Params) (*Vault, error) {
	dek := make([]byte, 32)
	if _, err := rand.Read(dek); err != nil {
		return nil, fmt.Errorf("vault: generate DEK: %w: %v", kterrors.ErrCryptoError, err)
	}
	v := &Vault{
		path:       path,
		integrated: true,
		policy:     policy,
		container:  Container{Version: ContainerVersion, FEC: fecParams},
		dek:        memguard.NewBufferFromBytes(dek),
		dirty:      true,
	}
	v.accounts = NewAccountStore(v, nil)
	v.groups = NewGroupStore(v, v.accounts, nil)
	v.groups.FavoritesID()
	return v, nil
}

// LoadContainer reads a vault file and parses the outer document. No
// credentials are needed; key slots stay in the clear so the caller can
// derive a KEK for one of them.
func LoadContainer(path string, legacyHint bool) (Container, vaultfile.Header, error) {
	payload, hdr, err := vaultfile.Read(path, legacyHint)
	if err != nil {
		return Container{}, hdr, err
	}
	var c Container
	if err := json.Unmarshal(payload, &c); err != nil {
		return Container{}, hdr, fmt.Errorf("vault: container decode: %w: %v", kterrors.ErrFileReadFailed, err)
	}
	if hdr.Kind == vaultfile.Legacy && c.Version == 0 {
		c.Version = int(hdr.Version)
	}
	return c, hdr, nil
}

// Unseal decrypts the container's inner payload with an unwrapped DEK and
// builds the live model. Ownership of dek transfers to the vault; the
// caller's copy is wiped.
func Unseal(path string, c Container, hdr vaultfile.Header, dek []byte) (*Vault, error) {
	pt, err := cr.OpenAny(dek, c.Data, dataAAD)
	if err != nil {
		cr.Zero(dek)
		return nil, fmt.Errorf("vault: payload decrypt: %w", kterrors.ErrCryptoError)
	}
	if c.FEC != nil && c.FEC.Enabled() {
		decoded, err := fec.Decode(pt)
		if err != nil {
			cr.Zero(dek)
			return nil, err
		}
		pt = decoded
	}
	var doc payloadDoc
	if err := json.Unmarshal(pt, &doc); err != nil {
		cr.Zero(dek)
		return nil, fmt.Errorf("vault: payload decode: %w: %v", kterrors.ErrValidationFailed, err)
	}
	cr.Zero(pt)

	v := &Vault{
		path:       path,
		integrated: hdr.Kind != vaultfile.Legacy,
		container:  c,
		policy:     doc.Policy,
		dek:        memguard.NewBufferFromBytes(dek),
	}
	if v.policy.MinPasswordLength == 0 {
		v.policy = DefaultPolicy()
	}
	v.accounts = NewAccountStore(v, doc.Accounts)
	v.groups = NewGroupStore(v, v.accounts, doc.Groups)
	return v, nil
}

// Save re-serializes the model, seals it with the session DEK (never
// re-derived), and writes the container atomically. The format mode the
// vault was opened in is preserved.
func (v *Vault) Save() error {
	if v.dek == nil {
		return fmt.Errorf("vault: %w", kterrors.ErrVaultNotOpen)
	}
	doc := payloadDoc{
		Policy:   v.policy,
		Accounts: v.accounts.records(),
		Groups:   v.groups.records(),
	}
	pt, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("vault: payload encode: %w: %v", kterrors.ErrValidationFailed, err)
	}
	if v.container.FEC != nil && v.container.FEC.Enabled() {
		if pt, err = fec.Encode(pt, *v.container.FEC); err != nil {
			return err
		}
	}
	data, err := cr.SealX(v.dek.Bytes(), pt, dataAAD)
	if err != nil {
		return fmt.Errorf("vault: payload encrypt: %w: %v", kterrors.ErrCryptoError, err)
	}
	v.container.Data = data

	raw, err := json.Marshal(v.container)
	if err != nil {
		return fmt.Errorf("vault: container encode: %w: %v", kterrors.ErrValidationFailed, err)
	}
	if err := vaultfile.Write(v.path, raw, v.integrated, v.policy.KDFIterations); err != nil {
		return err
	}
	v.dirty = false
	return nil
}

// SaveWithBackup snapshots the current file before saving and prunes old
// backups after. A failed backup never blocks the primary save.
func (v *Vault) SaveWithBackup(backupDir string, maxBackups int) error {
	if _, err := backup.Create(v.path, backupDir); err != nil {
		log.Warn().Err(err).Str("vault", v.path).Msg("pre-save backup failed")
	}
	if err := v.Save(); err != nil {
		return err
	}
	backup.Cleanup(v.path, maxBackups, backupDir)
	return nil
}

// Close wipes the cached DEK and detaches the model. The vault cannot be
// used afterwards.
func (v *Vault) Close() {
	if v.dek != nil {
		v.dek.Destroy()
		v.dek = nil
	}
	v.container.Data = nil
}

// MarkDirty implements MutationTracker for the stores.
func (v *Vault) MarkDirty() { v.dirty = true }

// Modified reports whether the in-memory model diverged from disk.
func (v *Vault) Modified() bool { return v.dirty }

func (v *Vault) Path() string          { return v.path }
func (v *Vault) Accounts() *AccountStore { return v.accounts }
func (v *Vault) Groups() *GroupStore     { return v.groups }
func (v *Vault) Policy() SecurityPolicy  { return v.policy }

// SetPolicy replaces the security policy (migration/administration path).
func (v *Vault) SetPolicy(p SecurityPolicy) {
	v.policy = p
	v.dirty = true
}

// DEK exposes the session key for slot wrap/unwrap operations. The slice is
// borrowed from the locked buffer; callers must not retain or wipe it.
func (v *Vault) DEK() []byte {
	if v.dek == nil {
		return nil
	}
	return v.dek.Bytes()
}

// Slots returns the key-slot directory for inspection.
func (v *Vault) Slots() []KeySlot {
	return append([]KeySlot(nil), v.container.Slots...)
}

// Slot returns a mutable reference to the named slot.
func (v *Vault) Slot(username string) (*KeySlot, bool) {
	return v.container.FindSlot(username)
}

// AdminCount reports the number of administrator slots.
func (v *Vault) AdminCount() int { return v.container.AdminCount() }

// PutSlot inserts or replaces a key slot by username.
func (v *Vault) PutSlot(slot KeySlot) {
	if cur, ok := v.container.FindSlot(slot.Username); ok {
		*cur = slot
	} else {
		v.container.Slots = append(v.container.Slots, slot)
	}
	v.dirty = true
}

// RemoveSlot deletes a key slot by username.
func (v *Vault) RemoveSlot(username string) bool {
	for i := range v.container.Slots {
		if v.container.Slots[i].Username == username {
			v.container.Slots = append(v.container.Slots[:i], v.container.Slots[i+1:]...)
			v.dirty = true
			return true
		}
	}
	return false
}
