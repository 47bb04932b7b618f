// Package auth is the gatekeeper between credentials and an open vault: it
// derives slot KEKs, unwraps the DEK, enforces roles on user management, and
// applies the password policy with reuse history.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tjdeveng/KeepTower-sub010/internal/audit"
	cr "github.com/tjdeveng/KeepTower-sub010/internal/crypto"
	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
	"github.com/tjdeveng/KeepTower-sub010/internal/fec"
	"github.com/tjdeveng/KeepTower-sub010/internal/hwkey"
	"github.com/tjdeveng/KeepTower-sub010/internal/logging"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
	"github.com/tjdeveng/KeepTower-sub010/internal/vaultfile"
)

var log = logging.Component("auth")

// State is the session lifecycle of an Authenticator.
type State int

const (
	StateClosed State = iota
	StateAuthenticating
	StateOpen
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateLocked:
		return "locked"
	default:
		return "closed"
	}
}

// Options tunes an Authenticator. Zero values pick the defaults below.
type Options struct {
	// Responder supplies hardware challenge-response for enrolled slots.
	Responder hwkey.Responder
	// Audit receives security events; nil disables auditing.
	Audit *audit.Log

	// LegacyHint biases format sniffing for truncated legacy files.
	LegacyHint bool

	BackupDir  string
	MaxBackups int

	MaxFailures    int
	LockoutPeriod  time.Duration
	AttemptsPerMin rate.Limit
	AttemptBurst   int
}

const (
	defaultMaxFailures    = 5
	defaultLockoutPeriod  = 5 * time.Minute
	defaultAttemptsPerMin = rate.Limit(10.0 / 60.0)
	defaultAttemptBurst   = 5
)

// Authenticator manages one vault session. All methods are safe for
// concurrent use.
type Authenticator struct {
	mu       sync.Mutex
	opts     Options
	state    State
	vault    *vault.Vault
	username string
	role     vault.Role

	limiter  *multiLimiter
	failures *failureTracker
}

func New(opts Options) *Authenticator {
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = defaultMaxFailures
	}
	if opts.LockoutPeriod <= 0 {
		opts.LockoutPeriod = defaultLockoutPeriod
	}
	if opts.AttemptsPerMin <= 0 {
		opts.AttemptsPerMin = defaultAttemptsPerMin
	}
	if opts.AttemptBurst <= 0 {
		opts.AttemptBurst = defaultAttemptBurst
	}
	return &Authenticator{
		opts:     opts,
		limiter:  newMultiLimiter(opts.AttemptsPerMin, opts.AttemptBurst),
		failures: newFailureTracker(opts.MaxFailures, opts.LockoutPeriod),
	}
}

func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CurrentUser returns the authenticated identity, if any.
func (a *Authenticator) CurrentUser() (string, vault.Role, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return "", "", false
	}
	return a.username, a.role, true
}

// Vault exposes the open vault's stores.
func (a *Authenticator) Vault() (*vault.Vault, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return nil, fmt.Errorf("auth: %w", kterrors.ErrVaultNotOpen)
	}
	return a.vault, nil
}

func slotWrapAAD(username string) []byte {
	return []byte("dek-wrap:" + username)
}

// CreateVault builds a new vault at path with username as its first
// administrator and leaves the session open.
func (a *Authenticator) CreateVault(path, username, password string, policy vault.SecurityPolicy, fecParams *fec.Params) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateOpen {
		return fmt.Errorf("auth: session already open: %w", kterrors.ErrValidationFailed)
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if err := CheckPasswordStrength(password, policy); err != nil {
		return err
	}
	v, err := vault.Create(path, policy, fecParams)
	if err != nil {
		return err
	}
	slot, err := makeSlot(username, password, vault.RoleAdministrator, v.DEK(), nil, policy)
	if err != nil {
		v.Close()
		return err
	}
	v.PutSlot(slot)
	if err := v.Save(); err != nil {
		v.Close()
		return err
	}
	a.vault = v
	a.username = username
	a.role = vault.RoleAdministrator
	a.state = StateOpen
	a.opts.Audit.Record(username, audit.ActionVaultCreated, path)
	return nil
}

// Open authenticates username against the vault at path. Attempts are rate
// limited and repeated failures lock the account out for a period. Unknown
// usernames cost a full key derivation so they are not distinguishable from
// wrong passwords by timing.
func (a *Authenticator) Open(ctx context.Context, path, username, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateOpen {
		return fmt.Errorf("auth: session already open: %w", kterrors.ErrValidationFailed)
	}
	if a.failures.locked(username) {
		a.state = StateLocked
		return fmt.Errorf("auth: account locked out: %w", kterrors.ErrAuthenticationFailed)
	}
	if !a.limiter.allow(username) {
		a.opts.Audit.Record(username, audit.ActionAuthFailed, "rate limited")
		return fmt.Errorf("auth: too many attempts: %w", kterrors.ErrAuthenticationFailed)
	}
	a.state = StateAuthenticating

	c, hdr, err := vault.LoadContainer(path, a.opts.LegacyHint)
	if err != nil {
		a.state = StateClosed
		return err
	}
	slot, ok := c.FindSlot(username)
	if !ok {
		burnDerivation(password)
		a.state = a.noteFailure(username, "unknown user")
		return fmt.Errorf("auth: %w", kterrors.ErrAuthenticationFailed)
	}

	var hwResponse []byte
	if slot.HardwareKeyEnrolled {
		hwResponse, err = a.challenge(ctx, slot.KDF.Salt)
		if err != nil {
			a.state = StateClosed
			return err
		}
	}

	kdf := effectiveKDF(slot.KDF, hdr)
	kek := cr.DeriveKEK([]byte(password), hwResponse, kdf)
	defer cr.Zero32(&kek)
	dek, err := cr.OpenAny(kek[:], slot.DEKWrap, slotWrapAAD(username))
	if err != nil {
		a.state = a.noteFailure(username, "bad credentials")
		return fmt.Errorf("auth: %w", kterrors.ErrAuthenticationFailed)
	}

	v, err := vault.Unseal(path, c, hdr, dek)
	if err != nil {
		a.state = StateClosed
		return err
	}
	a.vault = v
	a.username = username
	a.role = slot.Role
	a.state = StateOpen
	a.failures.reset(username)
	a.opts.Audit.Record(username, audit.ActionVaultOpened, path)
	return nil
}

// Close wipes the session. Unsaved changes are discarded.
func (a *Authenticator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.vault != nil {
		a.opts.Audit.Record(a.username, audit.ActionVaultClosed, a.vault.Path())
		a.vault.Close()
		a.vault = nil
	}
	a.username = ""
	a.role = ""
	a.state = StateClosed
}

// Save persists the open vault with a pre-save backup.
func (a *Authenticator) Save() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return fmt.Errorf("auth: %w", kterrors.ErrVaultNotOpen)
	}
	if err := a.vault.SaveWithBackup(a.opts.BackupDir, a.opts.MaxBackups); err != nil {
		return err
	}
	a.opts.Audit.Record(a.username, audit.ActionVaultSaved, a.vault.Path())
	return nil
}

// AddUser creates a key slot for a new user. Administrator only. The new
// user must change the password on first login.
func (a *Authenticator) AddUser(username, password string, role vault.Role) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireAdminLocked(); err != nil {
		return err
	}
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if _, exists := a.vault.Slot(username); exists {
		return fmt.Errorf("auth: user %q: %w", username, kterrors.ErrDuplicateUser)
	}
	if role != vault.RoleAdministrator && role != vault.RoleStandardUser {
		return fmt.Errorf("auth: unknown role %q: %w", role, kterrors.ErrValidationFailed)
	}
	policy := a.vault.Policy()
	if err := CheckPasswordStrength(password, policy); err != nil {
		return err
	}
	slot, err := makeSlot(username, password, role, a.vault.DEK(), nil, policy)
	if err != nil {
		return err
	}
	slot.MustChangePassword = true
	a.vault.PutSlot(slot)
	a.opts.Audit.Record(a.username, audit.ActionUserAdded, a.auditName(username))
	return nil
}

// RemoveUser deletes a user's key slot. Administrator only; a user cannot
// remove themselves and the last administrator slot is immovable.
func (a *Authenticator) RemoveUser(username string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireAdminLocked(); err != nil {
		return err
	}
	if username == a.username {
		return fmt.Errorf("auth: %w", kterrors.ErrCannotRemoveSelf)
	}
	slot, ok := a.vault.Slot(username)
	if !ok {
		return fmt.Errorf("auth: user %q: %w", username, kterrors.ErrUserNotFound)
	}
	if slot.Role == vault.RoleAdministrator && a.vault.AdminCount() <= 1 {
		return fmt.Errorf("auth: %w", kterrors.ErrCannotRemoveLastAdmin)
	}
	a.vault.RemoveSlot(username)
	a.opts.Audit.Record(a.username, audit.ActionUserRemoved, a.auditName(username))
	return nil
}

// ChangePassword rotates the current user's credential: fresh salt, fresh
// KEK, rewrapped DEK, and the old password pushed into the reuse history.
func (a *Authenticator) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return fmt.Errorf("auth: %w", kterrors.ErrVaultNotOpen)
	}
	slot, ok := a.vault.Slot(a.username)
	if !ok {
		return fmt.Errorf("auth: user %q: %w", a.username, kterrors.ErrUserNotFound)
	}
	if err := a.verifySlotPassword(ctx, slot, oldPassword); err != nil {
		return err
	}
	policy := a.vault.Policy()
	if err := CheckPasswordStrength(newPassword, policy); err != nil {
		return err
	}
	for _, h := range slot.PasswordHistory {
		match, err := VerifyPassword(newPassword, h)
		if err != nil {
			return err
		}
		if match {
			return fmt.Errorf("auth: %w", kterrors.ErrPasswordReused)
		}
	}

	var hwResponse []byte
	kdf := newSlotKDF(policy)
	if slot.HardwareKeyEnrolled {
		resp, err := a.challenge(ctx, kdf.Salt)
		if err != nil {
			return err
		}
		hwResponse = resp
	}
	kek := cr.DeriveKEK([]byte(newPassword), hwResponse, kdf)
	defer cr.Zero32(&kek)
	wrap, err := cr.SealX(kek[:], a.vault.DEK(), slotWrapAAD(a.username))
	if err != nil {
		return fmt.Errorf("auth: rewrap: %w: %v", kterrors.ErrCryptoError, err)
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	updated := *slot
	updated.KDF = kdf
	updated.DEKWrap = wrap
	updated.MustChangePassword = false
	updated.PasswordHistory = pushHistory(slot.PasswordHistory, newHash, policy.PasswordHistoryDepth)
	a.vault.PutSlot(updated)
	a.opts.Audit.Record(a.username, audit.ActionPasswordChange, a.username)
	return nil
}

// AdminResetUserPassword rewraps a user's slot under a new password chosen
// by an administrator. The reuse history restarts and the user must change
// the password at next login. Hardware enrollment is cleared because the
// administrator cannot answer the user's device challenge.
func (a *Authenticator) AdminResetUserPassword(target, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.requireAdminLocked(); err != nil {
		return err
	}
	slot, ok := a.vault.Slot(target)
	if !ok {
		return fmt.Errorf("auth: user %q: %w", target, kterrors.ErrUserNotFound)
	}
	policy := a.vault.Policy()
	if err := CheckPasswordStrength(newPassword, policy); err != nil {
		return err
	}
	fresh, err := makeSlot(target, newPassword, slot.Role, a.vault.DEK(), nil, policy)
	if err != nil {
		return err
	}
	fresh.MustChangePassword = true
	a.vault.PutSlot(fresh)
	a.opts.Audit.Record(a.username, audit.ActionPasswordReset, a.auditName(target))
	return nil
}

// EnrollHardwareKey binds the current user's slot to the configured
// responder. The password is reverified first and the DEK rewrapped under
// the device-mixed KEK.
func (a *Authenticator) EnrollHardwareKey(ctx context.Context, password string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return fmt.Errorf("auth: %w", kterrors.ErrVaultNotOpen)
	}
	if a.opts.Responder == nil {
		return fmt.Errorf("auth: no responder configured: %w", kterrors.ErrHardwareKeyNotPresent)
	}
	slot, ok := a.vault.Slot(a.username)
	if !ok {
		return fmt.Errorf("auth: user %q: %w", a.username, kterrors.ErrUserNotFound)
	}
	if err := a.verifySlotPassword(ctx, slot, password); err != nil {
		return err
	}
	resp, err := a.challenge(ctx, slot.KDF.Salt)
	if err != nil {
		return err
	}
	kek := cr.DeriveKEK([]byte(password), resp, slot.KDF)
	defer cr.Zero32(&kek)
	wrap, err := cr.SealX(kek[:], a.vault.DEK(), slotWrapAAD(a.username))
	if err != nil {
		return fmt.Errorf("auth: rewrap: %w: %v", kterrors.ErrCryptoError, err)
	}
	updated := *slot
	updated.DEKWrap = wrap
	updated.HardwareKeyEnrolled = true
	a.vault.PutSlot(updated)
	return nil
}

// MustChangePassword reports whether the current user is flagged for a
// forced password change.
func (a *Authenticator) MustChangePassword() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return false
	}
	slot, ok := a.vault.Slot(a.username)
	return ok && slot.MustChangePassword
}

// MustEnrollHardwareKey reports whether the vault policy demands a second
// factor the current user's slot does not yet carry. Callers surface it the
// same way as MustChangePassword.
func (a *Authenticator) MustEnrollHardwareKey() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateOpen {
		return false
	}
	if !a.vault.Policy().RequireHardwareKey {
		return false
	}
	slot, ok := a.vault.Slot(a.username)
	return ok && !slot.HardwareKeyEnrolled
}

func (a *Authenticator) requireAdminLocked() error {
	if a.state != StateOpen {
		return fmt.Errorf("auth: %w", kterrors.ErrVaultNotOpen)
	}
	if a.role != vault.RoleAdministrator {
		return fmt.Errorf("auth: %w", kterrors.ErrPermissionDenied)
	}
	return nil
}

// verifySlotPassword proves the caller knows the slot's password by
// unwrapping the DEK with it.
func (a *Authenticator) verifySlotPassword(ctx context.Context, slot *vault.KeySlot, password string) error {
	var hwResponse []byte
	if slot.HardwareKeyEnrolled {
		resp, err := a.challenge(ctx, slot.KDF.Salt)
		if err != nil {
			return err
		}
		hwResponse = resp
	}
	kek := cr.DeriveKEK([]byte(password), hwResponse, slot.KDF)
	defer cr.Zero32(&kek)
	dek, err := cr.OpenAny(kek[:], slot.DEKWrap, slotWrapAAD(slot.Username))
	if err != nil {
		return fmt.Errorf("auth: %w", kterrors.ErrAuthenticationFailed)
	}
	cr.Zero(dek)
	return nil
}

// auditName renders a target username for the plaintext audit log. The
// policy's hash selector keeps other users' names out of the clear; an empty
// selector records them verbatim.
func (a *Authenticator) auditName(username string) string {
	if a.vault == nil {
		return username
	}
	switch a.vault.Policy().UsernameHashAlgo {
	case "sha256":
		sum := sha256.Sum256([]byte(username))
		return hex.EncodeToString(sum[:8])
	case "sha1":
		sum := sha1.Sum([]byte(username))
		return hex.EncodeToString(sum[:8])
	}
	return username
}

// challenge runs the hardware responder against the slot challenge. The
// challenge is the slot's KDF salt, so it rotates with every password
// change.
func (a *Authenticator) challenge(ctx context.Context, salt []byte) ([]byte, error) {
	if a.opts.Responder == nil {
		return nil, fmt.Errorf("auth: slot requires a hardware key: %w", kterrors.ErrHardwareKeyNotPresent)
	}
	pending := hwkey.Begin(ctx, a.opts.Responder, salt)
	return pending.Wait(ctx)
}

// noteFailure records a failed attempt and returns the resulting state.
func (a *Authenticator) noteFailure(username, reason string) State {
	a.opts.Audit.Record(username, audit.ActionAuthFailed, reason)
	if a.failures.fail(username) {
		a.opts.Audit.Record(username, audit.ActionAuthLocked, "")
		log.Warn().Str("user", username).Msg("account locked out")
		return StateLocked
	}
	return StateClosed
}

// makeSlot wraps dek for a user under a freshly derived KEK. The current
// password's hash seeds the reuse history.
func makeSlot(username, password string, role vault.Role, dek, hwResponse []byte, policy vault.SecurityPolicy) (vault.KeySlot, error) {
	kdf := newSlotKDF(policy)
	kek := cr.DeriveKEK([]byte(password), hwResponse, kdf)
	defer cr.Zero32(&kek)
	wrap, err := cr.SealX(kek[:], dek, slotWrapAAD(username))
	if err != nil {
		return vault.KeySlot{}, fmt.Errorf("auth: wrap DEK: %w: %v", kterrors.ErrCryptoError, err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return vault.KeySlot{}, err
	}
	return vault.KeySlot{
		Username:            username,
		Role:                role,
		KDF:                 kdf,
		DEKWrap:             wrap,
		HardwareKeyEnrolled: len(hwResponse) > 0,
		PasswordHistory:     []string{hash},
	}, nil
}

func newSlotKDF(policy vault.SecurityPolicy) cr.KDFParams {
	kdf := cr.KDFParams{
		M:    policy.KDFMemoryKiB,
		T:    policy.KDFIterations,
		P:    policy.KDFParallelism,
		Salt: make([]byte, 32),
	}
	if kdf.M == 0 || kdf.T == 0 || kdf.P == 0 {
		kdf = cr.DefaultDesktopKDF()
		return kdf
	}
	_, _ = rand.Read(kdf.Salt)
	return kdf
}

// effectiveKDF reconciles a slot's parameters with a legacy file header:
// old files carried the iteration count in the binary header instead of the
// slot.
func effectiveKDF(kdf cr.KDFParams, hdr vaultfile.Header) cr.KDFParams {
	if hdr.Kind == vaultfile.Legacy && kdf.T == 0 {
		kdf.T = hdr.Iterations
		if kdf.T == 0 {
			kdf.T = 3
		}
	}
	if kdf.M == 0 {
		kdf.M = 64 * 1024
	}
	if kdf.P == 0 {
		kdf.P = 2
	}
	return kdf
}

// burnDerivation costs the same as a real derivation so unknown usernames
// are indistinguishable from wrong passwords.
func burnDerivation(password string) {
	kek := cr.DeriveKEK([]byte(password), nil, decoyKDF)
	cr.Zero32(&kek)
}

var decoyKDF = cr.KDFParams{M: 256 * 1024, T: 3, P: 4, Salt: make([]byte, 32)}

// pushHistory prepends hash and trims to depth entries.
func pushHistory(history []string, hash string, depth int) []string {
	if depth <= 0 {
		depth = 1
	}
	out := append([]string{hash}, history...)
	if len(out) > depth {
		out = out[:depth]
	}
	return out
}
