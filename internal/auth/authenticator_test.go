package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	kterrors "github.com/tjdeveng/KeepTower-sub010/internal/errors"
	"github.com/tjdeveng/KeepTower-sub010/internal/hwkey"
	"github.com/tjdeveng/KeepTower-sub010/internal/vault"
)

// testPolicy keeps the KDF cheap so the suite stays fast.
func testPolicy() vault.SecurityPolicy {
	return vault.SecurityPolicy{
		MinPasswordLength:    8,
		KDFIterations:        1,
		KDFMemoryKiB:         8 * 1024,
		KDFParallelism:       1,
		PasswordHistoryDepth: 3,
	}
}

func testOptions() Options {
	return Options{AttemptsPerMin: 1000, AttemptBurst: 1000}
}

func newVault(t *testing.T) (string, *Authenticator) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vault.ktv")
	a := New(testOptions())
	if err := a.CreateVault(path, "alice", "correct horse battery", testPolicy(), nil); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}
	return path, a
}

func openAs(t *testing.T, path, username, password string, opts Options) *Authenticator {
	t.Helper()
	a := New(opts)
	if err := a.Open(context.Background(), path, username, password); err != nil {
		t.Fatalf("Open(%s): %v", username, err)
	}
	return a
}

func TestCreateAndReopen(t *testing.T) {
	path, a := newVault(t)
	if a.State() != StateOpen {
		t.Fatalf("state after create = %v, want open", a.State())
	}
	user, role, ok := a.CurrentUser()
	if !ok || user != "alice" || role != vault.RoleAdministrator {
		t.Fatalf("current user = %q/%q/%v", user, role, ok)
	}
	a.Close()
	if a.State() != StateClosed {
		t.Fatalf("state after close = %v, want closed", a.State())
	}

	re := openAs(t, path, "alice", "correct horse battery", testOptions())
	defer re.Close()
	if _, err := re.Vault(); err != nil {
		t.Fatalf("Vault: %v", err)
	}
}

func TestOpenUnknownUser(t *testing.T) {
	path, a := newVault(t)
	a.Close()

	b := New(testOptions())
	err := b.Open(context.Background(), path, "mallory", "whatever-it-takes")
	if !errors.Is(err, kterrors.ErrAuthenticationFailed) {
		t.Fatalf("unknown user: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestOpenWrongPassword(t *testing.T) {
	path, a := newVault(t)
	a.Close()

	b := New(testOptions())
	err := b.Open(context.Background(), path, "alice", "incorrect donkey staple")
	if !errors.Is(err, kterrors.ErrAuthenticationFailed) {
		t.Fatalf("wrong password: got %v, want ErrAuthenticationFailed", err)
	}
	// The right password still works afterwards.
	if err := b.Open(context.Background(), path, "alice", "correct horse battery"); err != nil {
		t.Fatalf("Open after failure: %v", err)
	}
	b.Close()
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	path, a := newVault(t)
	a.Close()

	opts := testOptions()
	opts.MaxFailures = 3
	b := New(opts)
	for i := 0; i < 3; i++ {
		if err := b.Open(context.Background(), path, "alice", "bad password here"); err == nil {
			t.Fatalf("attempt %d unexpectedly succeeded", i)
		}
	}
	if b.State() != StateLocked {
		t.Fatalf("state after lockout = %v, want locked", b.State())
	}
	// Even the correct password is refused while locked out.
	err := b.Open(context.Background(), path, "alice", "correct horse battery")
	if !errors.Is(err, kterrors.ErrAuthenticationFailed) {
		t.Fatalf("open while locked: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestRateLimiter(t *testing.T) {
	path, a := newVault(t)
	a.Close()

	opts := Options{AttemptsPerMin: 0.001, AttemptBurst: 2, MaxFailures: 100}
	b := New(opts)
	b.Open(context.Background(), path, "alice", "bad password one")
	b.Open(context.Background(), path, "alice", "bad password two")
	err := b.Open(context.Background(), path, "alice", "correct horse battery")
	if !errors.Is(err, kterrors.ErrAuthenticationFailed) {
		t.Fatalf("rate limited open: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestAddUserLifecycle(t *testing.T) {
	path, a := newVault(t)
	if err := a.AddUser("bob", "super secret pw", vault.RoleStandardUser); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.AddUser("bob", "another password", vault.RoleStandardUser); !errors.Is(err, kterrors.ErrDuplicateUser) {
		t.Fatalf("duplicate AddUser: got %v, want ErrDuplicateUser", err)
	}
	if err := a.AddUser("", "super secret pw", vault.RoleStandardUser); !errors.Is(err, kterrors.ErrInvalidUsername) {
		t.Fatalf("empty username: got %v, want ErrInvalidUsername", err)
	}
	if err := a.AddUser("carol", "short", vault.RoleStandardUser); !errors.Is(err, kterrors.ErrWeakPassword) {
		t.Fatalf("weak password: got %v, want ErrWeakPassword", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	b := openAs(t, path, "bob", "super secret pw", testOptions())
	defer b.Close()
	if !b.MustChangePassword() {
		t.Fatal("new user not flagged for password change")
	}
	_, role, _ := b.CurrentUser()
	if role != vault.RoleStandardUser {
		t.Fatalf("bob's role = %q, want standard", role)
	}
}

func TestStandardUserCannotManageUsers(t *testing.T) {
	path, a := newVault(t)
	if err := a.AddUser("bob", "super secret pw", vault.RoleStandardUser); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	b := openAs(t, path, "bob", "super secret pw", testOptions())
	defer b.Close()
	if err := b.AddUser("carol", "some other secret", vault.RoleStandardUser); !errors.Is(err, kterrors.ErrPermissionDenied) {
		t.Fatalf("AddUser as standard: got %v, want ErrPermissionDenied", err)
	}
	if err := b.RemoveUser("alice"); !errors.Is(err, kterrors.ErrPermissionDenied) {
		t.Fatalf("RemoveUser as standard: got %v, want ErrPermissionDenied", err)
	}
	if err := b.AdminResetUserPassword("alice", "overwrite password"); !errors.Is(err, kterrors.ErrPermissionDenied) {
		t.Fatalf("reset as standard: got %v, want ErrPermissionDenied", err)
	}
}

func TestRemoveUserGuards(t *testing.T) {
	_, a := newVault(t)
	defer a.Close()
	if err := a.RemoveUser("alice"); !errors.Is(err, kterrors.ErrCannotRemoveSelf) {
		t.Fatalf("remove self: got %v, want ErrCannotRemoveSelf", err)
	}
	if err := a.RemoveUser("ghost"); !errors.Is(err, kterrors.ErrUserNotFound) {
		t.Fatalf("remove missing: got %v, want ErrUserNotFound", err)
	}
	if err := a.AddUser("bob", "super secret pw", vault.RoleStandardUser); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.RemoveUser("bob"); err != nil {
		t.Fatalf("RemoveUser: %v", err)
	}
	v, _ := a.Vault()
	if _, ok := v.Slot("bob"); ok {
		t.Fatal("slot survived removal")
	}
}

func TestCannotRemoveLastAdmin(t *testing.T) {
	path, a := newVault(t)
	if err := a.AddUser("bob", "super secret pw", vault.RoleStandardUser); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.AddUser("carol", "carols secret pw", vault.RoleAdministrator); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	c := openAs(t, path, "carol", "carols secret pw", testOptions())
	defer c.Close()
	// Carol may remove alice while she herself remains an administrator,
	// but the last admin standing is protected.
	if err := c.RemoveUser("alice"); err != nil {
		t.Fatalf("RemoveUser(alice): %v", err)
	}
	v, _ := c.Vault()
	if v.AdminCount() != 1 {
		t.Fatalf("AdminCount = %d, want 1", v.AdminCount())
	}
}

func TestRemoveOtherLastAdminRefused(t *testing.T) {
	path, a := newVault(t)
	if err := a.AddUser("dave", "daves secret pwd", vault.RoleAdministrator); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	d := openAs(t, path, "dave", "daves secret pwd", testOptions())
	defer d.Close()
	if err := d.RemoveUser("alice"); err != nil {
		t.Fatalf("RemoveUser(alice): %v", err)
	}
	// Dave is now the only admin; removing himself is blocked twice over.
	if err := d.RemoveUser("dave"); !errors.Is(err, kterrors.ErrCannotRemoveSelf) {
		t.Fatalf("remove self: got %v, want ErrCannotRemoveSelf", err)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	path, a := newVault(t)
	if err := a.ChangePassword(ctx, "wrong old password", "a whole new phrase"); !errors.Is(err, kterrors.ErrAuthenticationFailed) {
		t.Fatalf("wrong old password: got %v, want ErrAuthenticationFailed", err)
	}
	if err := a.ChangePassword(ctx, "correct horse battery", "short"); !errors.Is(err, kterrors.ErrWeakPassword) {
		t.Fatalf("weak new password: got %v, want ErrWeakPassword", err)
	}
	if err := a.ChangePassword(ctx, "correct horse battery", "correct horse battery"); !errors.Is(err, kterrors.ErrPasswordReused) {
		t.Fatalf("reused password: got %v, want ErrPasswordReused", err)
	}
	if err := a.ChangePassword(ctx, "correct horse battery", "a whole new phrase"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	// The retired password stays blocked by the history.
	if err := a.ChangePassword(ctx, "a whole new phrase", "correct horse battery"); !errors.Is(err, kterrors.ErrPasswordReused) {
		t.Fatalf("old password via history: got %v, want ErrPasswordReused", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	re := openAs(t, path, "alice", "a whole new phrase", testOptions())
	re.Close()
}

func TestChangePasswordClearsForcedFlag(t *testing.T) {
	ctx := context.Background()
	path, a := newVault(t)
	if err := a.AddUser("bob", "temporary phrase", vault.RoleStandardUser); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	b := openAs(t, path, "bob", "temporary phrase", testOptions())
	if !b.MustChangePassword() {
		t.Fatal("forced-change flag not set")
	}
	if err := b.ChangePassword(ctx, "temporary phrase", "bobs own passphrase"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if b.MustChangePassword() {
		t.Fatal("forced-change flag not cleared")
	}
	b.Close()
}

func TestAdminResetUserPassword(t *testing.T) {
	path, a := newVault(t)
	if err := a.AddUser("bob", "forgotten phrase", vault.RoleStandardUser); err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := a.AdminResetUserPassword("ghost", "whatever phrase"); !errors.Is(err, kterrors.ErrUserNotFound) {
		t.Fatalf("reset missing user: got %v, want ErrUserNotFound", err)
	}
	if err := a.AdminResetUserPassword("bob", "recovery phrase!"); err != nil {
		t.Fatalf("AdminResetUserPassword: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	b := openAs(t, path, "bob", "recovery phrase!", testOptions())
	defer b.Close()
	if !b.MustChangePassword() {
		t.Fatal("reset user not flagged for password change")
	}
}

func TestHardwareKeyEnrollment(t *testing.T) {
	ctx := context.Background()
	responder := hwkey.NewSoftwareResponder([]byte("device secret"))

	path := filepath.Join(t.TempDir(), "vault.ktv")
	opts := testOptions()
	opts.Responder = responder
	a := New(opts)
	if err := a.CreateVault(path, "alice", "correct horse battery", testPolicy(), nil); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}
	if err := a.EnrollHardwareKey(ctx, "correct horse battery"); err != nil {
		t.Fatalf("EnrollHardwareKey: %v", err)
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()

	// With the device present the slot opens.
	b := openAs(t, path, "alice", "correct horse battery", opts)
	b.Close()

	// Without any responder the slot is unusable.
	c := New(testOptions())
	err := c.Open(ctx, path, "alice", "correct horse battery")
	if !errors.Is(err, kterrors.ErrHardwareKeyNotPresent) {
		t.Fatalf("no responder: got %v, want ErrHardwareKeyNotPresent", err)
	}

	// A detached device is reported, not treated as a bad password.
	responder.SetPresent(false)
	d := New(opts)
	err = d.Open(ctx, path, "alice", "correct horse battery")
	if !errors.Is(err, kterrors.ErrHardwareKeyNotPresent) {
		t.Fatalf("absent device: got %v, want ErrHardwareKeyNotPresent", err)
	}
}

func TestMustEnrollHardwareKey(t *testing.T) {
	ctx := context.Background()
	responder := hwkey.NewSoftwareResponder([]byte("device secret"))

	path := filepath.Join(t.TempDir(), "vault.ktv")
	opts := testOptions()
	opts.Responder = responder
	policy := testPolicy()
	policy.RequireHardwareKey = true

	a := New(opts)
	if err := a.CreateVault(path, "alice", "correct horse battery", policy, nil); err != nil {
		t.Fatalf("CreateVault: %v", err)
	}
	if !a.MustEnrollHardwareKey() {
		t.Fatal("policy requires a key but the session does not flag enrollment")
	}
	if err := a.EnrollHardwareKey(ctx, "correct horse battery"); err != nil {
		t.Fatalf("EnrollHardwareKey: %v", err)
	}
	if a.MustEnrollHardwareKey() {
		t.Fatal("enrollment flag still set after enrolling")
	}
	if err := a.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	a.Close()
	if a.MustEnrollHardwareKey() {
		t.Fatal("closed session reports enrollment pending")
	}

	// A vault without the policy bit never demands enrollment.
	_, b := newVault(t)
	if b.MustEnrollHardwareKey() {
		t.Fatal("enrollment demanded without a policy requirement")
	}
	b.Close()
}

func TestPasswordHashRoundTrip(t *testing.T) {
	h, err := HashPassword("some passphrase")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("some passphrase", h)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(match) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("другой пароль", h)
	if err != nil || ok {
		t.Fatalf("VerifyPassword(mismatch) = %v, %v", ok, err)
	}
	if _, err := VerifyPassword("x", "$bogus$"); !errors.Is(err, kterrors.ErrValidationFailed) {
		t.Fatalf("malformed hash: got %v, want ErrValidationFailed", err)
	}
}

func TestValidateUsername(t *testing.T) {
	for _, name := range []string{"alice", "bob.smith", "admin-2"} {
		if err := ValidateUsername(name); err != nil {
			t.Fatalf("ValidateUsername(%q): %v", name, err)
		}
	}
	long := make([]byte, maxUsernameLen+1)
	for i := range long {
		long[i] = 'a'
	}
	for _, name := range []string{"", " alice", "alice ", "a\tb", string(long)} {
		if err := ValidateUsername(name); !errors.Is(err, kterrors.ErrInvalidUsername) {
			t.Fatalf("ValidateUsername(%q): got %v, want ErrInvalidUsername", name, err)
		}
	}
}
