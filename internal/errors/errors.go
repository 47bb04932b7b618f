package errors

import "errors"

// File and backup errors.
var (
	// ErrFileNotFound indicates the vault file or a backup could not be located.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileReadFailed indicates the vault file could not be read, failed the
	// permission checks, or carried a truncated header.
	ErrFileReadFailed = errors.New("file read failed")

	// ErrFileWriteError indicates the atomic write did not complete. The
	// previously persisted file is untouched.
	ErrFileWriteError = errors.New("file write error")
)

// Authentication and key-slot errors.
var (
	// ErrAuthenticationFailed indicates the supplied credential did not unwrap
	// the vault key. Wrong usernames and wrong passwords are not distinguished.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrUserNotFound indicates the named key slot does not exist. Only
	// returned by management operations acting on an already-open vault.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUsername indicates the username is empty, too long, or
	// contains forbidden characters.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidPassword indicates the password failed basic validation.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrWeakPassword indicates the password is shorter than the vault policy
	// minimum.
	ErrWeakPassword = errors.New("password does not meet policy")

	// ErrPasswordReused indicates the new password matches an entry in the
	// slot's bounded password history.
	ErrPasswordReused = errors.New("password was used before")

	// ErrHardwareKeyNotPresent indicates the slot requires a hardware second
	// factor and no device responded.
	ErrHardwareKeyNotPresent = errors.New("hardware key not present")

	// ErrHardwareKeyError indicates the hardware device failed mid-operation.
	ErrHardwareKeyError = errors.New("hardware key error")

	// ErrCannotRemoveSelf indicates a session tried to remove its own slot.
	ErrCannotRemoveSelf = errors.New("cannot remove own user")

	// ErrCannotRemoveLastAdmin indicates removal would leave the vault without
	// an administrator slot.
	ErrCannotRemoveLastAdmin = errors.New("cannot remove last administrator")

	// ErrDuplicateUser indicates a key slot with that username already exists.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrPermissionDenied indicates the acting session lacks the required role.
	ErrPermissionDenied = errors.New("permission denied")
)

// Vault state and data errors.
var (
	// ErrVaultNotOpen indicates an operation that needs a decrypted vault was
	// called on a closed or locked session.
	ErrVaultNotOpen = errors.New("vault not open")

	// ErrCryptoError indicates a cryptographic primitive failed outside the
	// normal bad-credential path.
	ErrCryptoError = errors.New("cryptographic operation failed")

	// ErrDuplicateName indicates a group with that name already exists.
	ErrDuplicateName = errors.New("name already exists")

	// ErrValidationFailed indicates input failed a structural check (bad
	// index, malformed name, out-of-range value).
	ErrValidationFailed = errors.New("validation failed")

	// ErrCorruptionUnrecoverable indicates the redundancy decoder could not
	// reconstruct the payload. No partial data is returned.
	ErrCorruptionUnrecoverable = errors.New("corruption exceeds recoverable capacity")
)
