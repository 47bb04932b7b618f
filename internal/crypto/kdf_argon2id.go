package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

type KDFParams struct {
	M    uint32 `json:"m"`
	T    uint32 `json:"t"`
	P    uint8  `json:"p"`
	Salt []byte `json:"salt"`
}

// DefaultDesktopKDF returns the argon2id profile used for newly created key
// slots on desktop-class machines.
func DefaultDesktopKDF() KDFParams {
	salt := make([]byte, 32)
	_, _ = rand.Read(salt)
	return KDFParams{M: 256 * 1024, T: 3, P: 4, Salt: salt}
}

// DefaultMobileKDF trades memory hardness for constrained devices.
func DefaultMobileKDF() KDFParams {
	salt := make([]byte, 32)
	_, _ = rand.Read(salt)
	return KDFParams{M: 64 * 1024, T: 3, P: 4, Salt: salt}
}

// DeriveKEK turns a user credential into the slot's key-encryption key.
// When hwResponse is non-empty (hardware second factor enrolled) the argon2id
// output is stretched through HKDF-SHA256 with the device response as salt, so
// password and device secret are both required to reproduce the KEK.
func DeriveKEK(credential, hwResponse []byte, p KDFParams) (kek [32]byte) {
	key := argon2.IDKey(credential, p.Salt, p.T, p.M, p.P, 32)
	defer Zero(key)
	if len(hwResponse) == 0 {
		copy(kek[:], key)
		return
	}
	stream := hkdf.New(sha256.New, key, hwResponse, []byte("kek/hwkey/v1"))
	if _, err := io.ReadFull(stream, kek[:]); err != nil {
		// HKDF over SHA-256 cannot fail a 32-byte read.
		panic(err)
	}
	return
}

func EncodeSalt(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
