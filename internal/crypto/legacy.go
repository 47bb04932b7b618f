package crypto

// OpenAny first tries the current XChaCha20-Poly1305 layout; if that fails it
// falls back to the AES-CTR + HMAC envelope used by format-V1 vaults. This
// keeps key slots written before the cipher change unlockable.
func OpenAny(key, ciphertext, aad []byte) ([]byte, error) {
	if pt, err := OpenX(key, ciphertext, aad); err == nil {
		return pt, nil
	}
	return Open(key, ciphertext, aad)
}
