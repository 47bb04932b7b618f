package vault

// SecurityPolicy is fixed at vault creation or migration time and consulted
// by every credential-changing operation.
type SecurityPolicy struct {
	MinPasswordLength    int    `json:"min_password_length"`
	KDFIterations        uint32 `json:"kdf_iterations"`
	KDFMemoryKiB         uint32 `json:"kdf_memory_kib"`
	KDFParallelism       uint8  `json:"kdf_parallelism"`
	PasswordHistoryDepth int    `json:"password_history_depth"`
	RequireHardwareKey   bool   `json:"require_hardware_key,omitempty"`
	UsernameHashAlgo     string `json:"username_hash_algo,omitempty"`
}

func DefaultPolicy() SecurityPolicy {
	return SecurityPolicy{
		MinPasswordLength:    12,
		KDFIterations:        3,
		KDFMemoryKiB:         256 * 1024,
		KDFParallelism:       4,
		PasswordHistoryDepth: 5,
		UsernameHashAlgo:     "sha256",
	}
}
