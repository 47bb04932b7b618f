//go:build !linux && !darwin

package platform

// DisableCoreDumps is a no-op where core limits are not a concept.
func DisableCoreDumps() error { return nil }
