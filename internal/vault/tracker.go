package vault

// MutationTracker records that the in-memory vault diverged from disk.
// Stores receive it at construction instead of poking a shared flag, which
// keeps them testable in isolation.
type MutationTracker interface {
	MarkDirty()
}
