// Package errors defines the sentinel error values shared across the vault
// engine.
//
// The engine never lets ad-hoc error strings cross package boundaries: every
// failure a caller may want to branch on is one of the values below, wrapped
// with fmt.Errorf("...: %w", ...) for context. Callers test with errors.Is.
//
//	if errors.Is(err, kterrors.ErrAuthenticationFailed) {
//	    // uniform bad-credential path, no user enumeration
//	}
//
// Authentication failures are deliberately coarse: a wrong username and a
// wrong password surface the same ErrAuthenticationFailed. The one exception
// is ErrHardwareKeyNotPresent, which callers need to distinguish so they can
// offer a different retry affordance.
package errors
