// Package invariants provides the generic assertion primitive package hoard
// uses in its debug-mode self-checks, run after every public operation when
// debugging is enabled. It knows nothing about arenas or superblocks; it is
// just the reusable "fail loudly with context" helper, returning an error
// instead of crashing the process — a library has no business calling
// os.Exit on behalf of its caller outside the one documented
// out-of-address-space case.
package invariants

import "fmt"

// Violation is returned by Check when an invariant does not hold.
type Violation struct {
	Msg string
}

func (v *Violation) Error() string { return "invariant violation: " + v.Msg }

// Check returns a *Violation wrapping a formatted message when cond is
// false, and nil otherwise.
func Check(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return &Violation{Msg: fmt.Sprintf(format, args...)}
}
