//go:build linux

package hoard

import "errors"

// ErrInvalidSize is returned by Allocate when size is zero; a library has
// no business guessing a caller's intent for a zero-byte request.
var ErrInvalidSize = errors.New("hoard: size must be greater than zero")
