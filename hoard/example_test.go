//go:build linux

package hoard_test

import (
	"fmt"

	"github.com/hoardgo/hoard"
)

func Example() {
	a, err := hoard.New(hoard.Config{})
	if err != nil {
		fmt.Println("init failed:", err)
		return
	}

	p, err := a.Allocate(24)
	if err != nil {
		fmt.Println("allocate failed:", err)
		return
	}
	a.Release(p)

	fmt.Println("ok")
	// Output: ok
}
