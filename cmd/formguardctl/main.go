// Command formguardctl runs operator tasks against a FormGuard database:
// schema migrations and manual plan changes.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(wireApp).Execute(); err != nil {
		os.Exit(1)
	}
}
