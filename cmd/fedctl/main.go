// fedctl is the operator CLI for a federation instance: inspecting the
// trust topology, minting and inspecting exchange tokens, and generating
// signing keys.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
