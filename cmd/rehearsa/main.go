// Command rehearsa rehearses restore contracts for container-composed
// application stacks: it brings a stack up in an isolated network, scores
// its health, and records, gates, and reports on the outcome.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
