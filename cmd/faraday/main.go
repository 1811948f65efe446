// Command faraday manages shielding experiments from the terminal and
// serves the HTTP API.
//
// Build with: go build -o bin/faraday ./cmd/faraday
// Usage: faraday <command> [options]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
