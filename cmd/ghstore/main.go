// Command ghstore is the CLI front end for the gh-store library: a
// GitHub-Issues-backed durable JSON object store (spec.md section 1).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
