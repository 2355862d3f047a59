// The main package for the secfeeds executable.
package main

import (
	"github.com/secwatch/secfeeds/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
