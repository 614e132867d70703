// The main package for the sitereport executable.
package main

import (
	"github.com/JakeFAU/sitereport/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
