// The main package for the launcher executable.
package main

import (
	"github.com/JakeFAU/embedded-launcher/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
