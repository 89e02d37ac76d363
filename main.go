// The main package for the harvester executable.
package main

import (
	"os"

	"github.com/JakeFAU/org-harvester/cmd"
)

// main defers all execution to the Cobra CLI and exits with its status.
func main() {
	os.Exit(cmd.Execute())
}
