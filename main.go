// The main package for the talkcrawler executable.
package main

import (
	"github.com/JakeFAU/talk-catalog-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
