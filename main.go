// The main package for the noticewatch executable.
package main

import (
	"github.com/JakeFAU/noticewatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
