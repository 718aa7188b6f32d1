// The main package for the seatwatch executable.
package main

import (
	"github.com/finnappt/seatwatch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
