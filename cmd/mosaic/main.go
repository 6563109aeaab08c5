package main

import (
	"fmt"
	"os"

	"github.com/dyluth/mosaic/cmd/mosaic/commands"
)

// Version information - set during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Set version information on root command
	commands.SetVersionInfo(version, commit, date)

	// Rich errors are already printed by the printer package; this covers the rest
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
