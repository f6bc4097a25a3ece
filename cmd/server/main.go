// Command academic-helper serves similarity search over stored academic sources
package main

import (
	"os"
)

// Version information, set at build time via -ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
