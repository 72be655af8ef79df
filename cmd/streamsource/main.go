// Package main is the entry point for the streamsource application.
package main

import (
	"os"

	"github.com/jmylchreest/streamsource/cmd/streamsource/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
