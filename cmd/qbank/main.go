// Package main is the entry point for the qbank CLI.
package main

import (
	"os"

	"github.com/jmylchreest/qbank/cmd/qbank/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
