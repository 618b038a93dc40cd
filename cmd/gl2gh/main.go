// Package main is the entry point for the gl2gh CLI.
package main

import (
	"os"

	"github.com/similigh/gl2gh/cmd/gl2gh/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
