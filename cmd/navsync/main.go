// Package main provides the entry point for the navsync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/operate-experience/navsync/cmd/navsync/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
