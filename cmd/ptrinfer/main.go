// Package main implements the ptrinfer CLI.
// It infers checked pointer types for C programs and explains the
// pointers that must stay unchecked.
package main

import (
	"os"

	"github.com/2000jedi/checkedc-clang/cmd/ptrinfer/commands"
)

var version = "dev"

func main() {
	commands.RootCmd.Version = version
	commands.RootCmd.SetVersionTemplate(`ptrinfer version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
