// Package main provides the peercall command-line client.
//
// It manages the local identity and contacts, listens for incoming calls
// and places outgoing ones. Run "peercall --help" for the command list.
package main

import (
	"os"

	"github.com/opd-ai/peercall/cmd/peercall/commands"
)

func main() {
	rootCmd := commands.NewRootCmd()

	// Do not print usage when error occurs
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
