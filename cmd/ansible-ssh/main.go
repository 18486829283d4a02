// Package main is the entry point for the ansible-ssh binary.
//
// ansible-ssh resolves a host's connection variables with ansible-inventory
// and hands off to ssh with the matching flags.
//
// Usage:
//
//	ansible-ssh -i inventory myhost            # connect
//	ansible-ssh -i inventory myhost -- uptime  # run a command
//	ansible-ssh -C bash                        # print bash completion
//
// The command is constructed in internal/cli. This file wires it to the
// process: it names the program after argv[0] and maps errors to exit codes.
package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/treykane/ansible-ssh/internal/cli"
)

func main() {
	prog := filepath.Base(os.Args[0])
	cmd := cli.NewRootCommand(prog)

	// ssh's own exit status comes back as an error and is passed through
	// unchanged by HandleError.
	err := cmd.ExecuteContext(context.Background())
	os.Exit(cli.HandleError(os.Stderr, prog, err))
}
