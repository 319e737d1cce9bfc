//go:build !plan9 && !windows

// Command vmmctl inspects virtual addresses and replays page table scenarios
// against a simulated machine.
package main

import (
	"context"
	"flag"
	"os"
	"pagevmm/kernel/kfmt"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&indicesCmd{out: os.Stdout}, "")
	subcommands.Register(&addressCmd{out: os.Stdout}, "")
	subcommands.Register(&runCmd{out: os.Stdout}, "")
	flag.Parse()

	// Diagnostics from the memory subsystem go to stderr
	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: os.Stderr, Prefix: []byte("vmmctl: ")})

	os.Exit(int(subcommands.Execute(context.Background())))
}
