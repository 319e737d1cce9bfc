//go:build !plan9 && !windows

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"pagevmm/kernel/kfmt"
	"pagevmm/kernel/mem/vmm"
	"strconv"

	"github.com/google/subcommands"
)

// parseUint parses a decimal, hex (0x) or octal (0o) number.
func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return v, nil
}

// indicesCmd implements subcommands.Command for the "indices" command.
type indicesCmd struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*indicesCmd) Name() string {
	return "indices"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*indicesCmd) Synopsis() string {
	return "split a virtual address into its page table indices"
}

// Usage implements subcommands.Command.Usage.
func (*indicesCmd) Usage() string {
	return "indices <virtual address>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*indicesCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (c *indicesCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	virtAddr, err := parseUint(f.Arg(0))
	if err != nil {
		kfmt.Printf("%v\n", err)
		return subcommands.ExitUsageError
	}

	page := vmm.PageFromAddress(uintptr(virtAddr))
	idx := page.Indices()
	kfmt.Fprintf(c.out, "page=0x%x p4=%d p3=%d p2=%d p1=%d offset=0x%x canonical=%t\n",
		uintptr(page), idx[0], idx[1], idx[2], idx[3], vmm.PageOffset(uintptr(virtAddr)), vmm.IsCanonical(uintptr(virtAddr)),
	)
	return subcommands.ExitSuccess
}

// addressCmd implements subcommands.Command for the "address" command.
type addressCmd struct {
	out io.Writer
}

// Name implements subcommands.Command.Name.
func (*addressCmd) Name() string {
	return "address"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*addressCmd) Synopsis() string {
	return "assemble the canonical virtual address for a set of page table indices"
}

// Usage implements subcommands.Command.Usage.
func (*addressCmd) Usage() string {
	return "address <p4> <p3> <p2> <p1>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (*addressCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (c *addressCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 4 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	var idx vmm.Indices
	for level := range idx {
		v, err := parseUint(f.Arg(level))
		if err != nil {
			kfmt.Printf("%v\n", err)
			return subcommands.ExitUsageError
		}

		if v > 511 {
			kfmt.Printf("index %d out of range [0, 511]\n", v)
			return subcommands.ExitUsageError
		}
		idx[level] = uint16(v)
	}

	kfmt.Fprintf(c.out, "0x%016x\n", idx.Address())
	return subcommands.ExitSuccess
}
