//go:build !plan9 && !windows

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"pagevmm/kernel"
	"pagevmm/kernel/hal/machine"
	"pagevmm/kernel/kfmt"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/vmm"

	"github.com/google/subcommands"
)

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	out   io.Writer
	stats bool
}

// Name implements subcommands.Command.Name.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*runCmd) Synopsis() string {
	return "replay a page table scenario on a simulated machine"
}

// Usage implements subcommands.Command.Usage.
func (*runCmd) Usage() string {
	return `run [flags] <scenario.toml>

Each step of the scenario is applied to a fresh address space and its outcome
is printed. The command fails if a step returns an error or does not match its
expectations.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.stats, "stats", false, "print frame allocator statistics after the run")
}

// Execute implements subcommands.Command.Execute.
func (c *runCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	sc, err := loadScenario(f.Arg(0))
	if err != nil {
		kfmt.Printf("%v\n", err)
		return subcommands.ExitUsageError
	}

	if err = c.run(sc); err != nil {
		kfmt.Printf("%v\n", err)
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

// run replays sc on a new machine whose address space is active for the
// duration of the run.
func (c *runCmd) run(sc *scenario) error {
	m, err := machine.New(sc.Machine.config())
	if err != nil {
		return err
	}
	defer func() { _ = m.Release() }()

	if kerr := vmm.Init(vmm.Config{FrameAllocator: m.AllocFrame, DirectMap: m.Memory, MMU: m.MMU}); kerr != nil {
		return kerr
	}

	root, kerr := m.NewRoot()
	if kerr != nil {
		return kerr
	}

	as := vmm.NewAddressSpace(root)
	if kerr = as.Activate(); kerr != nil {
		return kerr
	}

	for index, s := range sc.Steps {
		if err = c.runStep(as, index+1, s); err != nil {
			return err
		}
	}

	if c.stats {
		m.Allocator.PrintStats()
	}

	return nil
}

func (c *runCmd) runStep(as vmm.AddressSpace, stepNum int, s step) error {
	if s.Op == "lookup" {
		return c.lookup(as, stepNum, s)
	}

	flags, err := s.entryFlags()
	if err != nil {
		return err
	}

	var (
		report vmm.Report
		kerr   *kernel.Error
		phys   = uintptr(s.Phys)
		virt   = uintptr(s.Virt)
	)

	switch s.Op {
	case "map":
		report, kerr = as.Map(phys, virt, s.Count, flags)
	case "remap":
		report, kerr = as.Remap(phys, virt, s.Count, flags)
	case "unmap":
		report, kerr = as.Unmap(virt, s.Count)
	case "map_huge":
		report, kerr = as.MapHuge(phys, virt, s.Count, flags)
	}

	kfmt.Fprintf(c.out, "step %d: %s virt=0x%x phys=0x%x count=%d: applied=%d conflict=%d failed=%d not_attempted=%d\n",
		stepNum, s.Op, virt, phys, s.Count,
		report.Count(vmm.Applied), report.Count(vmm.Conflict), report.Count(vmm.Failed), report.Count(vmm.NotAttempted),
	)

	if kerr != nil {
		return fmt.Errorf("step %d: %w", stepNum, kerr)
	}

	if s.ExpectConflict != nil && *s.ExpectConflict != report.Conflict() {
		return fmt.Errorf("step %d: expected conflict=%t; got %t", stepNum, *s.ExpectConflict, report.Conflict())
	}

	return nil
}

func (c *runCmd) lookup(as vmm.AddressSpace, stepNum int, s step) error {
	virt := uintptr(s.Virt)

	pte, pageSize, kerr := as.Lookup(virt)
	if kerr == vmm.ErrInvalidMapping {
		kfmt.Fprintf(c.out, "step %d: lookup virt=0x%x: not mapped\n", stepNum, virt)
		if s.ExpectPhys != nil {
			return fmt.Errorf("step %d: expected 0x%x to be mapped", stepNum, virt)
		}
		return nil
	}

	if kerr != nil {
		return fmt.Errorf("step %d: %w", stepNum, kerr)
	}

	physAddr, kerr := as.Translate(virt)
	if kerr != nil {
		return fmt.Errorf("step %d: %w", stepNum, kerr)
	}

	sizeName := "4K"
	if pageSize == mem.HugePageSize {
		sizeName = "2M"
	}

	kfmt.Fprintf(c.out, "step %d: lookup virt=0x%x: phys=0x%x size=%s flags=%s\n",
		stepNum, virt, physAddr, sizeName, formatFlags(pte.Flags()),
	)

	if s.ExpectPhys != nil && uintptr(*s.ExpectPhys) != physAddr {
		return fmt.Errorf("step %d: expected phys=0x%x; got 0x%x", stepNum, uint64(*s.ExpectPhys), physAddr)
	}

	return nil
}
