//go:build !plan9 && !windows

package main

import (
	"fmt"
	"pagevmm/kernel/hal/machine"
	"pagevmm/kernel/mem"
	"pagevmm/kernel/mem/memmap"
	"pagevmm/kernel/mem/vmm"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultMemoryMB = 16

// flagNames maps the flag names accepted by scenario steps to entry flags.
var flagNames = map[string]vmm.PageTableEntryFlag{
	"rw":     vmm.FlagRW,
	"user":   vmm.FlagUserAccessible,
	"pwt":    vmm.FlagWriteThroughCaching,
	"pcd":    vmm.FlagDoNotCache,
	"global": vmm.FlagGlobal,
	"avail0": vmm.FlagAvail0,
	"avail1": vmm.FlagAvail1,
	"avail2": vmm.FlagAvail2,
	"nx":     vmm.FlagNoExecute,
}

// address is a physical or virtual address. Upper half addresses do not
// fit in a TOML integer so addresses may also be given as strings.
type address uint64

// UnmarshalTOML implements toml.Unmarshaler.
func (a *address) UnmarshalTOML(v interface{}) error {
	switch v := v.(type) {
	case int64:
		if v < 0 {
			return fmt.Errorf("negative address %d", v)
		}
		*a = address(v)
	case string:
		u, err := parseUint(v)
		if err != nil {
			return err
		}
		*a = address(u)
	default:
		return fmt.Errorf("unsupported address value %v", v)
	}

	return nil
}

// scenario is a sequence of page table operations replayed by the run
// command.
type scenario struct {
	Machine machineConfig `toml:"machine"`
	Steps   []step        `toml:"step"`
}

type machineConfig struct {
	// MemoryMB is the size of the simulated physical memory.
	MemoryMB uint64 `toml:"memory_mb"`

	// Regions is the memory map. If empty, all memory is available.
	Regions []regionConfig `toml:"region"`

	// Reserved lists ranges that must never be used for page tables.
	Reserved []regionConfig `toml:"reserved"`
}

type regionConfig struct {
	Start  uint64 `toml:"start"`
	Length uint64 `toml:"length"`
	Type   string `toml:"type"`
}

type step struct {
	// Op is one of map, remap, unmap, map_huge or lookup.
	Op    string   `toml:"op"`
	Phys  address  `toml:"phys"`
	Virt  address  `toml:"virt"`
	Count int      `toml:"count"`
	Flags []string `toml:"flags"`

	// ExpectConflict, if set, fails the run when the conflict status of
	// a range operation differs.
	ExpectConflict *bool `toml:"expect_conflict"`

	// ExpectPhys, if set, fails the run when a lookup does not translate
	// to this physical address.
	ExpectPhys *address `toml:"expect_phys"`
}

func (s step) entryFlags() (vmm.PageTableEntryFlag, error) {
	var flags vmm.PageTableEntryFlag
	for _, name := range s.Flags {
		flag, ok := flagNames[strings.ToLower(name)]
		if !ok {
			return 0, fmt.Errorf("unknown flag %q", name)
		}
		flags |= flag
	}
	return flags, nil
}

// loadScenario decodes a scenario file. Unknown keys are rejected so typos
// do not silently change the meaning of a step.
func loadScenario(path string) (*scenario, error) {
	var sc scenario
	md, err := toml.DecodeFile(path, &sc)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err = sc.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &sc, nil
}

func (sc *scenario) validate() error {
	for index, s := range sc.Steps {
		switch s.Op {
		case "map", "remap", "unmap", "map_huge":
			if s.Count <= 0 {
				return fmt.Errorf("step %d: count must be greater than zero", index+1)
			}
		case "lookup":
		default:
			return fmt.Errorf("step %d: unknown op %q", index+1, s.Op)
		}

		if _, err := s.entryFlags(); err != nil {
			return fmt.Errorf("step %d: %w", index+1, err)
		}
	}

	return nil
}

// machineConfig converts the scenario machine section to a machine.Config.
func (mc machineConfig) config() machine.Config {
	memoryMB := mc.MemoryMB
	if memoryMB == 0 {
		memoryMB = defaultMemoryMB
	}

	cfg := machine.Config{MemorySize: mem.Size(memoryMB) * mem.Mb}
	for _, r := range mc.Regions {
		cfg.Regions = append(cfg.Regions, memmap.Region{
			PhysAddress: r.Start,
			Length:      r.Length,
			Type:        memmap.ParseRegionType(r.Type),
		})
	}

	for _, r := range mc.Reserved {
		cfg.Reserved = append(cfg.Reserved, memmap.Region{
			PhysAddress: r.Start,
			Length:      r.Length,
			Type:        memmap.Reserved,
		})
	}

	return cfg
}

// formatFlags returns the names of the flags set in an entry.
func formatFlags(flags vmm.PageTableEntryFlag) string {
	var names []string
	for name, flag := range flagNames {
		if flags&flag != 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if flags&vmm.FlagHugePage != 0 {
		names = append([]string{"huge"}, names...)
	}

	if flags&vmm.FlagPresent != 0 {
		names = append([]string{"present"}, names...)
	}

	return strings.Join(names, "|")
}
