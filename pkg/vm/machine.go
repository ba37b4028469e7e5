package vm

import (
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"os"

	"pcode/pkg/image"
)

// HeapUnit is the heap allocation granule; every chunk starts on one.
const HeapUnit = 16

// Registers is the part of the machine state an instruction may change.
// The dispatcher snapshots it before each instruction and restores it when
// the instruction faults.
type Registers struct {
	PC    uint16 // next instruction
	FP    uint16 // current frame base
	SP    uint16 // address of the top stack word; StackBase-2 when empty
	CSP   uint16 // next free byte of the string stack
	Level uint8  // static nesting level of the running procedure
}

// Layout fixes the region boundaries of the arena at load time.
type Layout struct {
	Entry        uint16
	StrAlloc     uint16 // capacity of a default string buffer
	StrStackSize uint16 // string stack is [0, StrStackSize)
	RODataBase   uint16
	ROSize       uint16
	StackBase    uint16
	HeapBase     uint16
	ArenaSize    int
}

type Options struct {
	Stdin    io.Reader
	Stdout   io.Writer
	Getenv   func(string) string
	Trace    *log.Logger // one line per executed instruction when set
	Coalesce bool        // merge neighbouring free heap chunks on dispose
	Seed     uint64

	// Sandbox denies the program the host: opening an assigned file
	// reports IOAccessDenied and GETENV sees an empty environment. The
	// standard streams still work.
	Sandbox bool

	// Programs shares decoded code between machines. Nil decodes the
	// program for this machine alone.
	Programs *ProgramCache
}

// Machine is the complete execution context of one running program.
type Machine struct {
	Registers
	Layout  Layout
	Arena   *Arena
	Program *Program
	Heap    Heap
	Files   FileTable

	Line     uint16 // last source line reported by LINE
	ExitCode int16
	IOResult uint16

	rng    *rand.Rand
	getenv func(string) string
	trace  *log.Logger
}

// InitFileLogger opens filename (truncating it) for instruction tracing.
func InitFileLogger(filename string) (*log.Logger, error) {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}
	return log.New(file, "", log.LstdFlags), nil
}

// ComputeLayout places the regions of img in the data space.
func ComputeLayout(img *image.Image) (Layout, error) {
	l := Layout{
		Entry:        img.Entry,
		StrAlloc:     img.StrAlloc,
		StrStackSize: uint16(alignUp(int(img.StrStackSize), 2)),
	}
	roBase := int(l.StrStackSize)
	roSize := alignUp(len(img.ROData), 2)
	stackBase := roBase + roSize
	heapBase := alignUp(stackBase+int(img.StackSize), HeapUnit)
	arenaSize := heapBase + int(img.HeapSize)&^(HeapUnit-1)

	if heapBase >= 1<<16 || arenaSize > 1<<16 {
		return Layout{}, fmt.Errorf("data space of %d bytes exceeds 64K", arenaSize)
	}
	if stackBase == 0 {
		// SP is one word below the stack base when the stack is empty.
		return Layout{}, fmt.Errorf("stack region may not start at offset 0")
	}
	l.RODataBase = uint16(roBase)
	l.ROSize = uint16(roSize)
	l.StackBase = uint16(stackBase)
	l.HeapBase = uint16(heapBase)
	l.ArenaSize = arenaSize
	return l, nil
}

// New loads img into a fresh machine. Zero sizing fields in img take the
// image package defaults.
func New(img *image.Image, opts Options) (*Machine, error) {
	img = img.WithDefaults()
	if err := img.Validate(); err != nil {
		return nil, err
	}
	layout, err := ComputeLayout(img)
	if err != nil {
		return nil, err
	}

	arena, err := NewArena(layout.ArenaSize)
	if err != nil {
		return nil, err
	}
	err = arena.Partition(
		Region{Name: "strings", Start: 0, End: int(layout.RODataBase), Access: Mutable},
		Region{Name: "rodata", Start: int(layout.RODataBase), End: int(layout.StackBase), Access: Immutable},
		Region{Name: "stack", Start: int(layout.StackBase), End: int(layout.HeapBase), Access: Mutable},
		Region{Name: "heap", Start: int(layout.HeapBase), End: layout.ArenaSize, Access: Mutable},
	)
	if err == nil {
		err = arena.Load(int(layout.RODataBase), img.ROData)
	}
	if err != nil {
		arena.Close()
		return nil, err
	}

	m := &Machine{
		Layout:  layout,
		Arena:   arena,
		Program: opts.Programs.Load(img.Code),
		getenv:  opts.Getenv,
		trace:   opts.Trace,
		rng:     rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
	switch {
	case opts.Sandbox:
		m.getenv = func(string) string { return "" }
	case m.getenv == nil:
		m.getenv = os.Getenv
	}
	m.Registers = Registers{
		PC: layout.Entry,
		FP: layout.StackBase,
		SP: layout.StackBase - 2,
	}
	m.Heap.init(arena, int(layout.HeapBase), layout.ArenaSize, opts.Coalesce)

	stdin, stdout := opts.Stdin, opts.Stdout
	if stdin == nil {
		stdin = os.Stdin
	}
	if stdout == nil {
		stdout = os.Stdout
	}
	m.Files.init(stdin, stdout, opts.Sandbox)
	return m, nil
}

// Close flushes and closes every open file and releases the arena.
func (m *Machine) Close() error {
	ferr := m.Files.closeAll()
	aerr := m.Arena.Close()
	if ferr != nil {
		return ferr
	}
	return aerr
}

// Execute loads img, runs it to completion and tears the machine down. On a
// normal halt it returns the program's exit code; a fault is returned as a
// *Fault.
func Execute(img *image.Image, opts Options) (int16, error) {
	m, err := New(img, opts)
	if err != nil {
		return 0, fmt.Errorf("failed to load program: %w", err)
	}
	defer m.Close()

	if reason := m.Run(); reason != ExitHalt {
		return 0, &Fault{Reason: reason, PC: m.PC, Line: m.Line}
	}
	return m.ExitCode, nil
}

func alignUp(n, unit int) int {
	return (n + unit - 1) / unit * unit
}
